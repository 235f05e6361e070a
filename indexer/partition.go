package indexer

import (
	"github.com/t9t/ntfsindex/fragment"
)

// Partition splits fragments (absolute byte ranges covering the MFT's own data, in on-disk order) into numWorkers
// contiguous groups. Each run is kept whole or split on a cluster boundary so that no worker but the last
// accumulates more than B = totalSize/numWorkers bytes, rounded down to a multiple of bytesPerCluster; the
// remainder goes to the last worker. Group order mirrors byte order, so a worker's starting byte offset (the sum of
// the lengths of all earlier groups) can be divided by the record size to recover the record number its first
// decoded record belongs to.
func Partition(fragments []fragment.Fragment, totalSize int64, bytesPerCluster int, numWorkers int) [][]fragment.Fragment {
	if numWorkers < 1 {
		numWorkers = 1
	}

	clusterSize := int64(bytesPerCluster)
	if clusterSize < 1 {
		clusterSize = 1
	}

	budget := (totalSize / int64(numWorkers) / clusterSize) * clusterSize
	if budget == 0 {
		// Less than one cluster per worker: every group but the last stays empty and the last takes all runs.
		groups := make([][]fragment.Fragment, numWorkers)
		groups[numWorkers-1] = append([]fragment.Fragment(nil), fragments...)
		return groups
	}

	groups := make([][]fragment.Fragment, 0, numWorkers)
	var current []fragment.Fragment
	currentBytes := int64(0)

	flush := func() {
		groups = append(groups, current)
		current = nil
		currentBytes = 0
	}

	for _, frag := range fragments {
		remaining := frag
		for remaining.Length > 0 {
			onLastGroup := len(groups) == numWorkers-1
			if onLastGroup {
				current = append(current, remaining)
				currentBytes += remaining.Length
				break
			}

			spaceLeft := budget - currentBytes
			if spaceLeft <= 0 {
				flush()
				spaceLeft = budget
			}

			if remaining.Length <= spaceLeft {
				current = append(current, remaining)
				currentBytes += remaining.Length
				break
			}

			splitLength := (spaceLeft / clusterSize) * clusterSize
			if splitLength <= 0 {
				// Budget doesn't even cover one cluster; keep the whole run together rather than emit a
				// zero-length split, at the cost of this group slightly exceeding its target.
				current = append(current, remaining)
				currentBytes += remaining.Length
				break
			}

			current = append(current, fragment.Fragment{Offset: remaining.Offset, Length: splitLength})
			currentBytes += splitLength
			remaining = fragment.Fragment{Offset: remaining.Offset + splitLength, Length: remaining.Length - splitLength}
		}
	}
	flush()

	for len(groups) < numWorkers {
		groups = append(groups, nil)
	}
	return groups
}

// StartOffsets returns, for each group produced by Partition, the cumulative byte offset of its first byte relative
// to the start of the MFT (i.e. the sum of the lengths of all preceding groups).
func StartOffsets(groups [][]fragment.Fragment) []int64 {
	offsets := make([]int64, len(groups))
	cumulative := int64(0)
	for i, group := range groups {
		offsets[i] = cumulative
		for _, frag := range group {
			cumulative += frag.Length
		}
	}
	return offsets
}
