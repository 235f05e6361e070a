package index_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t9t/ntfsindex/fileinfo"
	"github.com/t9t/ntfsindex/index"
)

func ptr(f fileinfo.FileInfo) *fileinfo.FileInfo {
	return &f
}

// buildSample constructs the three-record sample from the spec: root at 5, "dir" at 6 (child of root), "file.bin"
// at 7 (child of "dir").
func buildSample() *index.Store {
	slots := make([]*fileinfo.FileInfo, 8)
	slots[5] = ptr(fileinfo.New(".", 5, 0, true))
	slots[6] = ptr(fileinfo.New("dir", 5, 0, true))
	slots[7] = ptr(fileinfo.New("file.bin", 6, 1024, false))
	return index.NewStore('c', slots)
}

func TestFindByIndex(t *testing.T) {
	store := buildSample()

	root := store.FindByIndex(5)
	require.NotNil(t, root.Info)
	assert.Equal(t, ".", root.Info.Name)

	assert.Nil(t, store.FindByIndex(0).Info)
	assert.Nil(t, store.FindByIndex(8).Info, "out of range returns empty entry")
}

func TestComputeFullPath(t *testing.T) {
	store := buildSample()

	path, err := store.ComputeFullPath(store.FindByIndex(7))
	require.NoError(t, err)
	assert.Equal(t, `C:\dir\file.bin`, path)
}

func TestComputeFullPath_UppercasesDriveLetter(t *testing.T) {
	slots := make([]*fileinfo.FileInfo, 6)
	slots[5] = ptr(fileinfo.New(".", 5, 0, true))
	store := index.NewStore('d', slots)

	path, err := store.ComputeFullPath(store.FindByIndex(5))
	require.NoError(t, err)
	assert.Equal(t, "D:", path)
}

func TestIterWithParents(t *testing.T) {
	store := buildSample()

	it := store.IterWithParents(store.FindByIndex(7))
	var names []string
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		names = append(names, e.Info.Name)
	}
	assert.Equal(t, []string{"file.bin", "dir", "."}, names)
}

func TestApplyBatch_CreateDeleteCoalescedByCaller(t *testing.T) {
	store := buildSample()

	// The journal reader is responsible for coalescing create+delete within a batch; ApplyBatch just applies
	// whatever it's given. A create followed by a delete for the same mft nets out to an empty slot either way.
	store.ApplyBatch([]index.Event{
		{Kind: index.EventCreate, MFT: 9, Parent: 6, Name: "tmp"},
		{Kind: index.EventDelete, MFT: 9},
	})

	assert.Nil(t, store.FindByIndex(9).Info)
}

func TestApplyBatch_CreateSkipsOccupiedSlot(t *testing.T) {
	store := buildSample()

	store.ApplyBatch([]index.Event{
		{Kind: index.EventCreate, MFT: 7, Parent: 6, Name: "clobber"},
	})

	assert.Equal(t, "file.bin", store.FindByIndex(7).Info.Name)
}

func TestApplyBatch_CreateSkipsAbsentParent(t *testing.T) {
	store := buildSample()

	store.ApplyBatch([]index.Event{
		{Kind: index.EventCreate, MFT: 9, Parent: 100, Name: "orphan"},
	})

	assert.Nil(t, store.FindByIndex(9).Info)
}

func TestApplyBatch_RenameUpdatesNameAndParent(t *testing.T) {
	store := buildSample()

	store.ApplyBatch([]index.Event{
		{Kind: index.EventRename, MFT: 6, Parent: 5, Name: "moved"},
	})

	entry := store.FindByIndex(6)
	assert.Equal(t, "moved", entry.Info.Name)
	assert.Equal(t, uint64(5), entry.Info.Parent)
}

func TestApplyBatch_DeleteEmptiesSlot(t *testing.T) {
	store := buildSample()

	store.ApplyBatch([]index.Event{{Kind: index.EventDelete, MFT: 7}})

	assert.Nil(t, store.FindByIndex(7).Info)
}

func TestApplyBatch_EmptyBatchIsNoOp(t *testing.T) {
	store := buildSample()
	before := store.FindByIndex(7)

	store.ApplyBatch(nil)

	after := store.FindByIndex(7)
	assert.Equal(t, before.Info.Name, after.Info.Name)
	assert.Equal(t, before.Info.Parent, after.Info.Parent)
}

func TestApplyBatch_IdempotentDeleteOnEmptySlot(t *testing.T) {
	store := buildSample()
	store.ApplyBatch([]index.Event{{Kind: index.EventDelete, MFT: 7}})
	assert.NotPanics(t, func() {
		store.ApplyBatch([]index.Event{{Kind: index.EventDelete, MFT: 7}})
	})
	assert.Nil(t, store.FindByIndex(7).Info)
}

func TestApplyBatch_CreateGrowsTable(t *testing.T) {
	store := buildSample()
	require.Equal(t, 8, store.Len())

	store.ApplyBatch([]index.Event{
		{Kind: index.EventCreate, MFT: 20, Parent: 5, Name: "grown", IsDirectory: true},
	})

	assert.Equal(t, 21, store.Len())
	assert.Equal(t, "grown", store.FindByIndex(20).Info.Name)
}

func TestFindByName_ReturnsLowestIndexMatch(t *testing.T) {
	n := 10000
	slots := make([]*fileinfo.FileInfo, n)
	slots[5] = ptr(fileinfo.New(".", 5, 0, true))
	for i := 6; i < n; i++ {
		slots[i] = ptr(fileinfo.New(fmt.Sprintf("file%d", i), 5, 0, false))
	}
	// Plant a second entry with the same name at a higher index than an earlier one.
	slots[100] = ptr(fileinfo.New("needle", 5, 0, false))
	slots[9000] = ptr(fileinfo.New("needle", 5, 0, false))

	store := index.NewStore('c', slots)
	entry := store.FindByName("needle")
	require.NotNil(t, entry.Info)
	assert.Equal(t, uint64(100), entry.RecordNumber)
}

func TestFindByName_NoMatch(t *testing.T) {
	store := buildSample()
	assert.Nil(t, store.FindByName("nonexistent").Info)
}

func TestParIter_VisitsEverySlotExactlyOnce(t *testing.T) {
	store := buildSample()

	visited := make(map[uint64]bool)
	var mu sync.Mutex
	err := store.ParIter(func(e index.Entry) {
		mu.Lock()
		visited[e.RecordNumber] = true
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Len(t, visited, store.Len())
}
