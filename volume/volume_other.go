//go:build !windows

package volume

import "fmt"

// Open is unavailable outside Windows: NTFS volumes are opened through Win32 handles and DeviceIoControl, which
// have no portable equivalent. It exists on every platform so the rest of the module (and cmd/ntfsindex) can always
// reference volume.Open, and fails clearly at runtime on other platforms instead of failing to build.
func Open(driveLetter byte) (Volume, error) {
	return nil, fmt.Errorf("volume: opening an NTFS volume is only supported on Windows")
}

// DiscoverVolumesOnSystem mirrors its Windows counterpart but always finds nothing, since drive-letter enumeration
// is itself a Windows concept.
func DiscoverVolumesOnSystem() []byte {
	return nil
}
