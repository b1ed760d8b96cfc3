//go:build windows

package syncvault

import (
	"syscall"
)

// hideWindowsFile sets the FILE_ATTRIBUTE_HIDDEN flag on path so the
// manifest stays out of Explorer listings. Failure is non-fatal: the
// manifest still functions, it is just visible.
func hideWindowsFile(path string) {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return
	}

	_ = syscall.SetFileAttributes(pathPtr, syscall.FILE_ATTRIBUTE_HIDDEN)
}
