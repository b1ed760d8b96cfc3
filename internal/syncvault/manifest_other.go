//go:build !windows

package syncvault

// hideWindowsFile is a no-op outside Windows: the hidden-attribute concept
// does not exist on POSIX filesystems (a leading dot already hides the
// manifest from most listings, which ManifestFileName already uses).
func hideWindowsFile(string) {}
