package syncvault

import "os"

// removeIfExists deletes path, treating "already gone" as success.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
