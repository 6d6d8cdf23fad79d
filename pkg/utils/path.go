package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePath guards the local filesystem paths that UploadLocalFile and
// DownloadDXFile take from a caller before they reach os.Open/os.Create.
// It rejects directory traversal sequences left over after
// filepath.Clean and, unless allowAbsolute is set, absolute paths — a
// caller streaming a remote object to disk has no business writing
// outside the directory it names.
func ValidatePath(path string, allowAbsolute bool) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal: %s", path)
	}

	if !allowAbsolute && filepath.IsAbs(cleanPath) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}

	return nil
}
