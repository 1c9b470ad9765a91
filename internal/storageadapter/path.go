package storageadapter

import (
	"path"
	"strings"

	"shogunrelay/internal/errs"
)

// cleanRelativePath enforces spec §4.1's path policy: inputs are cleaned,
// must remain within the root, reject embedded NUL, reject absolute paths,
// collapse "." and reject ".." segments. It returns the cleaned,
// root-relative, slash-separated path.
func cleanRelativePath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", errs.New(errs.Malformed, "path-escape", "path contains a NUL byte")
	}
	if strings.HasPrefix(p, "/") {
		return "", errs.New(errs.Malformed, "path-escape", "absolute paths are rejected")
	}

	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")

	for _, seg := range strings.Split(cleaned, "/") {
		if seg == ".." {
			return "", errs.New(errs.Malformed, "path-escape", "path escapes the drive root")
		}
	}
	return cleaned, nil
}
