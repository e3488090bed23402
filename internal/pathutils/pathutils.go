// Package pathutils provides helpers for handling remote file paths.
//
// Remote paths are always slash separated, rooted at "/", regardless of the
// client platform.
package pathutils

import (
	"path"
	"strings"
)

// Normalize converts p to a canonical remote path: slash separated, starting
// with "/", with duplicate slashes collapsed. An empty path is the root.
func Normalize(p string) string {
	if p == "" {
		return "/"
	}

	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	return path.Clean(p)
}

// Join joins elem onto base and normalizes the result.
func Join(base string, elem ...string) string {
	return Normalize(path.Join(append([]string{base}, elem...)...))
}

// Parent returns the normalized parent folder of p. The parent of the root is
// the root.
func Parent(p string) string {
	return Normalize(path.Dir(Normalize(p)))
}

// Components splits the normalized path into its folder components.
// The root has no components.
func Components(p string) []string {
	p = Normalize(p)
	if p == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}
