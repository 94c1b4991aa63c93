package auth

import "strings"

// AllowList holds the paths that bypass authentication.
type AllowList struct {
	paths []string
}

// NewAllowList builds an AllowList. "/" matches only the root; any other
// entry matches itself and everything below it on a segment boundary.
func NewAllowList(paths []string) *AllowList {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "/" {
			p = strings.TrimSuffix(p, "/")
		}
		cleaned = append(cleaned, p)
	}
	return &AllowList{paths: cleaned}
}

// Allows reports whether path is public.
func (a *AllowList) Allows(path string) bool {
	for _, p := range a.paths {
		if p == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
