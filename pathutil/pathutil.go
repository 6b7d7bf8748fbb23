// Package pathutil contains helpers for the slash separated paths used by every tree.
// Paths are plain strings; an absolute path starts with "/" and the root of a tree is "/".
package pathutil

import "strings"

// Separator is the only path separator, regardless of platform
const Separator = "/"

// IsAbsolute reports whether p starts with the separator.
func IsAbsolute(p string) bool {
	return strings.HasPrefix(p, Separator)
}

// Join joins parts with a single separator.
// The result is absolute if the first part is empty or absolute. Leading and
// trailing separators of every part are stripped and empty parts are dropped, so
// Join("/", "a") is "/a" and Join("remote/", "x") is "remote/x".
func Join(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	absolute := parts[0] == "" || IsAbsolute(parts[0])

	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, Separator)
		if part != "" {
			kept = append(kept, part)
		}
	}

	result := strings.Join(kept, Separator)
	if absolute {
		return Separator + result
	}
	return result
}

// Split returns the non-empty segments of p.
func Split(p string) []string {
	raw := strings.Split(p, Separator)
	segments := raw[:0]
	for _, s := range raw {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// Normalize folds "." and ".." segments and redundant separators.
// A ".." that would pop past the start of a relative path is kept literally;
// in an absolute path it is dropped since "/.." is "/".
func Normalize(p string) string {
	absolute := IsAbsolute(p)
	out := make([]string, 0)
	for _, s := range Split(p) {
		switch s {
		case ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if !absolute {
				out = append(out, s)
			}
		default:
			out = append(out, s)
		}
	}
	if absolute {
		return Separator + strings.Join(out, Separator)
	}
	return strings.Join(out, Separator)
}

// Base returns the last segment of p, or "" for the root.
func Base(p string) string {
	segments := Split(p)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// Dir returns p without its last segment. Dir("/a") is "/" and Dir("a") is "".
func Dir(p string) string {
	segments := Split(p)
	if len(segments) <= 1 {
		if IsAbsolute(p) {
			return Separator
		}
		return ""
	}
	parent := strings.Join(segments[:len(segments)-1], Separator)
	if IsAbsolute(p) {
		return Separator + parent
	}
	return parent
}

// HasPrefix reports whether p is dir itself or lies below it.
func HasPrefix(p, dir string) bool {
	if p == dir || dir == Separator && IsAbsolute(p) {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(dir, Separator)+Separator)
}
