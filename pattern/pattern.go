// Package pattern implements glob style path patterns with recursive wildcards.
//
// A pattern is split into slash separated segments. Within a segment "*" matches
// any run of non-separator characters, "?" matches one non-separator character,
// "[...]" is a character class ("[!...]" negates it) and a backslash escapes the
// next character. "**" matches any run of characters including separators.
//
// Besides matching, a pattern answers the questions a tree walker needs to avoid
// work: whether anything below a path could still match, and whether the name of
// the next segment is fixed so a single child can be fetched instead of listing.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/brettbedarf/treefs/pathutil"
)

// ErrDotDotAfterDoubleStar is returned when a ".." segment follows a "**".
// The number of segments consumed by "**" is unknown, so the ".." cannot be folded.
var ErrDotDotAfterDoubleStar = errors.New(".. overlapping ** is not allowed")

type segment struct {
	re      *regexp.Regexp
	exact   string
	isExact bool
}

// Pattern is an immutable compiled path pattern. Create one with [New].
type Pattern struct {
	raw        string
	normalized string
	absolute   bool
	// fixed holds the segments before the first "**"
	fixed         []segment
	hasDoubleStar bool
	// segments is the number of segments left after normalization
	segments int
	full     *regexp.Regexp
}

// New compiles s into a Pattern.
func New(s string) (*Pattern, error) {
	p := &Pattern{
		raw:      s,
		absolute: pathutil.IsAbsolute(s),
	}

	var fullParts, normalizedParts []string
	for _, raw := range pathutil.Split(s) {
		re, exact, isExact, doubleStar := translate(raw)
		if doubleStar {
			p.hasDoubleStar = true
		}
		if isExact && exact == "." {
			continue
		}
		if isExact && exact == ".." {
			if p.hasDoubleStar {
				return nil, fmt.Errorf("pattern %q: %w", s, ErrDotDotAfterDoubleStar)
			}
			if len(fullParts) > 0 {
				fullParts = fullParts[:len(fullParts)-1]
				normalizedParts = normalizedParts[:len(normalizedParts)-1]
				p.fixed = p.fixed[:len(p.fixed)-1]
			}
			continue
		}

		if !p.hasDoubleStar {
			compiled, err := regexp.Compile("^" + re + "$")
			if err != nil {
				return nil, fmt.Errorf("pattern %q: invalid segment %q: %w", s, raw, err)
			}
			p.fixed = append(p.fixed, segment{re: compiled, exact: exact, isExact: isExact})
		}
		fullParts = append(fullParts, re)
		normalizedParts = append(normalizedParts, raw)
	}

	full, err := regexp.Compile("^" + strings.Join(fullParts, regexp.QuoteMeta(pathutil.Separator)) + "$")
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", s, err)
	}
	p.full = full
	p.segments = len(fullParts)

	p.normalized = strings.Join(normalizedParts, pathutil.Separator)
	if p.absolute {
		p.normalized = pathutil.Separator + p.normalized
	}
	return p, nil
}

// MustNew is like [New] but panics on error.
func MustNew(s string) *Pattern {
	p, err := New(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern as it was given to [New].
func (p *Pattern) String() string {
	return p.raw
}

// Normalized returns the pattern with "." and ".." folded and redundant separators removed.
func (p *Pattern) Normalized() string {
	return p.normalized
}

// IsAbsolute reports whether the pattern starts with a separator.
func (p *Pattern) IsAbsolute() bool {
	return p.absolute
}

// HasDoubleStar reports whether any segment contains "**".
func (p *Pattern) HasDoubleStar() bool {
	return p.hasDoubleStar
}

// Match reports whether the whole of path matches the whole pattern.
// An absolute pattern only matches absolute paths and vice versa.
func (p *Pattern) Match(path string) bool {
	rel, ok := p.relative(path)
	if !ok {
		return false
	}
	// a segment that can match an empty name must still not match the root
	if rel == "" && p.segments > 0 && !p.hasDoubleStar {
		return false
	}
	return p.full.MatchString(rel)
}

// CouldMatchChildren reports whether a descendant of path could match.
// It never returns false for a path with a matching descendant, but may return
// true when none exists.
func (p *Pattern) CouldMatchChildren(path string) bool {
	if path == "" {
		return false
	}
	rel, ok := p.relative(path)
	if !ok {
		return false
	}
	parts := pathutil.Split(rel)
	if len(p.fixed) <= len(parts) && !p.hasDoubleStar {
		return false
	}
	for i, part := range parts {
		if i >= len(p.fixed) {
			break
		}
		if !p.fixed[i].re.MatchString(part) {
			return false
		}
	}
	return true
}

// ExactChildNameUnder returns the literal name the pattern requires for the
// segment directly below path, if the pattern fixes one.
func (p *Pattern) ExactChildNameUnder(path string) (string, bool) {
	depth := len(pathutil.Split(strings.TrimPrefix(path, pathutil.Separator)))
	if depth >= len(p.fixed) || !p.fixed[depth].isExact {
		return "", false
	}
	return p.fixed[depth].exact, true
}

// ExactPath returns the single path the pattern matches, if it contains no wildcard.
// A pattern containing "**" never has an exact path.
func (p *Pattern) ExactPath() (string, bool) {
	if p.hasDoubleStar {
		return "", false
	}
	parts := make([]string, 0, len(p.fixed))
	for _, seg := range p.fixed {
		if !seg.isExact {
			return "", false
		}
		parts = append(parts, seg.exact)
	}
	result := strings.Join(parts, pathutil.Separator)
	if p.absolute {
		return pathutil.Separator + result, true
	}
	return result, true
}

// relative strips the leading separator from path, returning false when the
// absoluteness of path and pattern differ.
func (p *Pattern) relative(path string) (string, bool) {
	if pathutil.IsAbsolute(path) != p.absolute {
		return "", false
	}
	if p.absolute {
		return path[1:], true
	}
	return path, true
}

// translate converts one glob segment into an unanchored regexp, its literal
// value when it contains no wildcard, and whether it contains "**".
func translate(seg string) (re string, exact string, isExact bool, doubleStar bool) {
	var (
		out     strings.Builder
		literal strings.Builder
		pending strings.Builder
	)
	isExact = true

	flush := func() {
		if pending.Len() > 0 {
			out.WriteString(regexp.QuoteMeta(pending.String()))
			pending.Reset()
		}
	}

	for i := 0; i < len(seg); {
		c := seg[i]
		switch {
		case c == '*' && i+1 < len(seg) && seg[i+1] == '*':
			flush()
			out.WriteString(".*")
			isExact = false
			doubleStar = true
			i += 2
		case c == '*':
			flush()
			out.WriteString("[^/]*")
			isExact = false
			i++
		case c == '?':
			flush()
			out.WriteString("[^/]")
			isExact = false
			i++
		case c == '\\' && i+1 < len(seg):
			r, size := utf8.DecodeRuneInString(seg[i+1:])
			pending.WriteRune(r)
			literal.WriteRune(r)
			i += 1 + size
		case c == '[':
			class, n := charClass(seg[i:])
			if n == 0 {
				pending.WriteByte(c)
				literal.WriteByte(c)
				i++
				continue
			}
			flush()
			out.WriteString(class)
			isExact = false
			i += n
		default:
			r, size := utf8.DecodeRuneInString(seg[i:])
			pending.WriteRune(r)
			literal.WriteRune(r)
			i += size
		}
	}
	flush()

	if !isExact {
		return out.String(), "", false, doubleStar
	}
	return out.String(), literal.String(), true, doubleStar
}

// charClass translates the bracket expression at the start of s and returns it
// with the number of bytes consumed, or 0 if s does not start a closed class.
func charClass(s string) (string, int) {
	body := 1
	negate := false
	if body < len(s) && (s[body] == '!' || s[body] == '^') {
		negate = true
		body++
	}
	// a "]" right after the opening bracket is part of the class
	search := body
	if search < len(s) && s[search] == ']' {
		search++
	}
	end := strings.IndexByte(s[search:], ']')
	if end < 0 {
		return "", 0
	}
	end += search

	var class strings.Builder
	class.WriteByte('[')
	if negate {
		class.WriteByte('^')
	}
	for _, r := range s[body:end] {
		switch r {
		case '\\', '[', ']':
			class.WriteByte('\\')
		}
		class.WriteRune(r)
	}
	if negate {
		// a negated class must still never match the separator
		class.WriteByte('/')
	}
	class.WriteByte(']')
	return class.String(), end + 1
}
