package rfc9110

import (
	"errors"
	"net/textproto"
	"strings"
)

// ErrInvalidEntityTag is returned when a value is not a syntactically valid
// entity-tag.
var ErrInvalidEntityTag = errors.New("invalid entity-tag")

// §  8.8.3.  ETag
// §
// §     The "ETag" field in a response provides the current entity tag for
// §     the selected representation, as determined at the conclusion of
// §     handling the request.  An entity tag is an opaque validator for
// §     differentiating between multiple representations of the same
// §     resource, regardless of whether those multiple representations are
// §     due to resource state changes over time, content negotiation
// §     resulting in multiple representations being valid at the same time,
// §     or both.  An entity tag consists of an opaque quoted string, possibly
// §     prefixed by a weakness indicator.
// §
// §       ETag       = entity-tag
// §
// §       entity-tag = [ weak ] opaque-tag
// §       weak       = %s"W/"
// §       opaque-tag = DQUOTE *etagc DQUOTE
// §       etagc      = %x21 / %x23-7E / obs-text
// §                  ; VCHAR except double quotes, plus obs-text

// EntityTag is an entity-tag in its wire form, e.g. `"xyzzy"` or `W/"xyzzy"`.
// The zero value means the representation has no entity-tag.
type EntityTag string

// StrongETag returns the strong entity-tag with the given opaque value.
func StrongETag(opaque string) EntityTag {
	return EntityTag(`"` + opaque + `"`)
}

// WeakETag returns the weak entity-tag with the given opaque value.
func WeakETag(opaque string) EntityTag {
	return EntityTag(`W/"` + opaque + `"`)
}

// ParseEntityTag parses a single entity-tag. Surrounding whitespace is
// allowed, anything else is not.
func ParseEntityTag(s string) (EntityTag, error) {
	etag, remain := scanETag(s)
	if etag == "" || textproto.TrimString(remain) != "" {
		return "", ErrInvalidEntityTag
	}
	return etag, nil
}

// IsZero reports whether t is absent.
func (t EntityTag) IsZero() bool {
	return t == ""
}

// IsWeak reports whether t carries the weakness indicator.
func (t EntityTag) IsWeak() bool {
	return strings.HasPrefix(string(t), "W/")
}

// Opaque returns the opaque-tag without quotes or weakness indicator.
func (t EntityTag) Opaque() string {
	s := strings.TrimPrefix(string(t), "W/")
	if len(s) < 2 {
		return ""
	}
	return s[1 : len(s)-1]
}

func (t EntityTag) String() string {
	return string(t)
}

// scanETag determines if a syntactically valid entity-tag is present at s.
// If so, the entity-tag and the text remaining after it are returned.
// Otherwise it returns "", "".
func scanETag(s string) (etag EntityTag, remain string) {
	s = textproto.TrimString(s)
	start := 0
	if strings.HasPrefix(s, "W/") {
		start = 2
	}
	if len(s[start:]) < 2 || s[start] != '"' {
		return "", ""
	}
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 0x21 || c >= 0x23 && c <= 0x7E || c >= 0x80:
		case c == '"':
			return EntityTag(s[:i+1]), s[i+1:]
		default:
			return "", ""
		}
	}
	return "", ""
}

// §  8.8.3.2.  Comparison
// §
// §     There are two entity tag comparison functions, depending on whether
// §     or not the comparison context allows the use of weak validators:
// §
// §     "Strong comparison":  two entity tags are equivalent if both are not
// §        weak and their opaque-tags match character-by-character.
// §
// §     "Weak comparison":  two entity tags are equivalent if their opaque-
// §        tags match character-by-character, regardless of either or both
// §        being tagged as "weak".

// StrongMatch reports whether a and b match using strong comparison.
func StrongMatch(a, b EntityTag) bool {
	return a != "" && a == b && !a.IsWeak()
}

// WeakMatch reports whether a and b match using weak comparison.
func WeakMatch(a, b EntityTag) bool {
	return a != "" && b != "" && a.Opaque() == b.Opaque()
}
