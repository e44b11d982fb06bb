package rfc9110

import (
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"time"
)

// §  13.1.  Preconditions
// §
// §     Preconditions are usually defined with respect to a state of the
// §     target resource as a whole (its current value set) or the state as
// §     observed in a previously obtained representation (one value in that
// §     set).  If a resource has multiple current representations, each with
// §     its own observable state, a precondition will assume that the mapping
// §     of each request to a selected representation (Section 3.2) is
// §     consistent over time.  Regardless, if the mapping is inconsistent or
// §     the server is unable to select an appropriate representation, then no
// §     harm will result when the precondition evaluates to false.

// Conditions holds the request header fields that influence whether and how
// a representation is sent, parsed once into typed values. Absent fields are
// nil or the zero time; Range holds the raw field value ("" when absent)
// because it is only parsed once the representation length is known.
type Conditions struct {
	IfMatch           *ETagList
	IfNoneMatch       *ETagList
	IfModifiedSince   time.Time
	IfUnmodifiedSince time.Time
	IfRange           *IfRange
	Range             string
}

// Validators are the current validators of the selected representation.
// Either may be absent (zero).
type Validators struct {
	ETag         EntityTag
	LastModified time.Time
}

// ETagList is the value of an If-Match or If-None-Match field: either "*"
// or a list of entity-tags.
type ETagList struct {
	Any  bool
	Tags []EntityTag
}

// ParseETagList parses `"*" / #entity-tag`.
func ParseETagList(s string) (*ETagList, error) {
	s = textproto.TrimString(s)
	if s == "*" {
		return &ETagList{Any: true}, nil
	}
	list := &ETagList{}
	for {
		s = textproto.TrimString(s)
		if len(s) == 0 {
			break
		}
		if s[0] == ',' {
			s = s[1:]
			continue
		}
		etag, remain := scanETag(s)
		if etag == "" {
			return nil, ErrInvalidEntityTag
		}
		list.Tags = append(list.Tags, etag)
		s = remain
	}
	if len(list.Tags) == 0 {
		return nil, ErrInvalidEntityTag
	}
	return list, nil
}

// matches reports whether etag matches the list, using strong or weak
// comparison. "*" matches any current representation, including one
// without an entity-tag.
func (l *ETagList) matches(etag EntityTag, strong bool) bool {
	if l.Any {
		return true
	}
	for _, t := range l.Tags {
		if strong && StrongMatch(t, etag) || !strong && WeakMatch(t, etag) {
			return true
		}
	}
	return false
}

// HeaderError describes a request header field whose value could not be
// parsed. It is informational: the field is degraded, never fatal.
type HeaderError struct {
	Field string
	Value string
	Err   error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("malformed %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}

// ParseConditions extracts the conditional and range fields from h.
//
// Malformed If-Match, If-None-Match, If-Modified-Since and
// If-Unmodified-Since values are treated as absent. A malformed If-Range is
// kept as a value that never matches, so the Range field is ignored rather
// than honoured blindly. The returned Conditions are always usable; the error,
// if any, joins one *HeaderError per degraded field and is meant for logging.
func ParseConditions(h http.Header) (Conditions, error) {
	var c Conditions
	var errs []error

	if v, ok := fieldValue(h, HeaderIfMatch); ok {
		if list, err := ParseETagList(v); err == nil {
			c.IfMatch = list
		} else {
			errs = append(errs, &HeaderError{HeaderIfMatch, v, err})
		}
	}
	if v, ok := fieldValue(h, HeaderIfNoneMatch); ok {
		if list, err := ParseETagList(v); err == nil {
			c.IfNoneMatch = list
		} else {
			errs = append(errs, &HeaderError{HeaderIfNoneMatch, v, err})
		}
	}
	if v := h.Get(HeaderIfModifiedSince); v != "" {
		if t, err := ParseHTTPDate(v); err == nil {
			c.IfModifiedSince = t
		} else {
			errs = append(errs, &HeaderError{HeaderIfModifiedSince, v, err})
		}
	}
	if v := h.Get(HeaderIfUnmodifiedSince); v != "" {
		if t, err := ParseHTTPDate(v); err == nil {
			c.IfUnmodifiedSince = t
		} else {
			errs = append(errs, &HeaderError{HeaderIfUnmodifiedSince, v, err})
		}
	}
	if v := h.Get(HeaderIfRange); v != "" {
		ir, err := ParseIfRange(v)
		c.IfRange = ir
		if err != nil {
			errs = append(errs, &HeaderError{HeaderIfRange, v, err})
		}
	}
	c.Range, _ = fieldValue(h, HeaderRange)

	return c, errors.Join(errs...)
}

// condResult is the result of a single precondition check.
type condResult int

const (
	condNone condResult = iota
	condTrue
	condFalse
)

// §  13.1.1.  If-Match
// §
// §     To evaluate a received If-Match header field:
// §
// §     1.  If the field value is "*", the condition is true if the origin
// §         server has a current representation for the target resource.
// §
// §     2.  If the field value is a list of entity tags, the condition is
// §         true if any of the listed tags match the entity tag of the
// §         selected representation.
// §
// §     3.  Otherwise, the condition is false.
// §
// §     An origin server MUST use the strong comparison function when
// §     comparing entity tags for If-Match (Section 8.8.3.2), since the
// §     client intends this precondition to prevent the method from being
// §     applied if there have been any changes to the representation data.
func checkIfMatch(c Conditions, v Validators) condResult {
	if c.IfMatch == nil {
		return condNone
	}
	if c.IfMatch.matches(v.ETag, true) {
		return condTrue
	}
	return condFalse
}

// §  13.1.4.  If-Unmodified-Since
// §
// §     A recipient MUST ignore If-Unmodified-Since if the request contains
// §     an If-Match header field; the condition in If-Match is considered to
// §     be a more accurate replacement for the condition in If-Unmodified-
// §     Since, and the two are only combined for the sake of interoperating
// §     with older intermediaries that might not implement If-Match.
// §
// §     [...]
// §
// §     1.  If the selected representation has a last modification date, the
// §         origin server MUST NOT perform the requested method if that date
// §         is more recent than the date provided in the field value.
func checkIfUnmodifiedSince(c Conditions, v Validators) condResult {
	if c.IfUnmodifiedSince.IsZero() || isZeroTime(v.LastModified) {
		return condNone
	}
	if truncate(v.LastModified).After(c.IfUnmodifiedSince) {
		return condFalse
	}
	return condTrue
}

// §  13.1.2.  If-None-Match
// §
// §     To evaluate a received If-None-Match header field:
// §
// §     1.  If the field value is "*", the condition is false if the origin
// §         server has a current representation for the target resource.
// §
// §     2.  If the field value is a list of entity tags, the condition is
// §         false if one of the listed tags matches the entity tag of the
// §         selected representation.
// §
// §     3.  Otherwise, the condition is true.
// §
// §     A recipient MUST use the weak comparison function when comparing
// §     entity tags for If-None-Match (Section 8.8.3.2), since weak entity
// §     tags can be used for cache validation even if there have been
// §     changes to the representation data.
//
// Weak comparison is applied for GET and HEAD; other methods use strong
// comparison because they are about to change the representation data.
func checkIfNoneMatch(method string, c Conditions, v Validators) condResult {
	if c.IfNoneMatch == nil {
		return condNone
	}
	if c.IfNoneMatch.matches(v.ETag, !isSafeRetrieval(method)) {
		return condFalse
	}
	return condTrue
}

// §  13.1.3.  If-Modified-Since
// §
// §     A recipient MUST ignore If-Modified-Since if the request contains an
// §     If-None-Match header field; [...]
// §
// §     A recipient MUST ignore the If-Modified-Since header field if the
// §     received field value is not a valid HTTP-date, the field value has
// §     more than one member, or if the request method is neither GET nor
// §     HEAD.
// §
// §     [...]
// §
// §     1.  If the selected representation's last modification date is
// §         earlier or equal to the date provided in the field value, the
// §         condition is false.
// §
// §     2.  Otherwise, the condition is true.
func checkIfModifiedSince(method string, c Conditions, v Validators) condResult {
	if !isSafeRetrieval(method) {
		return condNone
	}
	if c.IfModifiedSince.IsZero() || isZeroTime(v.LastModified) {
		return condNone
	}
	if truncate(v.LastModified).After(c.IfModifiedSince) {
		return condTrue
	}
	return condFalse
}

var unixEpochTime = time.Unix(0, 0)

// isZeroTime reports whether t is obviously unspecified (either zero or Unix()=0).
func isZeroTime(t time.Time) bool {
	return t.IsZero() || t.Equal(unixEpochTime)
}

// truncate drops the sub-second precision that the Last-Modified field
// cannot carry, so comparisons agree with what the client was sent.
func truncate(t time.Time) time.Time {
	return t.Truncate(time.Second)
}
