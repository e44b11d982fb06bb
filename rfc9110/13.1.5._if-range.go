package rfc9110

import (
	"net/textproto"
	"time"
)

// §  13.1.5.  If-Range
// §
// §     The "If-Range" header field provides a special conditional request
// §     mechanism that is similar to the If-Match and If-Unmodified-Since
// §     header fields but that instructs the recipient to ignore the Range
// §     header field if the validator doesn't match, resulting in transfer
// §     of the new selected representation instead of a 412 (Precondition
// §     Failed) response.
// §
// §       If-Range = entity-tag / HTTP-date

// IfRange is the value of an If-Range field. Exactly one of ETag and Date is
// set for a well-formed value; a malformed value leaves both unset and never
// matches.
type IfRange struct {
	ETag EntityTag
	Date time.Time
}

// ParseIfRange parses an If-Range field value. On error the returned value
// is still non-nil and never matches.
func ParseIfRange(s string) (*IfRange, error) {
	if etag, remain := scanETag(s); etag != "" {
		if textproto.TrimString(remain) != "" {
			return &IfRange{}, ErrInvalidEntityTag
		}
		return &IfRange{ETag: etag}, nil
	}
	date, err := ParseHTTPDate(s)
	if err != nil {
		return &IfRange{}, err
	}
	return &IfRange{Date: date}, nil
}

// §     A server MUST ignore an If-Range header field received in a request
// §     that does not contain a Range header field.  An origin server MUST
// §     ignore an If-Range header field received in a request for a target
// §     resource that does not support Range requests.
// §
// §     [...]
// §
// §     To evaluate a received If-Range header field containing an HTTP-date:
// §
// §     1.  If the HTTP-date validator provided is not a strong validator in
// §         the sense defined by Section 8.8.2.2, the condition is false.
// §
// §     2.  If the HTTP-date validator provided exactly matches the
// §         Last-Modified field value for the selected representation, the
// §         condition is true.
// §
// §     3.  Otherwise, the condition is false.
// §
// §     To evaluate a received If-Range header field containing an
// §     entity-tag:
// §
// §     1.  If the entity-tag validator provided exactly matches the ETag
// §         field value for the selected representation using the strong
// §         comparison function (Section 8.8.3.2), the condition is true.
// §
// §     2.  Otherwise, the condition is false.

// IfRangeMatches reports whether the If-Range value ir still describes the
// selected representation. A nil ir (field absent) matches.
func IfRangeMatches(ir *IfRange, v Validators) bool {
	if ir == nil {
		return true
	}
	if !ir.ETag.IsZero() {
		return StrongMatch(ir.ETag, v.ETag)
	}
	if ir.Date.IsZero() || isZeroTime(v.LastModified) {
		return false
	}
	return truncate(v.LastModified).Equal(ir.Date)
}
