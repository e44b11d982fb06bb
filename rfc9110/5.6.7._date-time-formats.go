package rfc9110

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// §  5.6.7.  Date/Time Formats
// §
// §     Prior to 1995, there were three different formats commonly used by
// §     servers to communicate timestamps.  For compatibility with old
// §     implementations, all three are defined here.  The preferred format is
// §     a fixed-length and single-zone subset of the date and time
// §     specification used by the Internet Message Format [RFC5322].
// §
// §       HTTP-date    = IMF-fixdate / obs-date
// §
// §     An example of the preferred format is
// §
// §       Sun, 06 Nov 1994 08:49:37 GMT    ; IMF-fixdate
// §
// §     Examples of the two obsolete formats are
// §
// §       Sunday, 06-Nov-94 08:49:37 GMT   ; obsolete RFC 850 format
// §       Sun Nov  6 08:49:37 1994         ; ANSI C's asctime() format
// §
// §     A recipient that parses a timestamp value in an HTTP field MUST
// §     accept all three HTTP-date formats.  When a sender generates a field
// §     that contains one or more timestamps defined as HTTP-date, the sender
// §     MUST generate those timestamps in the IMF-fixdate format.
var dateLayouts = []string{
	http.TimeFormat,
	time.RFC850,
	time.ANSIC,
}

// ParseHTTPDate parses an HTTP-date in any of the three accepted formats.
// The returned time is in UTC.
func ParseHTTPDate(dateStr string) (time.Time, error) {
	str := normalizeDateStr(strings.TrimSpace(dateStr))
	for _, layout := range dateLayouts {
		if date, err := time.Parse(layout, str); err == nil {
			return date.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid HTTP-date %q", dateStr)
}

// FormatHTTPDate formats t as an IMF-fixdate.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// §     HTTP-date is case sensitive.  Note that Section 4.2 of [CACHING]
// §     relaxes this for cache recipients.
//
// Recipients here are lenient in the same way: month, day-name and zone
// matching ignore case.
func normalizeDateStr(dateStr string) string {
	return strings.ToUpper(dateStr)
}
