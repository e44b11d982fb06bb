package rfc9110

import (
	"errors"
	"fmt"
)

// ErrUnsatisfiable is returned by ResolveRanges when none of the requested
// ranges overlaps the representation.
var ErrUnsatisfiable = errors.New("range not satisfiable")

// ResolvedRange is an in-bounds byte span, Start <= End < length.
type ResolvedRange struct {
	Start int64
	End   int64
}

// Length is the number of bytes in r.
func (r ResolvedRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats r as a Content-Range field value for a representation
// of the given complete length.
func (r ResolvedRange) ContentRange(complete int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, complete)
}

// §  14.1.2.  Byte Ranges
// §
// §     A byte-range-spec is invalid if the last-pos value is present and
// §     less than the first-pos.
// §
// §     [...]
// §
// §     If the selected representation is shorter than the specified
// §     suffix-length, the entire representation is used.
// §
// §     For a GET request, a valid bytes range-spec is satisfiable if it is
// §     either:
// §
// §     *  an int-range with a first-pos that is less than the current length
// §        of the selected representation or
// §
// §     *  a suffix-range with a non-zero suffix-length.
// §
// §     When a selected representation has zero length, the only satisfiable
// §     form of range-spec is a suffix-range with a non-zero suffix-length.
// §
// §     In the byte-range syntax, first-pos, last-pos, and suffix-length
// §     represent a decimal number of octets.  Since there is no predefined
// §     limit to the length of content, recipients MUST anticipate
// §     potentially large decimal numerals and prevent parsing errors due to
// §     integer conversion overflows.

// ResolveRanges resolves specs against a representation of the given length.
// Satisfiable specs are returned in order; unsatisfiable ones are dropped.
// When nothing is left, ErrUnsatisfiable is returned.
//
// A suffix-range against an empty representation is satisfiable in the RFC's
// terms, but there is no byte to send, so it is dropped as well.
func ResolveRanges(specs []ByteRangeSpec, length int64) ([]ResolvedRange, error) {
	var ranges []ResolvedRange
	for _, spec := range specs {
		var r ResolvedRange
		switch spec.Kind {
		case FromTo:
			if spec.First >= length {
				continue
			}
			r = ResolvedRange{Start: spec.First, End: min(spec.Last, length-1)}
		case AllFrom:
			if spec.First >= length {
				continue
			}
			r = ResolvedRange{Start: spec.First, End: length - 1}
		case Suffix:
			if spec.SuffixLength == 0 || length == 0 {
				continue
			}
			r = ResolvedRange{Start: max(0, length-spec.SuffixLength), End: length - 1}
		default:
			continue
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return nil, ErrUnsatisfiable
	}
	return ranges, nil
}
