package rfc9110

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrUnparseable is returned by ParseRange when a Range field value is not a
// well-formed set of byte ranges. Callers ignore such a field.
var ErrUnparseable = errors.New("unparseable range")

// §  14.1.  Range Units
// §
// §     Representation data can be partitioned into subranges when there are
// §     addressable structural units inherent to that data's content coding
// §     or media type.
// §
// §       range-unit       = token
// §
// §     All range unit names are case-insensitive and ought to be registered
// §     within the "HTTP Range Unit Registry", as defined in Section 16.5.1.

const bytesUnit = "bytes"

// SpecKind tells which form of byte-range-spec a ByteRangeSpec holds.
type SpecKind int

const (
	// FromTo is "first-last".
	FromTo SpecKind = iota
	// AllFrom is "first-".
	AllFrom
	// Suffix is "-length".
	Suffix
)

// ByteRangeSpec is one element of a Range field value, as sent by the client
// and before it is resolved against a representation length.
type ByteRangeSpec struct {
	Kind SpecKind
	// First is the first-pos for FromTo and AllFrom.
	First int64
	// Last is the inclusive last-pos for FromTo.
	Last int64
	// SuffixLength is the length for Suffix.
	SuffixLength int64
}

// §  14.1.1.  Range Specifiers
// §
// §       ranges-specifier = range-unit "=" range-set
// §       range-set        = 1#range-spec
// §       range-spec       = int-range
// §                        / suffix-range
// §                        / other-range
// §
// §       int-range     = first-pos "-" [ last-pos ]
// §       first-pos     = 1*DIGIT
// §       last-pos      = 1*DIGIT
// §
// §     An int-range is invalid if the last-pos value is present and less
// §     than the first-pos.
// §
// §       suffix-range  = "-" suffix-length
// §       suffix-length = 1*DIGIT

// ParseRange parses a Range field value in the bytes unit. Specs are returned
// in the order given; duplicates and overlaps are kept. Any other unit, or any
// invalid range-spec, makes the whole value unparseable.
func ParseRange(s string) ([]ByteRangeSpec, error) {
	unit, set, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), bytesUnit) {
		return nil, ErrUnparseable
	}
	var specs []ByteRangeSpec
	for _, ra := range strings.Split(set, ",") {
		ra = strings.TrimSpace(ra)
		if ra == "" {
			continue
		}
		spec, err := parseRangeSpec(ra)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, ErrUnparseable
	}
	return specs, nil
}

func parseRangeSpec(ra string) (ByteRangeSpec, error) {
	first, last, ok := strings.Cut(ra, "-")
	if !ok {
		return ByteRangeSpec{}, ErrUnparseable
	}
	if first == "" {
		n, err := parseDigits(last)
		if err != nil {
			return ByteRangeSpec{}, err
		}
		return ByteRangeSpec{Kind: Suffix, SuffixLength: n}, nil
	}
	f, err := parseDigits(first)
	if err != nil {
		return ByteRangeSpec{}, err
	}
	if last == "" {
		return ByteRangeSpec{Kind: AllFrom, First: f}, nil
	}
	l, err := parseDigits(last)
	if err != nil {
		return ByteRangeSpec{}, err
	}
	if l < f {
		return ByteRangeSpec{}, ErrUnparseable
	}
	return ByteRangeSpec{Kind: FromTo, First: f, Last: l}, nil
}

// parseDigits parses 1*DIGIT. Signs and whitespace are not digits. Values
// that overflow int64 saturate to math.MaxInt64.
func parseDigits(s string) (int64, error) {
	if s == "" {
		return 0, ErrUnparseable
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrUnparseable
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		// too large to represent: past the end of any representation
		return math.MaxInt64, nil
	}
	if err != nil {
		return 0, ErrUnparseable
	}
	return n, nil
}
