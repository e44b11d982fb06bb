package rfc9110

import "strconv"

// §  14.4.  Content-Range
// §
// §       Content-Range       = range-unit SP
// §                             ( range-resp / unsatisfied-range )
// §
// §       range-resp          = incl-range "/" ( complete-length / "*" )
// §       incl-range          = first-pos "-" last-pos
// §       unsatisfied-range   = "*/" complete-length
// §
// §     [...]
// §
// §     For byte ranges, a sender SHOULD indicate the complete length of the
// §     representation from which the range has been extracted, unless the
// §     complete length is unknown or difficult to determine.
// §
// §     [...]
// §
// §     A server generating a 416 (Range Not Satisfiable) response to a
// §     byte-range request SHOULD send a Content-Range header field with an
// §     unsatisfied-range value, as in the following example:
// §
// §       Content-Range: bytes */1234

// UnsatisfiedContentRange formats the Content-Range field value of a 416
// response.
func UnsatisfiedContentRange(complete int64) string {
	return bytesUnit + " */" + strconv.FormatInt(complete, 10)
}
