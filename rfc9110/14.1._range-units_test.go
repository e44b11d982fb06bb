package rfc9110

import (
	"math"
	"reflect"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in   string
		want []ByteRangeSpec
	}{
		{"bytes=0-99", []ByteRangeSpec{{Kind: FromTo, First: 0, Last: 99}}},
		{"Bytes=5-", []ByteRangeSpec{{Kind: AllFrom, First: 5}}},
		{"bytes=-50", []ByteRangeSpec{{Kind: Suffix, SuffixLength: 50}}},
		{"bytes=0-99999999999999999999", []ByteRangeSpec{{Kind: FromTo, First: 0, Last: math.MaxInt64}}},
		{"bytes=-99999999999999999999", []ByteRangeSpec{{Kind: Suffix, SuffixLength: math.MaxInt64}}},
		{"bytes= 0-1 , ,200-299,0-1", []ByteRangeSpec{
			{Kind: FromTo, First: 0, Last: 1},
			{Kind: FromTo, First: 200, Last: 299},
			{Kind: FromTo, First: 0, Last: 1},
		}},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.in)
		if err != nil {
			t.Fatalf("ParseRange(%q) error %v", tt.in, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParseRange(%q) = %+v", tt.in, got)
		}
	}
}

func TestParseRangeUnparseable(t *testing.T) {
	for _, in := range []string{
		"",
		"bytes",
		"bytes=",
		"bytes=,",
		"items=0-1",
		"bytes=1",
		"bytes=-",
		"bytes=5-4",
		"bytes=a-b",
		"bytes=+1-2",
		"bytes=0-1,x",
	} {
		if _, err := ParseRange(in); err != ErrUnparseable {
			t.Fatalf("ParseRange(%q) error is %v", in, err)
		}
	}
}
