package rfc9110

import (
	"net/http"
	"testing"
	"time"
)

func TestEvaluate(t *testing.T) {
	lm := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	before := lm.Add(-time.Hour)
	after := lm.Add(time.Hour)
	strong := Validators{ETag: `"abc"`, LastModified: lm}
	weak := Validators{ETag: `W/"abc"`, LastModified: lm}
	list := func(tags ...EntityTag) *ETagList { return &ETagList{Tags: tags} }
	wildcard := &ETagList{Any: true}

	tests := []struct {
		name   string
		method string
		c      Conditions
		v      Validators
		want   Outcome
	}{
		{"no conditions", http.MethodGet, Conditions{}, strong, Proceed},
		{"if-match hit", http.MethodGet, Conditions{IfMatch: list(`"abc"`)}, strong, Proceed},
		{"if-match miss", http.MethodGet, Conditions{IfMatch: list(`"nonexistent"`)}, strong, PreconditionFailed},
		{"if-match miss with range", http.MethodGet, Conditions{IfMatch: list(`"x"`), Range: "bytes=0-1"}, strong, PreconditionFailed},
		{"if-match wildcard", http.MethodPut, Conditions{IfMatch: wildcard}, strong, Proceed},
		{"if-match weak never matches", http.MethodGet, Conditions{IfMatch: list(`W/"abc"`)}, weak, PreconditionFailed},
		{"if-match strong vs weak entity", http.MethodPut, Conditions{IfMatch: list(`"abc"`)}, weak, PreconditionFailed},
		{"if-match without etag", http.MethodGet, Conditions{IfMatch: list(`"abc"`)}, Validators{LastModified: lm}, PreconditionFailed},
		{"if-match beats if-unmodified-since", http.MethodGet, Conditions{IfMatch: list(`"abc"`), IfUnmodifiedSince: before}, strong, Proceed},
		{"if-unmodified-since later", http.MethodGet, Conditions{IfUnmodifiedSince: before}, strong, PreconditionFailed},
		{"if-unmodified-since equal", http.MethodGet, Conditions{IfUnmodifiedSince: lm}, strong, Proceed},
		{"if-unmodified-since without last-modified", http.MethodGet, Conditions{IfUnmodifiedSince: before}, Validators{ETag: `"abc"`}, Proceed},
		{"if-none-match get", http.MethodGet, Conditions{IfNoneMatch: list(`"abc"`)}, strong, NotModified},
		{"if-none-match head", http.MethodHead, Conditions{IfNoneMatch: list(`"abc"`)}, strong, NotModified},
		{"if-none-match weak on get", http.MethodGet, Conditions{IfNoneMatch: list(`"abc"`)}, weak, NotModified},
		{"if-none-match weak on put", http.MethodPut, Conditions{IfNoneMatch: list(`"abc"`)}, weak, Proceed},
		{"if-none-match strong on put", http.MethodPut, Conditions{IfNoneMatch: list(`"abc"`)}, strong, PreconditionFailed},
		{"if-none-match wildcard on put", http.MethodPut, Conditions{IfNoneMatch: wildcard}, strong, PreconditionFailed},
		{"if-none-match miss", http.MethodGet, Conditions{IfNoneMatch: list(`"zzz"`)}, strong, Proceed},
		{"if-none-match beats if-modified-since", http.MethodGet, Conditions{IfNoneMatch: list(`"zzz"`), IfModifiedSince: after}, strong, Proceed},
		{"if-modified-since equal", http.MethodGet, Conditions{IfModifiedSince: lm}, strong, NotModified},
		{"if-modified-since later", http.MethodGet, Conditions{IfModifiedSince: after}, strong, NotModified},
		{"if-modified-since earlier", http.MethodGet, Conditions{IfModifiedSince: before}, strong, Proceed},
		{"if-modified-since on put", http.MethodPut, Conditions{IfModifiedSince: after}, strong, Proceed},
		{"precondition failed beats not modified", http.MethodGet, Conditions{IfMatch: list(`"x"`), IfNoneMatch: list(`"abc"`)}, strong, PreconditionFailed},
		{"if-range stale", http.MethodGet, Conditions{IfRange: &IfRange{ETag: `"old"`}, Range: "bytes=0-1"}, strong, RangeHeaderIgnored},
		{"if-range stale on head", http.MethodHead, Conditions{IfRange: &IfRange{ETag: `"old"`}, Range: "bytes=0-1"}, strong, RangeHeaderIgnored},
		{"if-range stale without range", http.MethodGet, Conditions{IfRange: &IfRange{ETag: `"old"`}}, strong, Proceed},
		{"if-range fresh", http.MethodGet, Conditions{IfRange: &IfRange{ETag: `"abc"`}, Range: "bytes=0-1"}, strong, Proceed},
		{"not modified beats if-range", http.MethodGet, Conditions{IfNoneMatch: list(`"abc"`), IfRange: &IfRange{ETag: `"old"`}, Range: "bytes=0-1"}, strong, NotModified},
	}
	for _, tt := range tests {
		if got := Evaluate(tt.method, tt.c, tt.v); got != tt.want {
			t.Fatalf("%s: Evaluate = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestEvaluateSubsecondLastModified(t *testing.T) {
	lm := time.Date(2020, 1, 2, 3, 4, 5, 999, time.UTC)
	c := Conditions{IfModifiedSince: lm.Truncate(time.Second)}
	if got := Evaluate(http.MethodGet, c, Validators{LastModified: lm}); got != NotModified {
		t.Fatalf("Outcome is %s", got)
	}
}

func TestOutcomeStatus(t *testing.T) {
	if NotModified.Status() != 304 || PreconditionFailed.Status() != 412 || Proceed.Status() != 0 {
		t.Fatal("Unexpected outcome status")
	}
}
