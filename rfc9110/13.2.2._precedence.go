package rfc9110

import "net/http"

// Outcome is the result of evaluating the conditional request header fields
// of a request against the current validators of the selected representation.
type Outcome int

const (
	// Proceed means the request should be handled normally.
	Proceed Outcome = iota
	// NotModified means a 304 response is due (GET and HEAD only).
	NotModified
	// PreconditionFailed means a 412 response is due.
	PreconditionFailed
	// RangeHeaderIgnored means the request proceeds, but as if it carried no
	// Range field, because its If-Range validator is stale.
	RangeHeaderIgnored
)

func (o Outcome) String() string {
	switch o {
	case Proceed:
		return "proceed"
	case NotModified:
		return "not-modified"
	case PreconditionFailed:
		return "precondition-failed"
	case RangeHeaderIgnored:
		return "range-ignored"
	}
	return "unknown"
}

// Status returns the response status implied by o, or 0 when the request
// proceeds.
func (o Outcome) Status() int {
	switch o {
	case NotModified:
		return http.StatusNotModified
	case PreconditionFailed:
		return http.StatusPreconditionFailed
	}
	return 0
}

// §  13.2.2.  Precedence of Preconditions
// §
// §     When more than one conditional request header field is present in a
// §     request, the order in which the fields are evaluated becomes
// §     important.  In practice, the fields defined in this document are
// §     consistently implemented in a single, logical order, since "lost
// §     update" preconditions have more strict requirements than cache
// §     validation, a validated cache is more efficient than a partial
// §     response, and entity tags are presumed to be more accurate than date
// §     validators.
// §
// §     A recipient cache or origin server MUST evaluate the request
// §     preconditions defined by this specification in the following order:
// §
// §     1.  When recipient is the origin server and If-Match is present,
// §         evaluate the If-Match precondition:
// §
// §         *  if true, continue to step 3
// §
// §         *  if false, respond 412 (Precondition Failed) unless it can be
// §            determined that the state-changing request has already
// §            succeeded (see Section 13.1.1)
// §
// §     2.  When recipient is the origin server, If-Match is not present, and
// §         If-Unmodified-Since is present, evaluate the If-Unmodified-Since
// §         precondition:
// §
// §         *  if true, continue to step 3
// §
// §         *  if false, respond 412 (Precondition Failed) unless it can be
// §            determined that the state-changing request has already
// §            succeeded (see Section 13.1.4)
// §
// §     3.  When If-None-Match is present, evaluate the If-None-Match
// §         precondition:
// §
// §         *  if true, continue to step 5
// §
// §         *  if false for GET/HEAD, respond 304 (Not Modified)
// §
// §         *  if false for other methods, respond 412 (Precondition Failed)
// §
// §     4.  When the method is GET or HEAD, If-None-Match is not present, and
// §         If-Modified-Since is present, evaluate the If-Modified-Since
// §         precondition:
// §
// §         *  if true, continue to step 5
// §
// §         *  if false, respond 304 (Not Modified)
// §
// §     5.  When the method is GET and both Range and If-Range are present,
// §         evaluate the If-Range precondition:
// §
// §         *  if true and the Range is applicable to the selected
// §            representation, respond 206 (Partial Content)
// §
// §         *  otherwise, ignore the Range header field and respond 200 (OK)
// §
// §     6.  Otherwise,
// §
// §         *  perform the requested method and respond according to its
// §            success or failure.

// Evaluate applies the precondition precedence to a request with the given
// method and conditions. It is a pure function and performs no I/O.
//
// If-Range is evaluated for HEAD as well as GET so that a HEAD response
// carries the same fields as the equivalent GET.
func Evaluate(method string, c Conditions, v Validators) Outcome {
	ch := checkIfMatch(c, v)
	if ch == condNone {
		ch = checkIfUnmodifiedSince(c, v)
	}
	if ch == condFalse {
		return PreconditionFailed
	}

	switch checkIfNoneMatch(method, c, v) {
	case condFalse:
		if isSafeRetrieval(method) {
			return NotModified
		}
		return PreconditionFailed
	case condNone:
		if checkIfModifiedSince(method, c, v) == condFalse {
			return NotModified
		}
	}

	if isSafeRetrieval(method) && c.Range != "" && !IfRangeMatches(c.IfRange, v) {
		return RangeHeaderIgnored
	}
	return Proceed
}
