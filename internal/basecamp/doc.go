// Package basecamp is a typed client for the Basecamp 3 REST API.
//
// All requests go to https://3.basecampapi.com/{accountID}/ and carry the
// caller's OAuth bearer token plus the User-Agent header Basecamp requires.
// List endpoints follow Link rel="next" pagination transparently. Rate
// limiting (429) surfaces as a RateLimitedError carrying the Retry-After
// interval so callers can decide whether to back off or report.
package basecamp
