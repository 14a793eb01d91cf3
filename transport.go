package gerbang

import (
	"context"
	"net/http"
)

// PerformFunc executes one outbound call against the upstream service. It is
// injected by the caller and owns URL construction, credential attachment and
// the actual network I/O; gerbang only decides when to invoke it. The context
// is canceled once no caller is interested in the outcome anymore.
type PerformFunc func(ctx context.Context) (Response, error)

// Response is the opaque outcome of an upstream call. The body is forwarded
// untouched; gerbang inspects only the status code class and, on throttling
// responses, the Retry-After header.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// clone returns a deep copy so cache entries are never aliased by callers.
func (r Response) clone() Response {
	out := Response{StatusCode: r.StatusCode}
	if r.Header != nil {
		out.Header = r.Header.Clone()
	}
	if r.Body != nil {
		out.Body = make([]byte, len(r.Body))
		copy(out.Body, r.Body)
	}
	return out
}

func isSuccessStatus(code int) bool {
	return code >= 200 && code < 400
}

func isServerErrorStatus(code int) bool {
	return code >= 500
}

func isRateLimitedStatus(code int) bool {
	return code == http.StatusTooManyRequests
}

func isClientErrorStatus(code int) bool {
	return code >= 400 && code < 500 && !isRateLimitedStatus(code)
}
