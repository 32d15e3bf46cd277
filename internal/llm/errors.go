package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// ErrTimeout is returned (wrapped) when a single provider call exceeds the
// configured timeout.
var ErrTimeout = errors.New("model service timed out")

// StatusError is a non-2xx reply from a provider spoken to over plain HTTP.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Code, e.Body)
}

// IsTransient reports whether err is worth retrying: timeouts, network
// failures, rate limiting and server-side errors. Authentication and
// malformed-request failures are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if code, ok := statusCode(err); ok {
		return transientStatus(code)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode, true
	}
	var stErr *StatusError
	if errors.As(err, &stErr) {
		return stErr.Code, true
	}
	return 0, false
}

func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}
