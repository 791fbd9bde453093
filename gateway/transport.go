package gateway

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Doer executes an HTTP request. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req).
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// RateLimited wraps next so that every request waits for limiter first. A
// wait that fails (for example because the context ended) surfaces as a
// transport failure without reaching next.
func RateLimited(next Doer, limiter *rate.Limiter) Doer {
	if next == nil {
		next = http.DefaultClient
	}
	if limiter == nil {
		return next
	}
	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		if err := limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
		return next.Do(req)
	})
}
