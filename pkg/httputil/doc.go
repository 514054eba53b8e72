// Package httputil provides HTTP helpers for the remote image fetcher.
//
// # Retry
//
// [Retry] wraps an operation with automatic retry for transient failures.
// Only errors wrapped in [RetryableError] are retried:
//
//   - Network errors (connection refused, reset, timeouts)
//   - 5xx server errors
//   - 429 rate limit responses
//
// Client errors such as 404 fail immediately. The delay doubles after each
// failed attempt:
//
//	err := httputil.Retry(ctx, 3, 200*time.Millisecond, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    ...
//	})
//
// A server's Retry-After, parsed with [RetryAfter] and stored in
// RetryableError.After, replaces the backoff for that attempt. No wait
// exceeds [MaxDelay].
package httputil
