package llm

import (
	"net/http"

	"github.com/kart-io/docqa/pkg/errors"
)

// ClassifyHTTPStatus maps a provider HTTP error status to a coded error.
// 429 means the provider rate limited the call; 5xx and auth failures mean
// the provider cannot serve requests right now; anything else is treated as
// a malformed exchange.
func ClassifyHTTPStatus(status int, body string) *errors.Errno {
	switch {
	case status == http.StatusTooManyRequests:
		return errors.ErrRateLimited.WithMessagef("provider returned 429: %s", body)
	case status >= http.StatusInternalServerError:
		return errors.ErrProviderUnavailable.WithMessagef("provider returned %d: %s", status, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.ErrProviderUnavailable.WithMessagef("provider rejected credentials with %d", status)
	default:
		return errors.ErrProviderResponse.WithMessagef("provider returned %d: %s", status, body)
	}
}
