// Package llm provides one-shot text generation over langchaingo providers
// and the Gemini API.
package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// ErrProviderRejected marks provider errors that retrying cannot fix: bad
// credentials, exhausted quota or billing problems. The API answers them with
// 503 instead of 500.
var ErrProviderRejected = errors.New("model provider rejected the request")

// rejectionMarkers match providers whose SDKs only return formatted strings.
var rejectionMarkers = []string{
	"api key not valid",
	"invalid api key",
	"credit balance",
	"quota",
	"billing",
	"rate limit",
	"permission_denied",
	"unauthorized",
	"authentication",
}

func rejected(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range rejectionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return strings.Contains(msg, " 401") || strings.Contains(msg, " 403")
}

// classify tags rejections with ErrProviderRejected and leaves other errors
// unchanged.
func classify(err error) error {
	if rejected(err) {
		return fmt.Errorf("%w: %w", ErrProviderRejected, err)
	}
	return err
}
