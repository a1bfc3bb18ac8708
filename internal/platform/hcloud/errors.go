package hcloud

import (
	"strings"

	hcloudlib "github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// isRetryableAPIError reports whether an API error is transient.
// Rate limits and locked resources clear on their own; anything else
// is handed back to the caller.
func isRetryableAPIError(err error) bool {
	if err == nil {
		return false
	}
	if hcloudlib.IsError(err, hcloudlib.ErrorCodeRateLimitExceeded) ||
		hcloudlib.IsError(err, hcloudlib.ErrorCodeConflict) ||
		hcloudlib.IsError(err, hcloudlib.ErrorCodeLocked) ||
		hcloudlib.IsError(err, hcloudlib.ErrorCodeResourceUnavailable) {
		return true
	}
	// Some transient failures surface without a typed code.
	msg := err.Error()
	return strings.Contains(msg, "locked") || strings.Contains(msg, "is busy")
}

func isNotFound(err error) bool {
	return hcloudlib.IsError(err, hcloudlib.ErrorCodeNotFound)
}
