package pesapal

import (
	"strings"

	"github.com/Brymax254/safari-payments/internal/domain"
)

// MapStatus translates the Pesapal status vocabulary into the local payment
// lifecycle. The second return value is false for statuses that are not
// terminal - the payment stays in its current state and waits for the next
// notification.
func MapStatus(raw string) (domain.Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED":
		return domain.StatusSuccess, true
	case "FAILED", "INVALID":
		return domain.StatusFailed, true
	case "REVERSED":
		return domain.StatusCancelled, true
	default:
		return "", false
	}
}
