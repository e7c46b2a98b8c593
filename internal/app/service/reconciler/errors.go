package reconciler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatflowers/coursepay/internal/app/service/enrollment"
)

var (
	ErrEventInFlight      = errors.New("webhook event is being processed by another delivery")
	ErrPriceNotConfigured = errors.New("subscription price is not configured")
	ErrUndecodableObject  = errors.New("webhook event object cannot be decoded")

	// errAlreadyProcessed rolls back a transaction that lost the race to
	// mark the event processed.
	errAlreadyProcessed = errors.New("webhook event already processed")
)

// MetadataError reports purchase metadata that cannot drive any mutation.
// Retrying the same event can never fix it.
type MetadataError struct {
	Missing []string
	Invalid []string
	Reason  string
}

func (e *MetadataError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing metadata: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid metadata: "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return "invalid metadata"
	}
	return strings.Join(parts, "; ")
}

func (e *MetadataError) empty() bool {
	return e.Reason == "" && len(e.Missing) == 0 && len(e.Invalid) == 0
}

// isPermanent reports whether err closes the event instead of leaving it for
// a retry.
func isPermanent(err error) bool {
	var me *MetadataError
	return errors.As(err, &me) ||
		errors.Is(err, ErrUndecodableObject) ||
		errors.Is(err, enrollment.ErrEnrollmentNotFound)
}

func undecodable(kind string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUndecodableObject, kind, err)
}
