package notify

import (
	"fmt"
	"strings"
)

// DeliveryError is a per-recipient failure. It aborts the remaining payload
// steps for that recipient only.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s (%v)", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// AggregateError collects every per-recipient failure of one fan-out pass.
// The local save is never rolled back because of it.
type AggregateError struct {
	Failures []DeliveryError
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for i := range e.Failures {
		parts = append(parts, e.Failures[i].Error())
	}
	return fmt.Sprintf("delivery failed for %d recipient(s): %s",
		len(e.Failures), strings.Join(parts, " | "))
}
