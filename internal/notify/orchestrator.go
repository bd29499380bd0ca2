package notify

import (
	"context"

	"github.com/google/uuid"

	"examdesk/pkg/logx"
)

// Resolver yields the ordered recipient set for one fan-out pass.
type Resolver interface {
	Resolve(ctx context.Context) ([]string, error)
}

// Outcome reports one fan-out pass. Warnings carry quality downgrades
// (missing prompt image, MP3 fallback) that are not failures but should be
// visible to the caller.
type Outcome struct {
	DeliveryID string   `json:"delivery_id"`
	Attempted  []string `json:"attempted"`
	Delivered  []string `json:"delivered"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Orchestrator fans one response notification out to every configured
// recipient, sequentially and independently.
type Orchestrator struct {
	resolver   Resolver
	dispatcher *Dispatcher
	imagesDir  string
	log        logx.Logger
}

func NewOrchestrator(resolver Resolver, dispatcher *Dispatcher, imagesDir string, log logx.Logger) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{resolver: resolver, dispatcher: dispatcher, imagesDir: imagesDir, log: log}
}

// NotifyAll resolves recipients fresh, composes once, and delivers to each
// recipient in configured order. Recipients are independent administrative
// destinations: one failure never stops the rest. If any recipient failed,
// the returned error is an *AggregateError naming each one; resolution
// failure propagates as-is (nothing to fan out to).
func (o *Orchestrator) NotifyAll(ctx context.Context, info ResponseInfo) (Outcome, error) {
	recipients, err := o.resolver.Resolve(ctx)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		DeliveryID: uuid.NewString(),
		Attempted:  recipients,
	}
	log := o.log.With(logx.String("delivery_id", out.DeliveryID))

	payload, warnings := Compose(info, o.imagesDir, log)
	out.Warnings = append(out.Warnings, warnings...)

	failures := collect(recipients, func(recipient string) error {
		ws, err := o.dispatcher.Deliver(ctx, recipient, payload)
		out.Warnings = append(out.Warnings, ws...)
		if err != nil {
			log.Error("delivery failed", logx.String("recipient", recipient), logx.Err(err))
			return err
		}
		log.Info("delivered", logx.String("recipient", recipient))
		out.Delivered = append(out.Delivered, recipient)
		return nil
	})

	if len(failures) > 0 {
		return out, &AggregateError{Failures: failures}
	}
	return out, nil
}

// collect is the continue-on-error fold used for fan-out: fn runs for every
// recipient regardless of earlier failures, and all failures come back at
// the end.
func collect(recipients []string, fn func(recipient string) error) []DeliveryError {
	var failures []DeliveryError
	for _, r := range recipients {
		if err := fn(r); err != nil {
			failures = append(failures, DeliveryError{Recipient: r, Err: err})
		}
	}
	return failures
}
