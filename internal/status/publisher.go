// Package status publishes the per-file start/done/error lifecycle.
//
// Publishing is best-effort: a broker outage is logged and counted but never
// fails the encode it describes.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reel/internal/bus"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/protocol"
)

// Topics names the status topic per phase.
type Topics struct {
	Start string
	Done  string
	Error string
}

func (t Topics) forPhase(phase protocol.Phase) string {
	switch phase {
	case protocol.PhaseStart:
		return t.Start
	case protocol.PhaseDone:
		return t.Done
	default:
		return t.Error
	}
}

// Publisher emits status events on the configured topics.
type Publisher struct {
	bus     bus.Publisher
	topics  Topics
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPublisher builds a publisher. A zero timeout defaults to five seconds.
func NewPublisher(b bus.Publisher, topics Topics, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		bus:     b,
		topics:  topics,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "status"),
		metrics: m,
	}
}

// Start announces that work on input begins.
func (p *Publisher) Start(ctx context.Context, version int, jobID int64, input, output string) {
	p.publish(ctx, protocol.NewStart(version, jobID, input, output))
}

// Done announces that output was written.
func (p *Publisher) Done(ctx context.Context, version int, jobID int64, input, output string) {
	p.publish(ctx, protocol.NewDone(version, jobID, input, output))
}

// Error announces that input could not be encoded.
func (p *Publisher) Error(ctx context.Context, version int, jobID int64, input, output, detail string) {
	p.publish(ctx, protocol.NewError(version, jobID, input, output, detail))
}

// ErrAbandoned marks work given up before it began. Track publishes nothing
// for it when begin was never called.
var ErrAbandoned = errors.New("abandoned before start")

// Track runs fn and publishes start followed by exactly one terminal event.
// Start goes out when fn calls begin, so it can be held back until a scarce
// resource is acquired; if fn returns without calling begin, start is sent
// just before the terminal event. Returning ErrAbandoned without calling
// begin publishes nothing. A panic in fn is reported as an error event and
// returned as an error.
func (p *Publisher) Track(ctx context.Context, version int, jobID int64, input, output string, fn func(ctx context.Context, begin func()) error) (err error) {
	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		p.Start(ctx, version, jobID, input, output)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s: %v", input, r)
		}
		if !started && errors.Is(err, ErrAbandoned) {
			return
		}
		begin()
		if err != nil {
			p.Error(ctx, version, jobID, input, output, err.Error())
			return
		}
		p.Done(ctx, version, jobID, input, output)
	}()
	return fn(ctx, begin)
}

func (p *Publisher) publish(ctx context.Context, evt protocol.StatusEvent) {
	topic := p.topics.forPhase(evt.Phase)
	attrs := []logging.Attr{
		logging.String("phase", string(evt.Phase)),
		logging.String("topic", topic),
		logging.String("input", evt.InputPath),
		logging.Int64(logging.FieldJobID, evt.JobID),
	}
	payload, err := evt.Encode()
	if err != nil {
		p.fail(evt.Phase, "status encode failed", append(attrs, logging.Error(err)))
		return
	}
	if p.bus == nil {
		p.fail(evt.Phase, "status publish skipped; no broker", attrs)
		return
	}

	// Terminal events must go out even while the daemon shuts down.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.bus.Publish(pubCtx, topic, payload); err != nil {
		p.fail(evt.Phase, "status publish failed", append(attrs, logging.Error(err)))
		return
	}
	p.logger.Debug("status published", logging.Args(attrs...)...)
}

func (p *Publisher) fail(phase protocol.Phase, msg string, attrs []logging.Attr) {
	p.metrics.StatusPublishFailed(string(phase))
	logging.WarnWithContext(p.logger, msg, "status_publish_failed",
		append(attrs,
			logging.String(logging.FieldErrorHint, "check broker connectivity"),
			logging.String(logging.FieldImpact, "observers miss this lifecycle event; the encode is unaffected"),
		)...,
	)
}
