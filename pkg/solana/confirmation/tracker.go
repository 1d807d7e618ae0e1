// Package confirmation tracks submitted transactions until they reach a
// commitment level or can no longer make progress.
package confirmation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/code-solana-client/pkg/metrics"
	"github.com/code-payments/code-solana-client/pkg/solana"
)

const (
	metricsStructName = "solana.confirmation.tracker"

	confirmationEventName     = "SolanaConfirmation"
	timeToConfirmedMetricName = "Solana/Confirmation/TimeToTarget"
)

var (
	// ErrTimeout indicates the caller's deadline passed before the record
	// reached a terminal state or its target commitment. It is distinct
	// from StatusExpired, which means the transaction can never land.
	ErrTimeout = errors.New("timed out waiting for confirmation")

	// ErrObserverStopped indicates the observer ended without an error
	// before tracking completed.
	ErrObserverStopped = errors.New("observer stopped unexpectedly")
)

// Observer produces observations for a signature until ctx is done. Send
// must not block once ctx is done.
type Observer interface {
	Observe(ctx context.Context, sig solana.Signature, target solana.Commitment, observations chan<- Observation) error
}

// Submission identifies a submitted transaction to track.
type Submission struct {
	Signature            solana.Signature
	LastValidBlockHeight uint64
	Commitment           solana.Commitment

	// AttemptID correlates logs across resubmissions. A new id is generated
	// when unset.
	AttemptID uuid.UUID

	// SubmittedAt defaults to the time tracking starts.
	SubmittedAt time.Time
}

// Tracker drives an Observer to move submission records through their
// confirmation states.
type Tracker struct {
	log      *logrus.Entry
	conf     *conf
	observer Observer
}

// NewTracker returns a tracker using the observer to watch signatures.
func NewTracker(observer Observer, configProvider ConfigProvider) *Tracker {
	return &Tracker{
		log:      logrus.StandardLogger().WithField("type", "solana/confirmation/tracker"),
		conf:     configProvider(),
		observer: observer,
	}
}

// Track waits until the signature reaches the target commitment or a
// terminal state. Failed and expired transactions are reported through the
// record's status, not as an error.
//
// If ctx has no deadline, the configured default timeout applies. When the
// deadline passes, ErrTimeout is returned along with the last known record.
// Cancellation returns ctx.Err().
func (t *Tracker) Track(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64, target solana.Commitment) (*Record, error) {
	return t.track(ctx, NewRecord(sig, lastValidBlockHeight, target))
}

// TrackSubmission is like Track, using the details of s.
func (t *Tracker) TrackSubmission(ctx context.Context, s Submission) (*Record, error) {
	r := NewRecord(s.Signature, s.LastValidBlockHeight, s.Commitment)
	if s.AttemptID != uuid.Nil {
		r.AttemptID = s.AttemptID
	}
	if !s.SubmittedAt.IsZero() {
		r.SubmittedAt = s.SubmittedAt
	}
	return t.track(ctx, r)
}

// TrackAll tracks the submissions concurrently. Records are returned in the
// order of the submissions. The first error cancels the remaining tracking
// operations and is returned along with whatever records were completed.
func (t *Tracker) TrackAll(ctx context.Context, submissions ...Submission) ([]*Record, error) {
	records := make([]*Record, len(submissions))

	g, ctx := errgroup.WithContext(ctx)
	if limit := t.conf.maxConcurrency.Get(ctx); limit > 0 {
		g.SetLimit(int(limit))
	}

	for i, s := range submissions {
		i, s := i, s
		g.Go(func() error {
			r, err := t.TrackSubmission(ctx, s)
			records[i] = r
			if err != nil {
				return errors.Wrapf(err, "failed to track %s", s.Signature)
			}
			return nil
		})
	}

	return records, g.Wait()
}

func (t *Tracker) track(ctx context.Context, r *Record) (*Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Track")
	defer tracer.End()

	log := t.log.WithFields(logrus.Fields{
		"method":     "track",
		"signature":  r.Signature.String(),
		"attempt_id": r.AttemptID.String(),
		"target":     r.Target.Commitment,
	})

	if _, ok := ctx.Deadline(); !ok {
		if timeout := t.conf.defaultTimeout.Get(ctx); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
	}

	observeCtx, stopObserving := context.WithCancel(ctx)
	observations := make(chan Observation)
	observerDone := make(chan error, 1)

	go func() {
		observerDone <- t.observer.Observe(observeCtx, r.Signature, r.Target, observations)
	}()

	// The observer is always torn down before returning.
	stopped := false
	defer func() {
		stopObserving()
		if !stopped {
			<-observerDone
		}
	}()

	for {
		select {
		case o := <-observations:
			if !r.Apply(o) {
				continue
			}

			log.WithFields(logrus.Fields{
				"status": r.Status.String(),
				"slot":   r.Slot,
			}).Debug("status changed")

			if r.Done() {
				t.onDone(ctx, log, r)
				return r, nil
			}
		case err := <-observerDone:
			stopped = true

			if ctx.Err() != nil {
				return r, t.onContextDone(ctx, log, r)
			}
			if err == nil {
				err = ErrObserverStopped
			}

			tracer.OnError(err)
			log.WithError(err).Warn("observer failed")
			return r, err
		case <-ctx.Done():
			return r, t.onContextDone(ctx, log, r)
		}
	}
}

func (t *Tracker) onDone(ctx context.Context, log *logrus.Entry, r *Record) {
	elapsed := time.Since(r.SubmittedAt)

	entry := log.WithFields(logrus.Fields{
		"status":  r.Status.String(),
		"slot":    r.Slot,
		"elapsed": elapsed,
	})
	switch r.Status {
	case StatusFailed:
		entry.WithError(r.Err).Warn("transaction failed")
	case StatusExpired:
		entry.Warn("transaction expired")
	default:
		entry.Info("transaction reached target commitment")
		metrics.RecordDuration(ctx, timeToConfirmedMetricName, elapsed)
	}

	event := map[string]interface{}{
		"signature":  r.Signature.String(),
		"attempt_id": r.AttemptID.String(),
		"status":     r.Status.String(),
		"target":     r.Target.Commitment,
		"slot":       r.Slot,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if r.Err != nil {
		event["error"] = r.Err.Error()
	}
	metrics.RecordEvent(ctx, confirmationEventName, event)
}

func (t *Tracker) onContextDone(ctx context.Context, log *logrus.Entry, r *Record) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.WithField("status", r.Status.String()).Info("timed out waiting for confirmation")
		return ErrTimeout
	}
	return ctx.Err()
}
