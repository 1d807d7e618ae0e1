package confirmation

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-solana-client/pkg/retry"
	"github.com/code-payments/code-solana-client/pkg/retry/backoff"
	"github.com/code-payments/code-solana-client/pkg/solana"
)

var (
	// ErrPollLimitReached indicates the poller gave up after the configured
	// number of polls.
	ErrPollLimitReached = errors.New("poll limit reached")

	errKeepPolling = errors.New("keep polling")
	errPollFailed  = errors.New("poll failed")
)

// Poller observes signatures by polling getSignatureStatuses, batched with
// getBlockHeight for expiry. Failed polls are logged and retried on the next
// interval.
type Poller struct {
	log    *logrus.Entry
	conf   *conf
	client solana.Client
}

// NewPoller returns an Observer that polls through client.
func NewPoller(client solana.Client, configProvider ConfigProvider) *Poller {
	return &Poller{
		log:    logrus.StandardLogger().WithField("type", "solana/confirmation/poller"),
		conf:   configProvider(),
		client: client,
	}
}

// Observe implements Observer.Observe.
func (p *Poller) Observe(ctx context.Context, sig solana.Signature, _ solana.Commitment, observations chan<- Observation) error {
	log := p.log.WithFields(logrus.Fields{
		"method":    "Observe",
		"signature": sig.String(),
	})

	strategies := []retry.Strategy{
		retry.RetriableErrors(errKeepPolling, errPollFailed),
	}
	if limit := p.conf.pollLimit.Get(ctx); limit > 0 {
		strategies = append(strategies, retry.Limit(uint(limit)))
	}
	strategies = append(strategies, retry.Backoff(pollBackoff(ctx, p.conf), p.conf.pollBackoffCap.Get(ctx)))

	attempts, err := retry.Retry(
		ctx,
		func() error {
			o, err := p.poll(ctx, sig)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				log.WithError(err).Debug("poll failed")
				return errPollFailed
			}

			if !send(ctx, observations, o) {
				return ctx.Err()
			}
			return errKeepPolling
		},
		strategies...,
	)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, errKeepPolling) || errors.Is(err, errPollFailed) {
		return errors.Wrapf(ErrPollLimitReached, "after %d polls", attempts)
	}
	return err
}

func (p *Poller) poll(ctx context.Context, sig solana.Signature) (Observation, error) {
	if timeout := p.conf.pollTimeout.Get(ctx); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results, err := p.client.Batch(
		ctx,
		solana.NewCall(solana.MethodGetSignatureStatuses, []string{sig.String()}),
		solana.NewCall(solana.MethodGetBlockHeight, solana.CommitmentConfirmed),
	)
	if err != nil {
		return Observation{}, err
	}

	if results[0].Err != nil {
		return Observation{}, results[0].Err
	}

	statuses, ok := results[0].Value.([]*solana.SignatureStatus)
	if !ok || len(statuses) != 1 {
		return Observation{}, errors.Errorf("unexpected signature statuses result: %v", results[0].Value)
	}

	o := Observation{Status: statuses[0]}

	// Without a block height, the status is still worth reporting.
	if results[1].Err == nil {
		if height, ok := results[1].Value.(uint64); ok {
			o.BlockHeight = height
		}
	}

	return o, nil
}

func pollBackoff(ctx context.Context, c *conf) backoff.Strategy {
	interval := c.pollInterval.Get(ctx)

	switch c.pollBackoffCurve.Get(ctx) {
	case CurveLinear:
		return backoff.Linear(interval)
	case CurveExponential:
		return backoff.BinaryExponential(interval)
	default:
		return backoff.Constant(interval)
	}
}

func send(ctx context.Context, observations chan<- Observation, o Observation) bool {
	select {
	case observations <- o:
		return true
	case <-ctx.Done():
		return false
	}
}
