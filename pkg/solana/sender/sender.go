// Package sender builds, signs, submits and confirms transactions.
package sender

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-solana-client/pkg/metrics"
	"github.com/code-payments/code-solana-client/pkg/retry"
	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/confirmation"
	"github.com/code-payments/code-solana-client/pkg/solana/system"
)

const (
	metricsStructName = "solana.sender"

	submissionEventName = "SolanaSubmission"
)

// Tracker waits for a submitted transaction to reach its commitment.
type Tracker interface {
	TrackSubmission(ctx context.Context, s confirmation.Submission) (*confirmation.Record, error)
}

// Request describes a transaction to build and send.
type Request struct {
	// Payer pays the fee and is the first signer. It defaults to the first
	// of Signers.
	Payer ed25519.PublicKey

	// Signers must cover every signing account of the instructions.
	Signers []ed25519.PrivateKey

	Instructions []solana.Instruction

	// Commitment to wait for. Defaults to the configured commitment.
	Commitment solana.Commitment

	// Timeout bounds the whole operation, including resubmissions. It is
	// ignored if it is later than the deadline of ctx.
	Timeout time.Duration

	SubmitOptions solana.SubmitOptions

	// Nonce is an optional durable nonce account. When set, its stored
	// blockhash replaces a recent one and an advance instruction is
	// prepended. Such transactions do not expire by block height.
	Nonce ed25519.PublicKey

	// NonceAuthority signs the nonce advance. It defaults to the payer.
	NonceAuthority ed25519.PublicKey
}

// Sender is the caller facing API for getting instructions onto the ledger.
type Sender struct {
	log     *logrus.Entry
	conf    *conf
	client  solana.Client
	tracker Tracker
}

// New returns a Sender that submits through client and confirms with tracker.
func New(client solana.Client, tracker Tracker, configProvider ConfigProvider) *Sender {
	return &Sender{
		log:     logrus.StandardLogger().WithField("type", "solana/sender"),
		conf:    configProvider(),
		client:  client,
		tracker: tracker,
	}
}

// BuildAndSend fetches a recent blockhash, compiles and signs the
// instructions, submits the transaction and waits until it reaches the
// requested commitment.
//
// Failures are returned as a *SubmissionError. Expired transactions are
// rebuilt and resubmitted up to the configured number of times, all under
// the same attempt id.
func (s *Sender) BuildAndSend(ctx context.Context, req Request) (*confirmation.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "BuildAndSend")
	defer tracer.End()

	attemptID := uuid.New()
	log := s.log.WithFields(logrus.Fields{
		"method":     "BuildAndSend",
		"attempt_id": attemptID.String(),
	})

	payer, err := validateRequest(&req)
	if err != nil {
		tracer.OnError(err)
		return nil, &SubmissionError{Kind: KindInvalid, Err: err}
	}

	if req.Commitment.Commitment == "" {
		req.Commitment = s.commitment(ctx, s.conf.defaultCommitment.Get(ctx), solana.CommitmentConfirmed)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.conf.defaultTimeout.Get(ctx)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var record *confirmation.Record
	attempts, err := retry.Retry(
		ctx,
		func() error {
			var err error
			record, err = s.send(ctx, log, attemptID, payer, req)
			return err
		},
		retry.RetriableIf(func(err error) bool {
			kind, _ := KindOf(err)
			return kind == KindExpired
		}),
		retry.Limit(uint(s.conf.maxResubmissions.Get(ctx))+1),
	)

	event := map[string]interface{}{
		"attempt_id": attemptID.String(),
		"attempts":   attempts,
		"commitment": req.Commitment.Commitment,
	}
	if err != nil {
		tracer.OnError(err)

		var submissionErr *SubmissionError
		if errors.As(err, &submissionErr) {
			event["kind"] = submissionErr.Kind.String()
			event["signature"] = submissionErr.Signature.String()
		}
		metrics.RecordEvent(ctx, submissionEventName, event)
		return record, err
	}

	event["kind"] = "success"
	event["signature"] = record.Signature.String()
	metrics.RecordEvent(ctx, submissionEventName, event)

	return record, nil
}

func (s *Sender) send(ctx context.Context, log *logrus.Entry, attemptID uuid.UUID, payer ed25519.PublicKey, req Request) (*confirmation.Record, error) {
	bh, instructions, err := s.prepare(ctx, payer, req)
	if err != nil {
		return nil, err
	}

	msg, err := solana.Compile(payer, bh.Blockhash, instructions...)
	if err != nil {
		return nil, &SubmissionError{Kind: KindInvalid, Err: errors.Wrap(err, "failed to compile message")}
	}

	txn, err := solana.SignMessage(msg, req.Signers...)
	if err != nil {
		return nil, &SubmissionError{Kind: KindInvalid, Err: errors.Wrap(err, "failed to sign message")}
	}

	if size := len(txn.Marshal()); size > solana.MaxTransactionSize {
		return nil, &SubmissionError{Kind: KindInvalid, Err: errors.Wrapf(ErrTransactionTooLarge, "size %d", size)}
	}

	sig := txn.Signature()
	log = log.WithField("signature", sig.String())

	submittedAt := time.Now()
	if _, err := s.client.SubmitTransaction(ctx, txn, req.SubmitOptions); err != nil {
		log.WithError(err).Warn("failed to submit transaction")
		return nil, classifyCallError(sig, err)
	}

	log.WithField("last_valid_block_height", bh.LastValidBlockHeight).Debug("transaction submitted")

	record, err := s.tracker.TrackSubmission(ctx, confirmation.Submission{
		Signature:            sig,
		LastValidBlockHeight: bh.LastValidBlockHeight,
		Commitment:           req.Commitment,
		AttemptID:            attemptID,
		SubmittedAt:          submittedAt,
	})
	switch {
	case errors.Is(err, confirmation.ErrTimeout):
		return record, &SubmissionError{Kind: KindTimeout, Signature: sig, Record: record, Err: err}
	case err != nil:
		submissionErr := classifyCallError(sig, err)
		submissionErr.Record = record
		return record, submissionErr
	}

	switch record.Status {
	case confirmation.StatusFailed:
		return record, &SubmissionError{Kind: KindExecutionFailed, Signature: sig, Record: record, Err: record.Err}
	case confirmation.StatusExpired:
		log.Info("transaction expired")
		return record, &SubmissionError{Kind: KindExpired, Signature: sig, Record: record, Err: ErrExpired}
	}

	return record, nil
}

// prepare returns the blockhash to sign over and the instructions to compile.
func (s *Sender) prepare(ctx context.Context, payer ed25519.PublicKey, req Request) (*solana.LatestBlockhash, []solana.Instruction, error) {
	if req.Nonce == nil {
		bh, err := s.client.GetLatestBlockhash(ctx, s.blockhashCommitment(ctx))
		if err != nil {
			return nil, nil, classifyCallError(solana.Signature{}, errors.Wrap(err, "failed to get recent blockhash"))
		}
		return &bh, req.Instructions, nil
	}

	info, err := s.client.GetAccountInfo(ctx, req.Nonce, s.blockhashCommitment(ctx))
	if errors.Is(err, solana.ErrNoAccountInfo) {
		return nil, nil, &SubmissionError{Kind: KindInvalid, Err: errors.Wrap(err, "nonce account not found")}
	} else if err != nil {
		return nil, nil, classifyCallError(solana.Signature{}, errors.Wrap(err, "failed to get nonce account"))
	}

	nonce, err := system.GetNonceAccount(*info)
	if err != nil {
		return nil, nil, &SubmissionError{Kind: KindInvalid, Err: errors.Wrap(err, "invalid nonce account")}
	}

	authority := req.NonceAuthority
	if authority == nil {
		authority = payer
	}

	advance, err := system.AdvanceNonce(system.AdvanceNonceArgs{
		Nonce:     req.Nonce,
		Authority: authority,
	})
	if err != nil {
		return nil, nil, &SubmissionError{Kind: KindInvalid, Err: err}
	}

	instructions := make([]solana.Instruction, 0, len(req.Instructions)+1)
	instructions = append(instructions, advance)
	instructions = append(instructions, req.Instructions...)

	return &solana.LatestBlockhash{Blockhash: nonce.Blockhash}, instructions, nil
}

// EstimateFee returns the fee, in lamports, of a transaction paid by payer
// containing the instructions.
func (s *Sender) EstimateFee(ctx context.Context, payer ed25519.PublicKey, instructions ...solana.Instruction) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "EstimateFee")
	defer tracer.End()

	commitment := s.blockhashCommitment(ctx)

	bh, err := s.client.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		tracer.OnError(err)
		return 0, errors.Wrap(err, "failed to get recent blockhash")
	}

	msg, err := solana.Compile(payer, bh.Blockhash, instructions...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to compile message")
	}

	fee, err := s.client.GetFeeForMessage(ctx, msg, commitment)
	if err != nil {
		tracer.OnError(err)
		return 0, errors.Wrap(err, "failed to get fee for message")
	}
	if fee == nil {
		return 0, ErrFeeUnavailable
	}

	return *fee, nil
}

func (s *Sender) blockhashCommitment(ctx context.Context) solana.Commitment {
	return s.commitment(ctx, s.conf.blockhashCommitment.Get(ctx), solana.CommitmentConfirmed)
}

func (s *Sender) commitment(ctx context.Context, value string, fallback solana.Commitment) solana.Commitment {
	c, err := solana.CommitmentFromString(value)
	if err != nil {
		s.log.WithError(err).Warn("invalid commitment config, using fallback")
		return fallback
	}
	return c
}

func validateRequest(req *Request) (ed25519.PublicKey, error) {
	if len(req.Instructions) == 0 {
		return nil, solana.ErrEmptyInstructions
	}

	for _, signer := range req.Signers {
		if len(signer) != ed25519.PrivateKeySize {
			return nil, solana.ErrInvalidSigner
		}
	}

	payer := req.Payer
	if payer == nil {
		if len(req.Signers) == 0 {
			return nil, solana.NewValidationError("payer", "required when there are no signers")
		}
		payer = req.Signers[0].Public().(ed25519.PublicKey)
	}

	if err := solana.ValidateAddress("payer", payer); err != nil {
		return nil, err
	}

	if req.Nonce != nil {
		if err := solana.ValidateAddress("nonce", req.Nonce); err != nil {
			return nil, err
		}
	}
	if req.NonceAuthority != nil {
		if req.Nonce == nil {
			return nil, solana.NewValidationError("nonce_authority", "set without a nonce account")
		}
		if err := solana.ValidateAddress("nonce_authority", req.NonceAuthority); err != nil {
			return nil, err
		}
	}

	return payer, nil
}

// classifyCallError maps a client or tracker failure to a Kind. Cancellation
// is reported as KindTimeout, with the context error left in the chain: the
// transaction may or may not have been received.
func classifyCallError(sig solana.Signature, err error) *SubmissionError {
	submissionErr := &SubmissionError{Kind: KindTransport, Signature: sig, Err: err}

	var rpcErr *solana.RPCError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		submissionErr.Kind = KindTimeout
	case errors.As(err, &rpcErr):
		submissionErr.Kind = KindRejected
	}

	return submissionErr
}
