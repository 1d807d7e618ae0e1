package sender

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/confirmation"
)

var (
	ErrTransactionTooLarge = errors.Errorf("transaction exceeds %d bytes", solana.MaxTransactionSize)
	ErrExpired             = errors.New("blockhash expired before the transaction landed")
	ErrFeeUnavailable      = errors.New("fee unavailable for message")
)

// Kind classifies why a submission did not reach its target commitment.
type Kind int

const (
	// KindInvalid means the transaction never reached the network. The
	// request must be changed before retrying.
	KindInvalid Kind = iota

	// KindTransport means the network could not be reached, or its reply
	// could not be read. The transaction may or may not have been received.
	KindTransport

	// KindRejected means the node refused the transaction, including
	// preflight simulation failures.
	KindRejected

	// KindExecutionFailed means the transaction landed and failed. Its fee
	// was still charged.
	KindExecutionFailed

	// KindExpired means the transaction can never land. It may be rebuilt
	// with a fresh blockhash, resigned and resubmitted.
	KindExpired

	// KindTimeout means the caller's deadline passed, or the caller
	// cancelled, while the transaction was still in flight. It may still
	// land. errors.Is distinguishes context.Canceled from a deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	case KindExecutionFailed:
		return "execution failed"
	case KindExpired:
		return "expired"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// SubmissionError is returned by Sender when a request does not reach its
// target commitment.
type SubmissionError struct {
	Kind Kind

	// Signature is zero for KindInvalid.
	Signature solana.Signature

	// Record is the last known confirmation state, if tracking started.
	Record *confirmation.Record

	Err error
}

func (e *SubmissionError) Error() string {
	if e.Kind == KindInvalid {
		return fmt.Sprintf("submission %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("submission %s (%s): %v", e.Kind, e.Signature, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the same request may succeed if sent again.
func (e *SubmissionError) Retriable() bool {
	switch e.Kind {
	case KindExpired:
		return true
	case KindTransport, KindRejected:
		return solana.IsRetriable(e.Err)
	default:
		return false
	}
}

// KindOf returns the kind of a *SubmissionError in err's chain.
func KindOf(err error) (Kind, bool) {
	var submissionErr *SubmissionError
	if errors.As(err, &submissionErr) {
		return submissionErr.Kind, true
	}
	return 0, false
}
