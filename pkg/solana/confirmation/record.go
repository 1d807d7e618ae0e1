package confirmation

import (
	"time"

	"github.com/google/uuid"

	"github.com/code-payments/code-solana-client/pkg/solana"
)

// Status is the confirmation state of a submitted transaction.
type Status int

const (
	StatusPending Status = iota
	StatusProcessed
	StatusConfirmed
	StatusFinalized
	StatusFailed
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessed:
		return "processed"
	case StatusConfirmed:
		return "confirmed"
	case StatusFinalized:
		return "finalized"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusFinalized || s == StatusFailed || s == StatusExpired
}

// StatusForCommitment returns the status at which a transaction has reached
// the commitment level.
func StatusForCommitment(c solana.Commitment) Status {
	switch c {
	case solana.CommitmentProcessed:
		return StatusProcessed
	case solana.CommitmentConfirmed:
		return StatusConfirmed
	default:
		return StatusFinalized
	}
}

func normalizeTarget(c solana.Commitment) solana.Commitment {
	if c.Commitment == "" {
		return solana.CommitmentFinalized
	}
	return c
}

// Observation is a single view of a signature's progress on the network.
type Observation struct {
	// Status is nil if the signature has not been seen.
	Status *solana.SignatureStatus

	// BlockHeight is the current block height, or zero if unknown.
	BlockHeight uint64
}

// Record tracks a single submission attempt. It is owned by one tracking
// operation and is not safe for concurrent use.
type Record struct {
	Signature            solana.Signature
	AttemptID            uuid.UUID
	Target               solana.Commitment
	LastValidBlockHeight uint64

	Status Status
	Slot   uint64

	// Err is the execution failure when Status is StatusFailed.
	Err *solana.TransactionError

	SubmittedAt time.Time
	UpdatedAt   time.Time
}

// NewRecord returns a pending record for a freshly submitted signature. An
// empty target means finalized.
func NewRecord(sig solana.Signature, lastValidBlockHeight uint64, target solana.Commitment) *Record {
	target = normalizeTarget(target)

	now := time.Now()
	return &Record{
		Signature:            sig,
		AttemptID:            uuid.New(),
		Target:               target,
		LastValidBlockHeight: lastValidBlockHeight,
		Status:               StatusPending,
		SubmittedAt:          now,
		UpdatedAt:            now,
	}
}

// Apply transitions the record based on o, reporting whether the status
// changed. Status never moves backwards, and terminal records are left
// untouched.
//
// An execution error moves any non-terminal record to StatusFailed. A
// record that has never been seen expires once the block height passes the
// last valid block height of its blockhash.
func (r *Record) Apply(o Observation) bool {
	if r.Status.IsTerminal() {
		return false
	}

	next := r.Status
	if o.Status != nil {
		if o.Status.Slot > r.Slot {
			r.Slot = o.Status.Slot
		}

		if o.Status.Err != nil {
			r.Err = o.Status.Err
			next = StatusFailed
		} else if observed := statusOf(o.Status); observed > next {
			next = observed
		}
	} else if r.Status == StatusPending && r.LastValidBlockHeight > 0 && o.BlockHeight > r.LastValidBlockHeight {
		next = StatusExpired
	}

	if next == r.Status {
		return false
	}

	r.Status = next
	r.UpdatedAt = time.Now()
	return true
}

// Done reports whether tracking can stop, either because the record is
// terminal or because the target commitment was reached.
func (r *Record) Done() bool {
	return r.Status.IsTerminal() || r.Status >= StatusForCommitment(r.Target)
}

func statusOf(s *solana.SignatureStatus) Status {
	switch {
	case s.Finalized():
		return StatusFinalized
	case s.Confirmed():
		return StatusConfirmed
	default:
		return StatusProcessed
	}
}
