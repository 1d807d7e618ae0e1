package token

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/binary"
)

var (
	ErrInvalidAccountSize   = errors.New("invalid token account size")
	ErrInvalidAccountOwner  = errors.New("account is not owned by the token program")
	ErrAccountUninitialized = errors.New("token account is not initialized")
	ErrMintMismatch         = errors.New("token account belongs to a different mint")
)

type AccountState byte

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L125
const AccountSize = 165

// Account is the state of a token account. Optional keys are nil when unset.
type Account struct {
	Mint     ed25519.PublicKey
	Owner    ed25519.PublicKey
	Amount   uint64
	Delegate ed25519.PublicKey
	State    AccountState
	// IsNative holds the rent exempt reserve of a wrapped SOL account.
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  ed25519.PublicKey
}

func (a *Account) Marshal() []byte {
	w := binary.NewWriter(AccountSize).
		Key(a.Mint).
		Key(a.Owner).
		Uint64(a.Amount)
	putOptionalKey(w, a.Delegate)
	w.Uint8(uint8(a.State))
	if a.IsNative != nil {
		w.Uint32(1).Uint64(*a.IsNative)
	} else {
		w.Uint32(0).Uint64(0)
	}
	w.Uint64(a.DelegatedAmount)
	putOptionalKey(w, a.CloseAuthority)

	return w.Bytes()
}

func (a *Account) Unmarshal(b []byte) error {
	if len(b) != AccountSize {
		return errors.Wrapf(ErrInvalidAccountSize, "%d (expected %d)", len(b), AccountSize)
	}

	r := binary.NewReader(b)
	a.Mint = r.Key()
	a.Owner = r.Key()
	a.Amount = r.Uint64()
	a.Delegate = getOptionalKey(r)
	a.State = AccountState(r.Uint8())

	a.IsNative = nil
	if r.Uint32() != 0 {
		reserve := r.Uint64()
		a.IsNative = &reserve
	} else {
		r.Uint64()
	}

	a.DelegatedAmount = r.Uint64()
	a.CloseAuthority = getOptionalKey(r)

	return r.Err()
}

// GetAccount parses an initialized token account of mint from its account
// info.
func GetAccount(info solana.AccountInfo, mint ed25519.PublicKey) (*Account, error) {
	if !info.Owner.Equal(ProgramKey) {
		return nil, ErrInvalidAccountOwner
	}

	var a Account
	if err := a.Unmarshal(info.Data); err != nil {
		return nil, err
	}
	if a.State == AccountStateUninitialized {
		return nil, ErrAccountUninitialized
	}
	if !a.Mint.Equal(mint) {
		return nil, ErrMintMismatch
	}

	return &a, nil
}

func putOptionalKey(w *binary.Writer, key ed25519.PublicKey) {
	if len(key) > 0 {
		w.Uint32(1).Key(key)
	} else {
		w.Uint32(0).Key(nil)
	}
}

func getOptionalKey(r *binary.Reader) ed25519.PublicKey {
	present := r.Uint32() != 0
	key := r.Key()
	if !present {
		return nil
	}
	return key
}
