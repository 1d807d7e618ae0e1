package system

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/binary"
)

// NonceAccountSize is the size of a nonce account's data.
const NonceAccountSize = 80

type NonceVersion uint32

const (
	NonceVersionLegacy NonceVersion = iota
	NonceVersionCurrent
)

type NonceState uint32

const (
	NonceStateUninitialized NonceState = iota
	NonceStateInitialized
)

var (
	ErrInvalidAccountSize  = errors.New("invalid nonce account size")
	ErrInvalidAccountOwner = errors.New("nonce account not owned by the system program")
	ErrNonceUninitialized  = errors.New("nonce account is not initialized")
)

// NonceAccount is the state of a durable nonce account.
//
// Reference: https://github.com/solana-labs/solana/blob/da00b39f4f92fb16417bd2d8bd218a04a34527b8/sdk/program/src/nonce/state/current.rs#L8
type NonceAccount struct {
	Version              NonceVersion
	State                NonceState
	Authority            ed25519.PublicKey
	Blockhash            solana.Blockhash
	LamportsPerSignature uint64
}

func (a NonceAccount) Marshal() []byte {
	return binary.NewWriter(NonceAccountSize).
		Uint32(uint32(a.Version)).
		Uint32(uint32(a.State)).
		Key(a.Authority).
		Raw(a.Blockhash[:]).
		Uint64(a.LamportsPerSignature).
		Bytes()
}

func (a *NonceAccount) Unmarshal(data []byte) error {
	if len(data) != NonceAccountSize {
		return errors.Wrapf(ErrInvalidAccountSize, "%d bytes", len(data))
	}

	r := binary.NewReader(data)
	a.Version = NonceVersion(r.Uint32())
	a.State = NonceState(r.Uint32())
	a.Authority = r.Key()
	copy(a.Blockhash[:], r.Key())
	a.LamportsPerSignature = r.Uint64()

	return r.Err()
}

// GetNonceAccount parses an initialized nonce account from its account info.
func GetNonceAccount(info solana.AccountInfo) (*NonceAccount, error) {
	if !info.Owner.Equal(ProgramKey) {
		return nil, ErrInvalidAccountOwner
	}

	var a NonceAccount
	if err := a.Unmarshal(info.Data); err != nil {
		return nil, err
	}
	if a.State != NonceStateInitialized {
		return nil, ErrNonceUninitialized
	}

	return &a, nil
}
