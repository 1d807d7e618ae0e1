package solana

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrIncorrectProgram     = errors.New("incorrect program")
	ErrIncorrectInstruction = errors.New("incorrect instruction")
	ErrValidation           = errors.New("invalid instruction parameters")
)

// ValidationError is returned by instruction producers when the supplied
// parameters are rejected. It never reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError returns a ValidationError for the given field.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is allows errors.Is(err, ErrValidation) for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidateAddress checks that a required address parameter is present and
// well formed.
func ValidateAddress(field string, pub ed25519.PublicKey) error {
	if len(pub) == 0 {
		return NewValidationError(field, "required")
	}
	if len(pub) != ed25519.PublicKeySize {
		return NewValidationError(field, "expected %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return nil
}

// AccountMeta represents the account information required
// for building transactions.
type AccountMeta struct {
	PublicKey  ed25519.PublicKey
	IsSigner   bool
	IsWritable bool
}

// NewAccountMeta creates a new AccountMeta representing a writable
// account.
func NewAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{
		PublicKey:  pub,
		IsSigner:   isSigner,
		IsWritable: true,
	}
}

// NewReadonlyAccountMeta creates a new AccountMeta representing a readonly
// account.
func NewReadonlyAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{
		PublicKey:  pub,
		IsSigner:   isSigner,
		IsWritable: false,
	}
}

// zone returns the position of the account's partition within a compiled
// message.
//
// Reference: https://docs.solana.com/developing/programming-model/transactions#account-addresses-format
func (m AccountMeta) zone() int {
	switch {
	case m.IsSigner && m.IsWritable:
		return 0
	case m.IsSigner:
		return 1
	case m.IsWritable:
		return 2
	default:
		return 3
	}
}

// Instruction represents a transaction instruction.
type Instruction struct {
	Program  ed25519.PublicKey
	Accounts []AccountMeta
	Data     []byte
}

// NewInstruction creates a new instruction.
func NewInstruction(program ed25519.PublicKey, data []byte, accounts ...AccountMeta) Instruction {
	return Instruction{
		Program:  program,
		Data:     data,
		Accounts: accounts,
	}
}

// CompiledInstruction represents an instruction that has been compiled into a transaction.
type CompiledInstruction struct {
	ProgramIndex byte
	Accounts     []byte
	Data         []byte
}

// DecompiledInstruction is a compiled instruction with its account indices
// resolved against the message.
type DecompiledInstruction struct {
	Program  ed25519.PublicKey
	Accounts []ed25519.PublicKey
	Data     []byte
}

// DecompileInstruction resolves the instruction at index, which must invoke
// program and reference exactly numAccounts accounts. A negative numAccounts
// accepts any number.
func (m Message) DecompileInstruction(index int, program ed25519.PublicKey, numAccounts int) (*DecompiledInstruction, error) {
	if index < 0 || index >= len(m.Instructions) {
		return nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]
	if int(i.ProgramIndex) >= len(m.Accounts) {
		return nil, errors.Errorf("program index %d out of range", i.ProgramIndex)
	}
	if !bytes.Equal(m.Accounts[i.ProgramIndex], program) {
		return nil, ErrIncorrectProgram
	}
	if numAccounts >= 0 && len(i.Accounts) != numAccounts {
		return nil, errors.Errorf("invalid number of accounts: %d (expected %d)", len(i.Accounts), numAccounts)
	}

	decompiled := &DecompiledInstruction{
		Program:  m.Accounts[i.ProgramIndex],
		Accounts: make([]ed25519.PublicKey, len(i.Accounts)),
		Data:     i.Data,
	}
	for n, a := range i.Accounts {
		if int(a) >= len(m.Accounts) {
			return nil, errors.Errorf("account index %d out of range", a)
		}
		decompiled.Accounts[n] = m.Accounts[a]
	}

	return decompiled, nil
}
