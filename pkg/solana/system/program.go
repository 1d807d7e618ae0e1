// Package system produces instructions for the native system program.
package system

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/binary"
)

// ProgramKey is the address of the system program.
//
// Current key: 11111111111111111111111111111111
var ProgramKey = make(ed25519.PublicKey, ed25519.PublicKeySize)

// MaxPermittedDataLength is the largest account the system program will
// allocate.
//
// Reference: https://github.com/solana-labs/solana/blob/master/sdk/program/src/system_instruction.rs
const MaxPermittedDataLength = 10 * 1024 * 1024

// Command is the discriminant of a system instruction.
type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer
	CommandCreateAccountWithSeed
	CommandAdvanceNonceAccount
	CommandWithdrawNonceAccount
	CommandInitializeNonceAccount
	CommandAuthorizeNonceAccount
	CommandAllocate
	CommandAllocateWithSeed
	CommandAssignWithSeed
	CommandTransferWithSeed
	CommandUpgradeNonceAccount
)

// TransferArgs moves lamports between system accounts.
type TransferArgs struct {
	From     ed25519.PublicKey `mapstructure:"from"`
	To       ed25519.PublicKey `mapstructure:"to"`
	Lamports uint64            `mapstructure:"lamports"`
}

func (a TransferArgs) Validate() error {
	if err := solana.ValidateAddress("from", a.From); err != nil {
		return err
	}
	if err := solana.ValidateAddress("to", a.To); err != nil {
		return err
	}
	if a.Lamports == 0 {
		return solana.NewValidationError("lamports", "must be positive")
	}
	return nil
}

// Transfer returns a system transfer instruction.
//
// Account references:
//  0. [WRITE, SIGNER] Funding account
//  1. [WRITE] Recipient account
func Transfer(args TransferArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := binary.NewWriter(4 + 8).
		Uint32(uint32(CommandTransfer)).
		Uint64(args.Lamports).
		Bytes()

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(args.From, true),
		solana.NewAccountMeta(args.To, false),
	), nil
}

// DecompileTransfer parses the transfer at index in m.
func DecompileTransfer(m solana.Message, index int) (*TransferArgs, error) {
	i, r, err := decompile(m, index, CommandTransfer, 2)
	if err != nil {
		return nil, err
	}

	args := &TransferArgs{
		From:     i.Accounts[0],
		To:       i.Accounts[1],
		Lamports: r.Uint64(),
	}
	return args, finish(r)
}

// CreateAccountArgs creates a new account owned by Owner, funded with
// Lamports and allocated Space bytes.
type CreateAccountArgs struct {
	Funder   ed25519.PublicKey `mapstructure:"funder"`
	Address  ed25519.PublicKey `mapstructure:"address"`
	Owner    ed25519.PublicKey `mapstructure:"owner"`
	Lamports uint64            `mapstructure:"lamports"`
	Space    uint64            `mapstructure:"space"`
}

func (a CreateAccountArgs) Validate() error {
	if err := solana.ValidateAddress("funder", a.Funder); err != nil {
		return err
	}
	if err := solana.ValidateAddress("address", a.Address); err != nil {
		return err
	}
	if err := solana.ValidateAddress("owner", a.Owner); err != nil {
		return err
	}
	if a.Funder.Equal(a.Address) {
		return solana.NewValidationError("address", "must differ from funder")
	}
	if a.Space > MaxPermittedDataLength {
		return solana.NewValidationError("space", "exceeds %d bytes", MaxPermittedDataLength)
	}
	return nil
}

// CreateAccount returns an instruction creating a new account.
//
// Account references:
//  0. [WRITE, SIGNER] Funding account
//  1. [WRITE, SIGNER] New account
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
func CreateAccount(args CreateAccountArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := binary.NewWriter(4 + 2*8 + ed25519.PublicKeySize).
		Uint32(uint32(CommandCreateAccount)).
		Uint64(args.Lamports).
		Uint64(args.Space).
		Key(args.Owner).
		Bytes()

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(args.Funder, true),
		solana.NewAccountMeta(args.Address, true),
	), nil
}

// DecompileCreateAccount parses the account creation at index in m.
func DecompileCreateAccount(m solana.Message, index int) (*CreateAccountArgs, error) {
	i, r, err := decompile(m, index, CommandCreateAccount, 2)
	if err != nil {
		return nil, err
	}

	args := &CreateAccountArgs{
		Funder:   i.Accounts[0],
		Address:  i.Accounts[1],
		Lamports: r.Uint64(),
		Space:    r.Uint64(),
		Owner:    r.Key(),
	}
	return args, finish(r)
}

// AdvanceNonceArgs consumes the stored nonce of a nonce account, replacing
// it with a recent blockhash.
type AdvanceNonceArgs struct {
	Nonce     ed25519.PublicKey `mapstructure:"nonce"`
	Authority ed25519.PublicKey `mapstructure:"authority"`
}

func (a AdvanceNonceArgs) Validate() error {
	if err := solana.ValidateAddress("nonce", a.Nonce); err != nil {
		return err
	}
	return solana.ValidateAddress("authority", a.Authority)
}

// AdvanceNonce returns an instruction advancing a nonce account. It must be
// the first instruction of a transaction using the nonce as its blockhash.
//
// Account references:
//  0. [WRITE] Nonce account
//  1. [] RecentBlockhashes sysvar
//  2. [SIGNER] Nonce authority
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L113-L119
func AdvanceNonce(args AdvanceNonceArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	return solana.NewInstruction(
		ProgramKey,
		binary.NewWriter(4).Uint32(uint32(CommandAdvanceNonceAccount)).Bytes(),
		solana.NewAccountMeta(args.Nonce, false),
		solana.NewReadonlyAccountMeta(RecentBlockhashesSysVar, false),
		solana.NewReadonlyAccountMeta(args.Authority, true),
	), nil
}

// DecompileAdvanceNonce parses the nonce advance at index in m.
func DecompileAdvanceNonce(m solana.Message, index int) (*AdvanceNonceArgs, error) {
	i, r, err := decompile(m, index, CommandAdvanceNonceAccount, 3)
	if err != nil {
		return nil, err
	}
	if !i.Accounts[1].Equal(RecentBlockhashesSysVar) {
		return nil, errors.New("invalid RecentBlockhashes sysvar")
	}

	args := &AdvanceNonceArgs{
		Nonce:     i.Accounts[0],
		Authority: i.Accounts[2],
	}
	return args, finish(r)
}

// WithdrawNonceArgs withdraws lamports from a nonce account. The remaining
// balance must stay above the rent exempt reserve, or be zero.
type WithdrawNonceArgs struct {
	Nonce     ed25519.PublicKey `mapstructure:"nonce"`
	Authority ed25519.PublicKey `mapstructure:"authority"`
	Recipient ed25519.PublicKey `mapstructure:"recipient"`
	Lamports  uint64            `mapstructure:"lamports"`
}

func (a WithdrawNonceArgs) Validate() error {
	if err := solana.ValidateAddress("nonce", a.Nonce); err != nil {
		return err
	}
	if err := solana.ValidateAddress("authority", a.Authority); err != nil {
		return err
	}
	if err := solana.ValidateAddress("recipient", a.Recipient); err != nil {
		return err
	}
	if a.Lamports == 0 {
		return solana.NewValidationError("lamports", "must be positive")
	}
	return nil
}

// WithdrawNonce returns an instruction withdrawing from a nonce account.
//
// Account references:
//  0. [WRITE] Nonce account
//  1. [WRITE] Recipient account
//  2. [] RecentBlockhashes sysvar
//  3. [] Rent sysvar
//  4. [SIGNER] Nonce authority
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L131
func WithdrawNonce(args WithdrawNonceArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := binary.NewWriter(4 + 8).
		Uint32(uint32(CommandWithdrawNonceAccount)).
		Uint64(args.Lamports).
		Bytes()

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(args.Nonce, false),
		solana.NewAccountMeta(args.Recipient, false),
		solana.NewReadonlyAccountMeta(RecentBlockhashesSysVar, false),
		solana.NewReadonlyAccountMeta(RentSysVar, false),
		solana.NewReadonlyAccountMeta(args.Authority, true),
	), nil
}

// DecompileWithdrawNonce parses the nonce withdrawal at index in m.
func DecompileWithdrawNonce(m solana.Message, index int) (*WithdrawNonceArgs, error) {
	i, r, err := decompile(m, index, CommandWithdrawNonceAccount, 5)
	if err != nil {
		return nil, err
	}

	args := &WithdrawNonceArgs{
		Nonce:     i.Accounts[0],
		Recipient: i.Accounts[1],
		Authority: i.Accounts[4],
		Lamports:  r.Uint64(),
	}
	return args, finish(r)
}

// InitializeNonceArgs moves an uninitialized nonce account to initialized,
// storing a nonce value and the authority allowed to advance it.
type InitializeNonceArgs struct {
	Nonce     ed25519.PublicKey `mapstructure:"nonce"`
	Authority ed25519.PublicKey `mapstructure:"authority"`
}

func (a InitializeNonceArgs) Validate() error {
	if err := solana.ValidateAddress("nonce", a.Nonce); err != nil {
		return err
	}
	return solana.ValidateAddress("authority", a.Authority)
}

// InitializeNonce returns an instruction initializing a nonce account. No
// signatures are required, so nonce accounts may be derived addresses.
//
// Account references:
//  0. [WRITE] Nonce account
//  1. [] RecentBlockhashes sysvar
//  2. [] Rent sysvar
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L146
func InitializeNonce(args InitializeNonceArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := binary.NewWriter(4 + ed25519.PublicKeySize).
		Uint32(uint32(CommandInitializeNonceAccount)).
		Key(args.Authority).
		Bytes()

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(args.Nonce, false),
		solana.NewReadonlyAccountMeta(RecentBlockhashesSysVar, false),
		solana.NewReadonlyAccountMeta(RentSysVar, false),
	), nil
}

// DecompileInitializeNonce parses the nonce initialization at index in m.
func DecompileInitializeNonce(m solana.Message, index int) (*InitializeNonceArgs, error) {
	i, r, err := decompile(m, index, CommandInitializeNonceAccount, 3)
	if err != nil {
		return nil, err
	}

	args := &InitializeNonceArgs{
		Nonce:     i.Accounts[0],
		Authority: r.Key(),
	}
	return args, finish(r)
}

func decompile(m solana.Message, index int, command Command, numAccounts int) (*solana.DecompiledInstruction, *binary.Reader, error) {
	i, err := m.DecompileInstruction(index, ProgramKey, -1)
	if err != nil {
		return nil, nil, err
	}

	r := binary.NewReader(i.Data)
	if Command(r.Uint32()) != command || r.Err() != nil {
		return nil, nil, solana.ErrIncorrectInstruction
	}
	if len(i.Accounts) != numAccounts {
		return nil, nil, errors.Errorf("invalid number of accounts: %d (expected %d)", len(i.Accounts), numAccounts)
	}

	return i, r, nil
}

func finish(r *binary.Reader) error {
	if r.Err() != nil {
		return errors.Wrap(r.Err(), "invalid instruction data")
	}
	if r.Remaining() != 0 {
		return errors.Errorf("invalid instruction data: %d trailing bytes", r.Remaining())
	}
	return nil
}
