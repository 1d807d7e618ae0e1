// Package token produces instructions for the SPL token and associated token
// account programs.
package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/binary"
	"github.com/code-payments/code-solana-client/pkg/solana/system"
)

// ProgramKey is the address of the token program.
//
// Current key: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
var ProgramKey = ed25519.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

// MaxDecimals is the most decimals a mint may declare.
const MaxDecimals = 9

type Command uint8

const (
	CommandInitializeMint Command = iota
	CommandInitializeAccount
	CommandInitializeMultisig
	CommandTransfer
	CommandApprove
	CommandRevoke
	CommandSetAuthority
	CommandMintTo
	CommandBurn
	CommandCloseAccount
	CommandFreezeAccount
	CommandThawAccount
	CommandTransferChecked
	CommandApproveChecked
	CommandMintToChecked
	CommandBurnChecked
)

// Custom program errors, as reported in an InstructionError.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/master/token/program/src/error.rs
const (
	ErrorNotRentExempt solana.CustomError = iota
	ErrorInsufficientFunds
	ErrorInvalidMint
	ErrorMintMismatch
	ErrorOwnerMismatch
	ErrorFixedSupply
	ErrorAlreadyInUse
	ErrorInvalidNumberOfProvidedSigners
	ErrorInvalidNumberOfRequiredSigners
	ErrorUninitializedState
	ErrorNativeNotSupported
	ErrorNonNativeHasBalance
	ErrorInvalidInstruction
	ErrorInvalidState
	ErrorOverflow
	ErrorAuthorityTypeNotSupported
	ErrorMintCannotFreeze
	ErrorAccountFrozen
	ErrorMintDecimalsMismatch
	ErrorNonNativeNotSupported
)

// GetCommand returns the command of the token instruction at index.
func GetCommand(m solana.Message, index int) (Command, error) {
	i, err := m.DecompileInstruction(index, ProgramKey, -1)
	if err != nil {
		return 0, err
	}
	if len(i.Data) == 0 {
		return 0, errors.New("token instruction missing data")
	}
	return Command(i.Data[0]), nil
}

// InitializeAccountArgs initializes a token account that was already
// allocated and assigned to the token program.
type InitializeAccountArgs struct {
	Account ed25519.PublicKey `mapstructure:"account"`
	Mint    ed25519.PublicKey `mapstructure:"mint"`
	Owner   ed25519.PublicKey `mapstructure:"owner"`
}

func (a InitializeAccountArgs) Validate() error {
	if err := solana.ValidateAddress("account", a.Account); err != nil {
		return err
	}
	if err := solana.ValidateAddress("mint", a.Mint); err != nil {
		return err
	}
	return solana.ValidateAddress("owner", a.Owner)
}

// InitializeAccount returns an instruction that initializes a token account.
//
// Account references:
//  0. [WRITE] The account to initialize
//  1. [] The mint
//  2. [] The owner
//  3. [] Rent sysvar
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L41-L55
func InitializeAccount(args InitializeAccountArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandInitializeAccount)},
		solana.NewAccountMeta(args.Account, false),
		solana.NewReadonlyAccountMeta(args.Mint, false),
		solana.NewReadonlyAccountMeta(args.Owner, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	), nil
}

func DecompileInitializeAccount(m solana.Message, index int) (*InitializeAccountArgs, error) {
	i, r, err := decompile(m, index, CommandInitializeAccount, 4)
	if err != nil {
		return nil, err
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	if !bytes.Equal(system.RentSysVar, i.Accounts[3]) {
		return nil, errors.New("invalid rent sysvar")
	}

	return &InitializeAccountArgs{
		Account: i.Accounts[0],
		Mint:    i.Accounts[1],
		Owner:   i.Accounts[2],
	}, nil
}

// TransferArgs moves tokens between two token accounts of the same mint.
type TransferArgs struct {
	Source      ed25519.PublicKey `mapstructure:"source"`
	Destination ed25519.PublicKey `mapstructure:"destination"`
	Owner       ed25519.PublicKey `mapstructure:"owner"`
	Amount      uint64            `mapstructure:"amount"`
}

func (a TransferArgs) Validate() error {
	if err := solana.ValidateAddress("source", a.Source); err != nil {
		return err
	}
	if err := solana.ValidateAddress("destination", a.Destination); err != nil {
		return err
	}
	if err := solana.ValidateAddress("owner", a.Owner); err != nil {
		return err
	}
	if a.Amount == 0 {
		return solana.NewValidationError("amount", "must be positive")
	}
	return nil
}

// Transfer returns a token transfer instruction.
//
// Account references:
//  0. [WRITE] The source account
//  1. [WRITE] The destination account
//  2. [SIGNER] The source account's owner
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L76-L91
func Transfer(args TransferArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := binary.NewWriter(1 + 8).
		Uint8(uint8(CommandTransfer)).
		Uint64(args.Amount).
		Bytes()

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(args.Source, false),
		solana.NewAccountMeta(args.Destination, false),
		solana.NewReadonlyAccountMeta(args.Owner, true),
	), nil
}

// DecompileTransfer parses a transfer. Multisig owners carry extra signer
// accounts, which are ignored.
func DecompileTransfer(m solana.Message, index int) (*TransferArgs, error) {
	i, r, err := decompile(m, index, CommandTransfer, 3)
	if err != nil {
		return nil, err
	}

	args := &TransferArgs{
		Source:      i.Accounts[0],
		Destination: i.Accounts[1],
		Owner:       i.Accounts[2],
		Amount:      r.Uint64(),
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return args, nil
}

// TransferCheckedArgs is a transfer that also asserts the mint and its
// decimals.
type TransferCheckedArgs struct {
	Source      ed25519.PublicKey `mapstructure:"source"`
	Mint        ed25519.PublicKey `mapstructure:"mint"`
	Destination ed25519.PublicKey `mapstructure:"destination"`
	Owner       ed25519.PublicKey `mapstructure:"owner"`
	Amount      uint64            `mapstructure:"amount"`
	Decimals    uint8             `mapstructure:"decimals"`
}

func (a TransferCheckedArgs) Validate() error {
	if err := (TransferArgs{
		Source:      a.Source,
		Destination: a.Destination,
		Owner:       a.Owner,
		Amount:      a.Amount,
	}).Validate(); err != nil {
		return err
	}
	if err := solana.ValidateAddress("mint", a.Mint); err != nil {
		return err
	}
	if a.Decimals > MaxDecimals {
		return solana.NewValidationError("decimals", "exceeds %d", MaxDecimals)
	}
	return nil
}

// TransferChecked returns a checked token transfer instruction.
//
// Account references:
//  0. [WRITE] The source account
//  1. [] The mint
//  2. [WRITE] The destination account
//  3. [SIGNER] The source account's owner
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L230-L252
func TransferChecked(args TransferCheckedArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := binary.NewWriter(1 + 8 + 1).
		Uint8(uint8(CommandTransferChecked)).
		Uint64(args.Amount).
		Uint8(args.Decimals).
		Bytes()

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(args.Source, false),
		solana.NewReadonlyAccountMeta(args.Mint, false),
		solana.NewAccountMeta(args.Destination, false),
		solana.NewReadonlyAccountMeta(args.Owner, true),
	), nil
}

func DecompileTransferChecked(m solana.Message, index int) (*TransferCheckedArgs, error) {
	i, r, err := decompile(m, index, CommandTransferChecked, 4)
	if err != nil {
		return nil, err
	}

	args := &TransferCheckedArgs{
		Source:      i.Accounts[0],
		Mint:        i.Accounts[1],
		Destination: i.Accounts[2],
		Owner:       i.Accounts[3],
		Amount:      r.Uint64(),
		Decimals:    r.Uint8(),
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return args, nil
}

// CloseAccountArgs closes a token account, moving its lamports to
// Destination. Non-native accounts must hold no tokens.
type CloseAccountArgs struct {
	Account     ed25519.PublicKey `mapstructure:"account"`
	Destination ed25519.PublicKey `mapstructure:"destination"`
	Owner       ed25519.PublicKey `mapstructure:"owner"`
}

func (a CloseAccountArgs) Validate() error {
	if err := solana.ValidateAddress("account", a.Account); err != nil {
		return err
	}
	if err := solana.ValidateAddress("destination", a.Destination); err != nil {
		return err
	}
	if err := solana.ValidateAddress("owner", a.Owner); err != nil {
		return err
	}
	if a.Account.Equal(a.Destination) {
		return solana.NewValidationError("destination", "must differ from account")
	}
	return nil
}

// CloseAccount returns an instruction that closes a token account.
//
// Account references:
//  0. [WRITE] The account to close
//  1. [WRITE] The destination account
//  2. [SIGNER] The account's owner
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L183-L197
func CloseAccount(args CloseAccountArgs) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandCloseAccount)},
		solana.NewAccountMeta(args.Account, false),
		solana.NewAccountMeta(args.Destination, false),
		solana.NewReadonlyAccountMeta(args.Owner, true),
	), nil
}

func DecompileCloseAccount(m solana.Message, index int) (*CloseAccountArgs, error) {
	i, r, err := decompile(m, index, CommandCloseAccount, 3)
	if err != nil {
		return nil, err
	}
	if err := finish(r); err != nil {
		return nil, err
	}

	return &CloseAccountArgs{
		Account:     i.Accounts[0],
		Destination: i.Accounts[1],
		Owner:       i.Accounts[2],
	}, nil
}

// decompile accepts at least minAccounts accounts so that multisig variants
// still parse.
func decompile(m solana.Message, index int, command Command, minAccounts int) (*solana.DecompiledInstruction, *binary.Reader, error) {
	i, err := m.DecompileInstruction(index, ProgramKey, -1)
	if err != nil {
		return nil, nil, err
	}

	r := binary.NewReader(i.Data)
	if Command(r.Uint8()) != command || r.Err() != nil {
		return nil, nil, solana.ErrIncorrectInstruction
	}
	if len(i.Accounts) < minAccounts {
		return nil, nil, errors.Errorf("invalid number of accounts: %d (expected at least %d)", len(i.Accounts), minAccounts)
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
