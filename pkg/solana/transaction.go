package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232

	// MaxAccountKeys is the largest number of account keys a legacy message
	// can address, since instructions reference accounts with a u8 index.
	MaxAccountKeys = math.MaxUint8 + 1
)

var (
	ErrEmptyInstructions = errors.New("no instructions provided")
	ErrTooManyAccounts   = errors.Errorf("too many accounts (max %d)", MaxAccountKeys)
	ErrInvalidAccount    = errors.New("invalid account key")
	ErrMissingSigner     = errors.New("missing signer")
	ErrInvalidSigner     = errors.New("invalid signer")
	ErrSequenceTooLong   = errors.Errorf("sequence exceeds %d elements", math.MaxUint16)
)

// MissingSignerError indicates that an account in the signer zone of a
// message had no matching keypair.
type MissingSignerError struct {
	Address ed25519.PublicKey
}

func (e *MissingSignerError) Error() string {
	return fmt.Sprintf("missing signer: %s", base58.Encode(e.Address))
}

func (e *MissingSignerError) Is(target error) bool {
	return target == ErrMissingSigner
}

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

type Message struct {
	Header          Header
	Accounts        []ed25519.PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// Compile merges the instructions, fee payer and recent blockhash into a
// message.
//
// Accounts are ordered as follows:
//  1. The payer is always the first account / signer.
//  2. Writable signers, readonly signers, writable non-signers and readonly
//     non-signers, in that order.
//  3. Within each of those groups, accounts keep the order in which they
//     were first referenced. Programs are referenced after all instruction
//     accounts.
//
// Accounts referenced more than once are merged, with the signer and writable
// flags of every reference combined.
func Compile(payer ed25519.PublicKey, recentBlockhash Blockhash, instructions ...Instruction) (Message, error) {
	if len(instructions) == 0 {
		return Message{}, ErrEmptyInstructions
	}
	if len(payer) != ed25519.PublicKeySize {
		return Message{}, errors.Wrap(ErrInvalidAccount, "payer")
	}
	if len(instructions) > math.MaxUint16 {
		return Message{}, errors.Wrap(ErrSequenceTooLong, "instructions")
	}

	accounts := []AccountMeta{
		{
			PublicKey:  payer,
			IsSigner:   true,
			IsWritable: true,
		},
	}
	for i, instruction := range instructions {
		if len(instruction.Program) != ed25519.PublicKeySize {
			return Message{}, errors.Wrapf(ErrInvalidAccount, "instruction %d program", i)
		}
		if len(instruction.Accounts) > math.MaxUint16 {
			return Message{}, errors.Wrapf(ErrSequenceTooLong, "instruction %d accounts", i)
		}
		if len(instruction.Data) > math.MaxUint16 {
			return Message{}, errors.Wrapf(ErrSequenceTooLong, "instruction %d data", i)
		}

		for j, account := range instruction.Accounts {
			if len(account.PublicKey) != ed25519.PublicKeySize {
				return Message{}, errors.Wrapf(ErrInvalidAccount, "instruction %d account %d", i, j)
			}
		}

		accounts = append(accounts, instruction.Accounts...)
	}
	for _, instruction := range instructions {
		accounts = append(accounts, AccountMeta{PublicKey: instruction.Program})
	}

	accounts = filterUnique(accounts)
	if len(accounts) > MaxAccountKeys {
		return Message{}, ErrTooManyAccounts
	}

	// The payer is a writable signer that was seen first, so a stable sort
	// keeps it at index 0.
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].zone() < accounts[j].zone()
	})

	m := Message{
		Accounts:        make([]ed25519.PublicKey, len(accounts)),
		RecentBlockhash: recentBlockhash,
		Instructions:    make([]CompiledInstruction, len(instructions)),
	}

	var numSigners, numReadonlySigned, numReadonly int
	indexes := make(map[string]byte, len(accounts))
	for i, account := range accounts {
		m.Accounts[i] = account.PublicKey
		indexes[string(account.PublicKey)] = byte(i)

		if account.IsSigner {
			numSigners++

			if !account.IsWritable {
				numReadonlySigned++
			}
		} else if !account.IsWritable {
			numReadonly++
		}
	}
	if numSigners > math.MaxUint8 || numReadonly > math.MaxUint8 {
		return Message{}, ErrTooManyAccounts
	}

	m.Header = Header{
		NumSignatures:     byte(numSigners),
		NumReadonlySigned: byte(numReadonlySigned),
		NumReadOnly:       byte(numReadonly),
	}

	// Generate the compiled instruction, which uses indices instead
	// of raw account keys.
	for i, instruction := range instructions {
		c := CompiledInstruction{
			ProgramIndex: indexes[string(instruction.Program)],
			Accounts:     make([]byte, len(instruction.Accounts)),
			Data:         instruction.Data,
		}

		for j, a := range instruction.Accounts {
			c.Accounts[j] = indexes[string(a.PublicKey)]
		}

		m.Instructions[i] = c
	}

	return m, nil
}

// NewTransaction compiles the instructions into an unsigned transaction.
func NewTransaction(payer ed25519.PublicKey, recentBlockhash Blockhash, instructions ...Instruction) (Transaction, error) {
	m, err := Compile(payer, recentBlockhash, instructions...)
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}, nil
}

// SignMessage signs the message with the provided keypairs, returning a sign
// complete transaction. Every account in the signer zone of the message must
// have a matching keypair, otherwise a *MissingSignerError is returned.
// Keypairs for accounts outside of the signer zone are ignored.
func SignMessage(m Message, signers ...ed25519.PrivateKey) (Transaction, error) {
	if err := m.checkLengths(); err != nil {
		return Transaction{}, err
	}

	byKey := make(map[string]ed25519.PrivateKey, len(signers))
	for _, s := range signers {
		if len(s) != ed25519.PrivateKeySize {
			return Transaction{}, ErrInvalidSigner
		}
		byKey[string(s.Public().(ed25519.PublicKey))] = s
	}

	txn := Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}

	messageBytes := m.Marshal()
	for i := range txn.Signatures {
		if i >= len(m.Accounts) {
			return Transaction{}, errors.Errorf("signer %d exceeds account list", i)
		}

		s, ok := byKey[string(m.Accounts[i])]
		if !ok {
			return Transaction{}, &MissingSignerError{Address: m.Accounts[i]}
		}

		copy(txn.Signatures[i][:], ed25519.Sign(s, messageBytes))
	}

	return txn, nil
}

// Sign adds signatures from the provided keys, leaving the signature slots
// of any other signer untouched.
func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	messageBytes := t.Message.Marshal()

	for _, s := range signers {
		if len(s) != ed25519.PrivateKeySize {
			return ErrInvalidSigner
		}

		pub := s.Public().(ed25519.PublicKey)
		index := indexOf(t.Message.Accounts, pub)
		if index < 0 {
			return errors.Errorf("signing account %s is not in the account list", base58.Encode(pub))
		}
		if index >= len(t.Signatures) {
			return errors.Errorf("signing account %s is not in the list of signers", base58.Encode(pub))
		}

		copy(t.Signatures[index][:], ed25519.Sign(s, messageBytes))
	}

	return nil
}

// IsSignComplete reports whether every signer slot holds a valid signature
// over the current message.
func (t *Transaction) IsSignComplete() bool {
	if len(t.Signatures) != int(t.Message.Header.NumSignatures) || len(t.Signatures) > len(t.Message.Accounts) {
		return false
	}

	messageBytes := t.Message.Marshal()
	for i, sig := range t.Signatures {
		if !ed25519.Verify(t.Message.Accounts[i], messageBytes, sig[:]) {
			return false
		}
	}

	return true
}

// SetBlockhash updates the recent blockhash of the message. Existing
// signatures cover the old blockhash, so they're cleared and the
// transaction must be signed again.
func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
	for i := range t.Signatures {
		t.Signatures[i] = Signature{}
	}
}

// Signature returns the transaction id, which is the first signature.
func (t *Transaction) Signature() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

func (t *Transaction) String() string {
	var sb strings.Builder
	sb.WriteString("Signatures:\n")
	for i, s := range t.Signatures {
		sb.WriteString(fmt.Sprintf("  %d: %s\n", i, base58.Encode(s[:])))
	}
	sb.WriteString("Message:\n")
	sb.WriteString("  Header:\n")
	sb.WriteString(fmt.Sprintf("    NumSignatures: %d\n", t.Message.Header.NumSignatures))
	sb.WriteString(fmt.Sprintf("    NumReadonlySigned: %d\n", t.Message.Header.NumReadonlySigned))
	sb.WriteString(fmt.Sprintf("    NumReadOnly: %d\n", t.Message.Header.NumReadOnly))
	sb.WriteString("  Accounts:\n")
	for i, a := range t.Message.Accounts {
		sb.WriteString(fmt.Sprintf("    %d: %s\n", i, base58.Encode(a)))
	}
	sb.WriteString(fmt.Sprintf("  RecentBlockhash: %s\n", base58.Encode(t.Message.RecentBlockhash[:])))
	sb.WriteString("  Instructions:\n")
	for i := range t.Message.Instructions {
		sb.WriteString(fmt.Sprintf("    %d:\n", i))
		sb.WriteString(fmt.Sprintf("      ProgramIndex: %d\n", t.Message.Instructions[i].ProgramIndex))
		sb.WriteString(fmt.Sprintf("      Accounts: %v\n", t.Message.Instructions[i].Accounts))
		sb.WriteString(fmt.Sprintf("      Data: %v\n", t.Message.Instructions[i].Data))
	}
	return sb.String()
}

// checkLengths reports sequences that cannot be length prefixed on the wire.
func (m Message) checkLengths() error {
	if len(m.Accounts) > math.MaxUint16 {
		return errors.Wrap(ErrSequenceTooLong, "accounts")
	}
	if len(m.Instructions) > math.MaxUint16 {
		return errors.Wrap(ErrSequenceTooLong, "instructions")
	}
	for i, instruction := range m.Instructions {
		if len(instruction.Accounts) > math.MaxUint16 {
			return errors.Wrapf(ErrSequenceTooLong, "instruction %d accounts", i)
		}
		if len(instruction.Data) > math.MaxUint16 {
			return errors.Wrapf(ErrSequenceTooLong, "instruction %d data", i)
		}
	}
	return nil
}

// filterUnique merges duplicate references to the same account, promoting
// permissions and keeping the position of the first reference.
func filterUnique(accounts []AccountMeta) []AccountMeta {
	filtered := make([]AccountMeta, 0, len(accounts))
	seen := make(map[string]int, len(accounts))

	for _, account := range accounts {
		j, ok := seen[string(account.PublicKey)]
		if !ok {
			seen[string(account.PublicKey)] = len(filtered)
			filtered = append(filtered, account)
			continue
		}

		if account.IsSigner {
			filtered[j].IsSigner = true
		}
		if account.IsWritable {
			filtered[j].IsWritable = true
		}
	}

	return filtered
}

func indexOf(slice []ed25519.PublicKey, item ed25519.PublicKey) int {
	for i, val := range slice {
		if string(val) == string(item) {
			return i
		}
	}

	return -1
}
