// Package sigverify produces instructions for the ed25519 signature
// verification precompile.
package sigverify

import (
	"crypto/ed25519"
	"math"

	"github.com/pkg/errors"

	"github.com/code-payments/code-solana-client/pkg/solana"
	"github.com/code-payments/code-solana-client/pkg/solana/binary"
)

// ProgramKey is the address of the ed25519 precompile.
//
// Current key: Ed25519SigVerify111111111111111111111111111
var ProgramKey = ed25519.PublicKey{3, 125, 70, 214, 124, 147, 251, 190, 18, 249, 66, 143, 131, 141, 64, 255, 5, 112, 116, 73, 39, 244, 138, 100, 252, 202, 112, 68, 128, 0, 0, 0}

const (
	headerSize = 2 + 7*2

	publicKeyOffset = headerSize
	signatureOffset = publicKeyOffset + ed25519.PublicKeySize
	messageOffset   = signatureOffset + ed25519.SignatureSize

	// currentInstruction marks offsets that refer to this instruction's own
	// data.
	currentInstruction = math.MaxUint16

	// MaxMessageLength keeps the offsets addressable.
	MaxMessageLength = math.MaxUint16 - messageOffset
)

// Args asks the runtime to verify one signature over Message.
type Args struct {
	PublicKey ed25519.PublicKey `mapstructure:"public_key"`
	Signature solana.Signature  `mapstructure:"signature"`
	Message   []byte            `mapstructure:"message"`
}

// Validate verifies the signature locally.
func (a Args) Validate() error {
	if err := solana.ValidateAddress("public_key", a.PublicKey); err != nil {
		return err
	}
	if len(a.Message) > MaxMessageLength {
		return solana.NewValidationError("message", "exceeds %d bytes", MaxMessageLength)
	}
	if !ed25519.Verify(a.PublicKey, a.Message, a.Signature[:]) {
		return solana.NewValidationError("signature", "does not verify")
	}
	return nil
}

// Sign returns the arguments verifying privateKey's signature over message.
func Sign(privateKey ed25519.PrivateKey, message []byte) Args {
	var sig solana.Signature
	copy(sig[:], ed25519.Sign(privateKey, message))

	return Args{
		PublicKey: privateKey.Public().(ed25519.PublicKey),
		Signature: sig,
		Message:   message,
	}
}

// Instruction returns a verification instruction carrying the public key,
// signature and message inline. The precompile takes no accounts.
//
// Reference: https://github.com/solana-labs/solana/blob/27eff8408b7223bb3c4ab70523f8a8dca3ca6645/sdk/src/ed25519_instruction.rs#L32
func Instruction(args Args) (solana.Instruction, error) {
	if err := args.Validate(); err != nil {
		return solana.Instruction{}, err
	}

	data := binary.NewWriter(messageOffset+len(args.Message)).
		Uint8(1). // num_signatures
		Uint8(0). // padding
		Uint16(signatureOffset).
		Uint16(currentInstruction).
		Uint16(publicKeyOffset).
		Uint16(currentInstruction).
		Uint16(messageOffset).
		Uint16(uint16(len(args.Message))).
		Uint16(currentInstruction).
		Key(args.PublicKey).
		Raw(args.Signature[:]).
		Raw(args.Message).
		Bytes()

	return solana.NewInstruction(ProgramKey, data), nil
}

// DecompileInstruction parses a single signature verification whose data is
// held inline.
func DecompileInstruction(m solana.Message, index int) (*Args, error) {
	i, err := m.DecompileInstruction(index, ProgramKey, 0)
	if err != nil {
		return nil, err
	}

	r := binary.NewReader(i.Data)
	if r.Uint8() != 1 || r.Uint8() != 0 {
		return nil, solana.ErrIncorrectInstruction
	}

	sigOffset, sigIndex := r.Uint16(), r.Uint16()
	keyOffset, keyIndex := r.Uint16(), r.Uint16()
	msgOffset, msgSize, msgIndex := r.Uint16(), r.Uint16(), r.Uint16()
	if r.Err() != nil {
		return nil, errors.Wrap(r.Err(), "invalid instruction data")
	}

	if sigIndex != currentInstruction || keyIndex != currentInstruction || msgIndex != currentInstruction {
		return nil, errors.New("unsupported reference to another instruction")
	}
	if sigOffset != signatureOffset || keyOffset != publicKeyOffset || msgOffset != messageOffset {
		return nil, errors.New("unsupported data layout")
	}

	args := &Args{PublicKey: r.Key()}
	copy(args.Signature[:], r.Raw(ed25519.SignatureSize))
	args.Message = r.Raw(int(msgSize))
	if r.Err() != nil {
		return nil, errors.Wrap(r.Err(), "invalid instruction data")
	}
	if r.Remaining() != 0 {
		return nil, errors.Errorf("invalid instruction data: %d trailing bytes", r.Remaining())
	}

	return args, nil
}
