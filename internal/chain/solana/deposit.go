package solana

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	ag_binary "github.com/gagliardetto/binary"
	ag_solana "github.com/gagliardetto/solana-go"
)

// DepositParams is the exact byte sequence the Across Solana SpokePool's
// deposit instruction carries, per spec §9: u256 big-endian for
// outputAmount, u32 little-endian for timestamps, 32-byte left-padded EVM
// addresses for cross-chain-referencing fields. Field order and widths
// are load-bearing — the delegate PDA is derived from this exact
// encoding, so any drift here breaks stage 2's approval without a
// matching signal anywhere else.
type DepositParams struct {
	Depositor           [32]byte
	Recipient           [32]byte
	InputToken          [32]byte
	OutputToken         [32]byte
	InputAmount         uint64
	OutputAmount        [32]byte // u256 big-endian
	DestinationChainID  uint64
	ExclusiveRelayer    [32]byte
	QuoteTimestamp      uint32 // little-endian
	FillDeadline        uint32 // little-endian
	ExclusivityDeadline uint32 // little-endian
	Message             []byte
}

// depositDiscriminator is the first 8 bytes of SHA256("global:deposit"),
// Anchor's instruction discriminator convention (spec §6).
func depositDiscriminator() [8]byte {
	sum := sha256.Sum256([]byte("global:deposit"))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// EncodeDepositParams Borsh-encodes the parameter struct in the exact
// field order the on-chain program expects, matching the widths the
// delegate PDA derivation also uses.
func EncodeDepositParams(p DepositParams) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := ag_binary.NewBorshEncoder(buf)

	write := func(b []byte) error {
		_, err := buf.Write(b)
		return err
	}

	if err := write(p.Depositor[:]); err != nil {
		return nil, err
	}
	if err := write(p.Recipient[:]); err != nil {
		return nil, err
	}
	if err := write(p.InputToken[:]); err != nil {
		return nil, err
	}
	if err := write(p.OutputToken[:]); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(p.InputAmount, ag_binary.LE); err != nil {
		return nil, err
	}
	if err := write(p.OutputAmount[:]); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(p.DestinationChainID, ag_binary.LE); err != nil {
		return nil, err
	}
	if err := write(p.ExclusiveRelayer[:]); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, p.QuoteTimestamp); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, p.FillDeadline); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, p.ExclusivityDeadline); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(len(p.Message)), ag_binary.LE); err != nil {
		return nil, err
	}
	if err := write(p.Message); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// BuildDepositInstructionData prepends the Anchor discriminator to the
// Borsh-encoded parameters, producing the exact instruction data stage 2
// submits.
func BuildDepositInstructionData(p DepositParams) ([]byte, error) {
	encoded, err := EncodeDepositParams(p)
	if err != nil {
		return nil, fmt.Errorf("solana: encode deposit params: %w", err)
	}
	disc := depositDiscriminator()
	return append(disc[:], encoded...), nil
}

// DeriveDelegatePDA computes find_program_address(["delegate",
// keccak256(borsh(deposit_params))], program) — the seed the on-chain
// program uses to compute the same PDA, so approveChecked's delegate
// must match exactly (spec §9).
func DeriveDelegatePDA(program ag_solana.PublicKey, p DepositParams) (ag_solana.PublicKey, error) {
	encoded, err := EncodeDepositParams(p)
	if err != nil {
		return ag_solana.PublicKey{}, fmt.Errorf("solana: encode deposit params: %w", err)
	}
	digest := crypto.Keccak256(encoded)
	return DerivePDA(program, [][]byte{[]byte("delegate"), digest})
}

// U256BigEndian packs a uint64 business amount into the 32-byte
// big-endian representation the deposit params struct expects for
// outputAmount.
func U256BigEndian(v uint64) [32]byte {
	var out [32]byte
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}

// Pad32 left-pads a 20-byte EVM address into a 32-byte Solana-style
// address field, per spec §9's "32-byte left-padded EVM addresses."
func Pad32(addr [20]byte) [32]byte {
	var out [32]byte
	copy(out[12:], addr[:])
	return out
}
