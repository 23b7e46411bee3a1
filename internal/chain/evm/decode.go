package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transfer is the normalized result of decoding an ERC-20
// Transfer(address indexed from, address indexed to, uint256 value) log.
// Indexed topics are 32-byte left-padded addresses (spec §6); From/To
// here are already trimmed to the low 20 bytes.
type Transfer struct {
	From   common.Address
	To     common.Address
	Value  *big.Int
	Block  uint64
	TxHash common.Hash
}

// ParseERC20Transfer decodes a Transfer log. It returns an error if the
// log does not match the expected topic/data shape.
func ParseERC20Transfer(log types.Log) (*Transfer, error) {
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("evm: transfer log has %d topics, want 3", len(log.Topics))
	}
	if log.Topics[0] != ERC20TransferTopic {
		return nil, fmt.Errorf("evm: log topic0 is not Transfer")
	}
	if len(log.Data) < 32 {
		return nil, fmt.Errorf("evm: transfer log data too short")
	}

	return &Transfer{
		From:   topicToAddress(log.Topics[1]),
		To:     topicToAddress(log.Topics[2]),
		Value:  new(big.Int).SetBytes(log.Data[:32]),
		Block:  log.BlockNumber,
		TxHash: log.TxHash,
	}, nil
}

func topicToAddress(t common.Hash) common.Address {
	var addr common.Address
	copy(addr[:], t[12:]) // last 20 bytes
	return addr
}

// filledRelayABI describes only the non-indexed tail of FilledRelay
// needed to decode log.Data — the exact bytes32-variant layout from
// spec §6, used with abi.Arguments.UnpackValues rather than a full
// generated contract binding (no generated SpokePool binding ships in
// the retrieved pack; this mirrors the teacher's manual abi.Arguments
// approach in clients/evm.go's HashStruct).
var filledRelayDataArgs = mustArguments(
	"bytes32", // inputToken
	"bytes32", // outputToken
	"uint256", // inputAmount
	"uint256", // outputAmount
	"uint256", // repaymentChainId
	"uint32",  // fillDeadline
	"uint32",  // exclusivityDeadline
	"bytes32", // exclusiveRelayer
	"bytes32", // depositor
	"bytes32", // recipient
	"bytes32", // messageHash
	// relayExecutionInfo tuple is not consumed by Railclaw: it is not
	// listed here, and the bytes after messageHash are left undecoded.
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: ty})
	}
	return args
}

// FilledRelay is the normalized result of decoding a FilledRelay event
// (Across v3 bytes32 variant). OriginChainID, DepositID, and Relayer are
// indexed topics; the rest come from log.Data.
type FilledRelay struct {
	OriginChainID *big.Int
	DepositID     *big.Int
	Relayer       common.Address

	InputToken        common.Address
	OutputToken       common.Address
	InputAmount       *big.Int
	OutputAmount      *big.Int
	RepaymentChainID  *big.Int
	FillDeadline      uint32
	ExclusivityDeadline uint32
	ExclusiveRelayer  common.Address
	Depositor         common.Address
	Recipient         common.Address

	Block  uint64
	TxHash common.Hash
}

// ParseFilledRelay decodes a FilledRelay log per spec §6's exact event
// signature. Address fields are right-aligned bytes32 — only the last 20
// bytes are read.
func ParseFilledRelay(log types.Log) (*FilledRelay, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("evm: filled_relay log has %d topics, want 4", len(log.Topics))
	}
	if log.Topics[0] != FilledRelayTopic {
		return nil, fmt.Errorf("evm: log topic0 is not FilledRelay")
	}

	values, err := filledRelayDataArgs.UnpackValues(log.Data)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack filled_relay data: %w", err)
	}
	if len(values) != len(filledRelayDataArgs) {
		return nil, fmt.Errorf("evm: filled_relay unpack returned %d values, want %d", len(values), len(filledRelayDataArgs))
	}

	inputToken := values[0].([32]byte)
	outputToken := values[1].([32]byte)
	exclusiveRelayer := values[7].([32]byte)
	depositor := values[8].([32]byte)
	recipient := values[9].([32]byte)

	return &FilledRelay{
		OriginChainID: new(big.Int).SetBytes(log.Topics[1].Bytes()),
		DepositID:     new(big.Int).SetBytes(log.Topics[2].Bytes()),
		Relayer:       topicToAddress(log.Topics[3]),

		InputToken:          bytes32ToAddress(inputToken),
		OutputToken:         bytes32ToAddress(outputToken),
		InputAmount:         values[2].(*big.Int),
		OutputAmount:        values[3].(*big.Int),
		RepaymentChainID:    values[4].(*big.Int),
		FillDeadline:        values[5].(uint32),
		ExclusivityDeadline: values[6].(uint32),
		ExclusiveRelayer:    bytes32ToAddress(exclusiveRelayer),
		Depositor:           bytes32ToAddress(depositor),
		Recipient:           bytes32ToAddress(recipient),

		Block:  log.BlockNumber,
		TxHash: log.TxHash,
	}, nil
}

func bytes32ToAddress(b [32]byte) common.Address {
	var addr common.Address
	copy(addr[:], b[12:])
	return addr
}
