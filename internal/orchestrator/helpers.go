package orchestrator

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	ag_solana "github.com/gagliardetto/solana-go"

	"github.com/rajweb3/railclaw/internal/config"
)

var errEmptyKey = errors.New("orchestrator: empty solana public key")

// spokePoolSet turns the configured per-chain SpokePool addresses into the
// lookup set the direct monitor uses to exclude bridge fills from direct
// payment matching (spec §4.D.1's bridge-fill exclusion).
func spokePoolSet(cfg *config.Config) map[common.Address]bool {
	out := make(map[common.Address]bool, len(cfg.BridgeSpokePools))
	for _, addr := range cfg.BridgeSpokePools {
		if addr == "" {
			continue
		}
		out[common.HexToAddress(addr)] = true
	}
	return out
}

func solanaPublicKey(base58Addr string) (ag_solana.PublicKey, error) {
	if base58Addr == "" {
		return ag_solana.PublicKey{}, errEmptyKey
	}
	return ag_solana.PublicKeyFromBase58(base58Addr)
}
