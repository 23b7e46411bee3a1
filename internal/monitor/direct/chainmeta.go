package direct

// NativeSymbols is the set of chain-native currencies the direct monitor
// watches via block/transaction scanning rather than ERC-20 Transfer logs.
var NativeSymbols = map[string]bool{
	"ETH":   true,
	"MATIC": true,
	"AVAX":  true,
	"BNB":   true,
	"SOL":   true,
}

func IsNativeSymbol(symbol string) bool {
	return NativeSymbols[symbol]
}

// chainClass buckets a chain into the two historical-lookback tiers spec
// §4.D.1 names: "Polygon-class" (slower blocks, small lookback) and
// "Arbitrum-class" (fast blocks, larger lookback).
type chainClass struct {
	blockTimeSeconds float64
	lookbackBlocks   uint64
}

var chainClasses = map[string]chainClass{
	"polygon":  {blockTimeSeconds: 2.0, lookbackBlocks: 150},
	"base":     {blockTimeSeconds: 2.0, lookbackBlocks: 150},
	"arbitrum": {blockTimeSeconds: 0.25, lookbackBlocks: 1500},
}

// defaultChainClass is used for any chain not explicitly classified above,
// erring toward the smaller, cheaper lookback.
var defaultChainClass = chainClass{blockTimeSeconds: 2.0, lookbackBlocks: 150}

func classFor(chain string) chainClass {
	if c, ok := chainClasses[chain]; ok {
		return c
	}
	return defaultChainClass
}

// EstimateLookbackBlocks returns how many blocks back of `currentBlock` the
// monitor should start its historical scan from, given how long ago the
// payment was created and the chain's lookback cap.
func EstimateLookbackBlocks(chain string, secondsSinceCreation float64) uint64 {
	class := classFor(chain)
	estimated := uint64(secondsSinceCreation / class.blockTimeSeconds)
	if estimated > class.lookbackBlocks {
		return class.lookbackBlocks
	}
	return estimated
}
