// Package config binds the Configuration surface (spec §6) to a typed
// struct, loaded from environment variables with an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// yamlOverride mirrors the "Configuration surface" table (spec §6) for the
// subset of options an operator may prefer to set as a checked-in file
// rather than environment variables. Any field left zero-valued in the
// file is left at whatever env/default value Load() already computed.
type yamlOverride struct {
	RPC    map[string]string            `yaml:"rpc"`
	WS     map[string]string            `yaml:"ws"`
	Tokens map[string]map[string]string `yaml:"tokens"`
	Bridge struct {
		SpokePools            map[string]string `yaml:"spokePools"`
		AcrossChainIDs        map[string]uint64  `yaml:"acrossChainIds"`
		EstimatedRelayFeePct  float64            `yaml:"estimatedRelayFeePct"`
		MinRelayFeeBuffer     string             `yaml:"minRelayFeeBuffer"`
		FillDeadlineOffsetSec int                `yaml:"fillDeadlineOffsetSec"`
	} `yaml:"bridge"`
	Monitoring struct {
		PollIntervalMs        int `yaml:"pollIntervalMs"`
		RequiredConfirmations int `yaml:"requiredConfirmations"`
		TimeoutMs             int `yaml:"timeoutMs"`
	} `yaml:"monitoring"`
	Payment struct {
		BaseURL            string `yaml:"baseUrl"`
		DefaultExpiryHours int    `yaml:"defaultExpiryHours"`
	} `yaml:"payment"`
	DataDir string `yaml:"dataDir"`
}

// applyYAMLOverride merges a parsed override file onto cfg, field by field,
// so a YAML file only needs to name the settings it wants to change.
func applyYAMLOverride(cfg *Config, o *yamlOverride) {
	for chain, url := range o.RPC {
		if url != "" {
			cfg.EVMRPCEndpoints[chain] = url
		}
	}
	for chain, url := range o.WS {
		if url != "" {
			cfg.EVMWSEndpoints[chain] = url
		}
	}
	for chain, symbols := range o.Tokens {
		if cfg.TokenAddresses[chain] == nil {
			cfg.TokenAddresses[chain] = map[string]string{}
		}
		for symbol, addr := range symbols {
			if addr != "" {
				cfg.TokenAddresses[chain][symbol] = addr
			}
		}
	}
	for chain, addr := range o.Bridge.SpokePools {
		if addr != "" {
			cfg.BridgeSpokePools[chain] = addr
		}
	}
	for chain, id := range o.Bridge.AcrossChainIDs {
		if id != 0 {
			cfg.BridgeAcrossChainIDs[chain] = id
		}
	}
	if o.Bridge.EstimatedRelayFeePct != 0 {
		cfg.BridgeRelayFeePct = o.Bridge.EstimatedRelayFeePct
	}
	if o.Bridge.MinRelayFeeBuffer != "" {
		cfg.BridgeMinRelayFeeBuf = o.Bridge.MinRelayFeeBuffer
	}
	if o.Bridge.FillDeadlineOffsetSec != 0 {
		cfg.BridgeFillDeadlineSecs = o.Bridge.FillDeadlineOffsetSec
	}
	if o.Monitoring.PollIntervalMs != 0 {
		cfg.PollInterval = time.Duration(o.Monitoring.PollIntervalMs) * time.Millisecond
	}
	if o.Monitoring.RequiredConfirmations != 0 {
		cfg.RequiredConfirmations = o.Monitoring.RequiredConfirmations
	}
	if o.Monitoring.TimeoutMs != 0 {
		cfg.DirectTimeout = time.Duration(o.Monitoring.TimeoutMs) * time.Millisecond
	}
	if o.Payment.BaseURL != "" {
		cfg.BaseURL = o.Payment.BaseURL
	}
	if o.Payment.DefaultExpiryHours != 0 {
		cfg.DefaultExpiryHours = o.Payment.DefaultExpiryHours
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
}

// loadYAMLOverride reads and parses the optional YAML override file named by
// RAILCLAW_CONFIG_FILE. A missing file is not an error — the override is
// simply skipped and Load() falls back entirely to env vars/defaults.
func loadYAMLOverride(path string) (*yamlOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read override file %q: %w", path, err)
	}
	var o yamlOverride
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("config: parse override file %q: %w", path, err)
	}
	return &o, nil
}

// Config is the process-wide configuration. It is read once at startup and
// passed by value/pointer to every component — never re-read mid-request,
// unlike the policy document which is deliberately re-read every time.
type Config struct {
	// rpc.{chain} -> endpoint URL
	EVMRPCEndpoints map[string]string
	EVMWSEndpoints  map[string]string // chain -> optional WebSocket RPC URL
	SolanaRPCURL    string

	// tokens.{chain}.{symbol} -> address/mint
	TokenAddresses map[string]map[string]string

	// bridge.*
	BridgeSpokePools       map[string]string // chain -> SpokePool address/program
	BridgeAcrossChainIDs   map[string]uint64 // chain -> Across internal chain id
	BridgeSpokePoolSolana  string            // Across SpokePool program id on Solana
	SolanaAcrossChainID    uint64            // Across internal chain id for Solana
	BridgeRelayFeePct      float64
	BridgeMinRelayFeeBuf   string // decimal string, smallest units of output token
	BridgeFillDeadlineSecs int

	// monitoring.*
	PollInterval           time.Duration
	RequiredConfirmations  int
	DirectTimeout          time.Duration
	BridgeTimeout          time.Duration
	BridgeStage1DeadlinePct float64
	BridgeStage2DeadlinePct float64
	ResumeStage3LookbackDefault uint64

	// encryption.walletKey (hex, 32 bytes)
	WalletKeyHex string

	// payment.*
	BaseURL            string
	DefaultExpiryHours int

	// sol.*
	DispenserKeyHex    string
	FundAmountLamports uint64

	// dataDir
	DataDir string

	// policy.path
	PolicyPath string

	// HTTP server
	ListenAddr string

	LogLevel      string
	EnableMetrics bool
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		EVMRPCEndpoints: map[string]string{
			"polygon":  getEnv("RAILCLAW_RPC_POLYGON", ""),
			"arbitrum": getEnv("RAILCLAW_RPC_ARBITRUM", ""),
			"base":     getEnv("RAILCLAW_RPC_BASE", ""),
		},
		EVMWSEndpoints: map[string]string{
			"polygon":  getEnv("RAILCLAW_WS_POLYGON", ""),
			"arbitrum": getEnv("RAILCLAW_WS_ARBITRUM", ""),
			"base":     getEnv("RAILCLAW_WS_BASE", ""),
		},
		SolanaRPCURL: getEnv("RAILCLAW_RPC_SOLANA", "https://api.mainnet-beta.solana.com"),

		TokenAddresses: map[string]map[string]string{},

		BridgeSpokePools:      map[string]string{},
		BridgeAcrossChainIDs:  map[string]uint64{},
		BridgeSpokePoolSolana: getEnv("RAILCLAW_BRIDGE_SPOKEPOOL_SOLANA", ""),
		SolanaAcrossChainID:   uint64(getEnvInt("RAILCLAW_BRIDGE_ACROSS_CHAIN_ID_SOLANA", 34268394551451)),
		BridgeRelayFeePct:     getEnvFloat("RAILCLAW_BRIDGE_RELAY_FEE_PCT", 0.003),
		BridgeMinRelayFeeBuf: getEnv("RAILCLAW_BRIDGE_MIN_RELAY_FEE_BUFFER", "100000"),
		BridgeFillDeadlineSecs: getEnvInt("RAILCLAW_BRIDGE_FILL_DEADLINE_OFFSET_SEC", 6*3600),

		PollInterval:          time.Duration(getEnvInt("RAILCLAW_MONITORING_POLL_INTERVAL_MS", 30000)) * time.Millisecond,
		RequiredConfirmations: getEnvInt("RAILCLAW_REQUIRED_CONFIRMATIONS", 20),
		DirectTimeout:         time.Duration(getEnvInt("RAILCLAW_DIRECT_TIMEOUT_MS", 3600000)) * time.Millisecond,
		BridgeTimeout:         time.Duration(getEnvInt("RAILCLAW_BRIDGE_TIMEOUT_MS", 7200000)) * time.Millisecond,
		BridgeStage1DeadlinePct: getEnvFloat("RAILCLAW_BRIDGE_STAGE1_PCT", 0.20),
		BridgeStage2DeadlinePct: getEnvFloat("RAILCLAW_BRIDGE_STAGE2_PCT", 0.10),
		ResumeStage3LookbackDefault: uint64(getEnvInt("RAILCLAW_RESUME_STAGE3_LOOKBACK_BLOCKS", 2000)),

		WalletKeyHex: getEnv("RAILCLAW_ENCRYPTION_WALLET_KEY", ""),

		BaseURL:            getEnv("RAILCLAW_PAYMENT_BASE_URL", "https://pay.example.com"),
		DefaultExpiryHours: getEnvInt("RAILCLAW_PAYMENT_DEFAULT_EXPIRY_HOURS", 2),

		DispenserKeyHex:    getEnv("RAILCLAW_SOL_DISPENSER_KEY", ""),
		FundAmountLamports: uint64(getEnvInt("RAILCLAW_SOL_FUND_AMOUNT_LAMPORTS", 10000000)),

		DataDir: getEnv("RAILCLAW_DATA_DIR", "./data"),

		PolicyPath: getEnv("RAILCLAW_POLICY_PATH", "./policy.yaml"),

		ListenAddr: getEnv("RAILCLAW_LISTEN_ADDR", ":8080"),

		LogLevel:      getEnv("RAILCLAW_LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("RAILCLAW_ENABLE_METRICS", false),
	}

	for _, chain := range []string{"polygon", "arbitrum", "base"} {
		spoke := getEnv("RAILCLAW_BRIDGE_SPOKEPOOL_"+strings.ToUpper(chain), "")
		if spoke != "" {
			cfg.BridgeSpokePools[chain] = spoke
		}
		id := getEnvInt("RAILCLAW_BRIDGE_ACROSS_CHAIN_ID_"+strings.ToUpper(chain), 0)
		if id != 0 {
			cfg.BridgeAcrossChainIDs[chain] = uint64(id)
		}
	}

	for _, chain := range []string{"polygon", "arbitrum", "base", "solana"} {
		for _, symbol := range []string{"USDC", "USDT", "WETH"} {
			addr := getEnv("RAILCLAW_TOKEN_"+strings.ToUpper(chain)+"_"+symbol, "")
			if addr == "" {
				continue
			}
			if cfg.TokenAddresses[chain] == nil {
				cfg.TokenAddresses[chain] = map[string]string{}
			}
			cfg.TokenAddresses[chain][symbol] = addr
		}
	}

	if overridePath := getEnv("RAILCLAW_CONFIG_FILE", "./config.yaml"); overridePath != "" {
		override, err := loadYAMLOverride(overridePath)
		if err != nil {
			// A malformed override file is an operator mistake, not a
			// transient condition — fail loudly rather than silently run
			// on env-only defaults.
			panic(err)
		}
		if override != nil {
			applyYAMLOverride(cfg, override)
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}
