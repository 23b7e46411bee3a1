// Package policy is a typed, read-only view over the versioned policy
// document. Every Load call performs a fresh parse — no process-wide cache
// survives a request boundary, so a policy edit takes effect on the very
// next request (spec invariant: "policy changes take effect on the next
// request").
package policy

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Status string

const (
	StatusPendingOnboarding Status = "pending_onboarding"
	StatusActive            Status = "active"
)

type Business struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Wallet     string `yaml:"wallet"`
	Onboarded  bool   `yaml:"onboarded"`
	ChatID     string `yaml:"chat_id,omitempty"`
}

type Specification struct {
	AllowedChains []string `yaml:"allowed_chains"`
	AllowedTokens []string `yaml:"allowed_tokens"`
}

type Restrictions struct {
	MaxSinglePayment float64 `yaml:"max_single_payment"`
}

type Operational struct {
	EMIEnabled        bool    `yaml:"emi_enabled"`
	EMIPremiumPercent float64 `yaml:"emi_premium_percent"`
}

type Bridge struct {
	Enabled         bool   `yaml:"enabled"`
	Provider        string `yaml:"provider"`
	SettlementChain string `yaml:"settlement_chain"`
}

type CrossChain struct {
	UserPayableChains []string `yaml:"user_payable_chains"`
	Bridge            Bridge   `yaml:"bridge"`
}

// Policy is the deep-immutable, validated view of the policy document.
// Callers receive copies of every slice/map field from Load, so mutating
// a returned Policy cannot affect the next Load's result.
type Policy struct {
	Version       int           `yaml:"version"`
	Status        Status        `yaml:"status"`
	UpdatedAt     string        `yaml:"updated_at"`
	Business      Business      `yaml:"business"`
	Specification Specification `yaml:"specification"`
	Restrictions  Restrictions  `yaml:"restrictions"`
	Operational   Operational   `yaml:"operational"`
	CrossChain    CrossChain    `yaml:"cross_chain"`
}

// ErrorKind classifies a PolicyError.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindMalformed           ErrorKind = "malformed"
	KindInvariantViolated   ErrorKind = "invariant_violated"
)

type Error struct {
	Kind  ErrorKind
	Which string
	Err   error
}

func (e *Error) Error() string {
	if e.Which != "" {
		return fmt.Sprintf("policy: %s (%s): %v", e.Kind, e.Which, e.Err)
	}
	return fmt.Sprintf("policy: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load reads the policy document at path, parses it, validates the
// invariants in spec §3, and returns a freshly-allocated, deep-copied
// value. It never consults a cache: every call re-reads the file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: KindNotFound, Err: err}
		}
		return nil, &Error{Kind: KindMalformed, Err: err}
	}
	return parse(data)
}

// LoadFS is Load against an fs.FS instead of the OS filesystem, so tests
// can substitute an in-memory fstest.MapFS without touching disk.
func LoadFS(fsys fs.FS, path string) (*Policy, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: KindNotFound, Err: err}
		}
		return nil, &Error{Kind: KindMalformed, Err: err}
	}
	return parse(data)
}

func parse(data []byte) (*Policy, error) {
	// The document may carry a leading "---" front-matter fence (common in
	// policy-editor output); yaml.v3 handles a bare "---\n...\n---" as a
	// single document just fine, but tolerate a trailing second fence too.
	trimmed := strings.TrimPrefix(string(data), "---\n")

	var p Policy
	if err := yaml.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil, &Error{Kind: KindMalformed, Err: err}
	}

	if err := validate(&p); err != nil {
		return nil, err
	}

	return clone(&p), nil
}

func validate(p *Policy) error {
	if p.Status == StatusActive {
		if len(p.Specification.AllowedChains) == 0 {
			return &Error{Kind: KindInvariantViolated, Which: "allowed_chains", Err: fmt.Errorf("active policy must allow at least one chain")}
		}
		if len(p.Specification.AllowedTokens) == 0 {
			return &Error{Kind: KindInvariantViolated, Which: "allowed_tokens", Err: fmt.Errorf("active policy must allow at least one token")}
		}
	}

	if p.CrossChain.Bridge.Enabled {
		if !contains(p.Specification.AllowedChains, p.CrossChain.Bridge.SettlementChain) {
			return &Error{
				Kind:  KindInvariantViolated,
				Which: "bridge.settlement_chain",
				Err:   fmt.Errorf("settlement_chain %q must be a member of allowed_chains", p.CrossChain.Bridge.SettlementChain),
			}
		}
	}

	return nil
}

func clone(p *Policy) *Policy {
	out := *p
	out.Specification.AllowedChains = append([]string(nil), p.Specification.AllowedChains...)
	out.Specification.AllowedTokens = append([]string(nil), p.Specification.AllowedTokens...)
	out.CrossChain.UserPayableChains = append([]string(nil), p.CrossChain.UserPayableChains...)
	return &out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// ContainsChainFold reports whether chain is present in the set,
// case-insensitively, mirroring the token-matching discipline in
// spec §4.E step 3.
func ContainsChainFold(set []string, chain string) bool { return contains(set, chain) }

// IsReady reports whether the business has completed onboarding and the
// policy is active — the precondition for any routing decision.
func (p *Policy) IsReady() bool {
	return p.Status == StatusActive && p.Business.Onboarded
}
