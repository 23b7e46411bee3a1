package orchestrator

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"

	ag_solana "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	solanachain "github.com/rajweb3/railclaw/internal/chain/solana"
	"github.com/rajweb3/railclaw/internal/policy"
	"github.com/rajweb3/railclaw/internal/record"
	"github.com/rajweb3/railclaw/internal/walletseal"
)

// bridgeTokenDecimals is fixed at 6 (USDC) — spec §4.E step 4 only ever
// bridges USDC: "generate a fresh Solana keypair, derive its USDC ATA".
const bridgeTokenDecimals = 6

// createPaymentLink implements spec §4.E's create_payment_link action:
// policy read, routing, validation, record-field computation, record
// creation, and detached monitor launch.
func (o *Orchestrator) createPaymentLink(req Request) (Response, error) {
	pol, err := o.loadPolicy()
	if err != nil {
		return Response{}, fmt.Errorf("orchestrator: load policy: %w", err)
	}
	if !pol.IsReady() {
		return rejected("not_ready", nil, ""), nil
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return rejected(ViolationAmount, nil, req.Amount), nil
	}

	// Step 2: routing. Order is decisive — bridge eligibility is checked
	// before direct eligibility.
	var kind record.Kind
	var settlementChain string
	switch {
	case policy.ContainsChainFold(pol.CrossChain.UserPayableChains, req.Chain) && pol.CrossChain.Bridge.Enabled:
		kind = record.KindBridge
		settlementChain = pol.CrossChain.Bridge.SettlementChain
	case policy.ContainsChainFold(pol.Specification.AllowedChains, req.Chain):
		kind = record.KindDirect
		settlementChain = req.Chain
	default:
		return rejected(ViolationChain, pol.Specification.AllowedChains, req.Chain), nil
	}

	// Step 3: token/amount/EMI validation.
	if !policy.ContainsChainFold(pol.Specification.AllowedTokens, req.Token) {
		return rejected(ViolationToken, pol.Specification.AllowedTokens, req.Token), nil
	}

	effectiveAmount := amount
	if req.EMI {
		if !pol.Operational.EMIEnabled {
			return rejected(ViolationEMI, nil, "true"), nil
		}
		premium := decimal.NewFromFloat(pol.Operational.EMIPremiumPercent).Div(decimal.NewFromInt(100))
		effectiveAmount = amount.Mul(decimal.NewFromInt(1).Add(premium))
	}

	if pol.Restrictions.MaxSinglePayment > 0 {
		max := decimal.NewFromFloat(pol.Restrictions.MaxSinglePayment)
		if effectiveAmount.GreaterThan(max) {
			return rejected(ViolationAmount, []string{max.String()}, effectiveAmount.String()), nil
		}
	}

	paymentID := newPaymentID()
	now := time.Now()
	expiry := now.Add(time.Duration(o.deps.Config.DefaultExpiryHours) * time.Hour)

	header := record.Header{
		PaymentID:        paymentID,
		BusinessID:       pol.Business.ID,
		BusinessName:     pol.Business.Name,
		SettlementWallet: pol.Business.Wallet,
		ChatID:           pol.Business.ChatID,
		Kind:             kind,
		Token:            req.Token,
		SettlementChain:  settlementChain,
		Status:           record.StatusPending,
		CreatedAt:        now,
		ExpiresAt:        expiry,
	}

	var resp Response
	var rec record.Record

	if kind == record.KindDirect {
		rec = &record.DirectRecord{Header: header, ExpectedAmount: effectiveAmount.String()}
		resp = Response{
			Status:         StatusExecuted,
			PaymentID:      paymentID,
			PaymentLinkURL: strings.TrimRight(o.deps.Config.BaseURL, "/") + "/p/" + paymentID,
		}
	} else {
		bridgeRec, instructions, err := o.buildBridgeRecord(header, effectiveAmount, amount)
		if err != nil {
			return Response{}, fmt.Errorf("orchestrator: build bridge record: %w", err)
		}
		rec = bridgeRec
		resp = Response{
			Status:             StatusBridgePayment,
			PaymentID:          paymentID,
			BridgeInstructions: instructions,
		}
	}

	if err := o.deps.Store.Create(rec); err != nil {
		return Response{}, fmt.Errorf("orchestrator: create record: %w", err)
	}

	if err := o.launchMonitor(rec); err != nil {
		o.log.Error("orchestrator: failed to launch monitor", map[string]any{"payment_id": paymentID, "error": err})
	}

	return resp, nil
}

// buildBridgeRecord computes spec §4.E step 4's bridge fields: a fresh
// disposable Solana keypair, its USDC ATA as the deposit address, the
// sealed private key, and the relay-fee/raw-amount math.
func (o *Orchestrator) buildBridgeRecord(header record.Header, amount, businessReceives decimal.Decimal) (*record.BridgeRecord, *BridgeInstructions, error) {
	wallet, err := ag_solana.NewRandomPrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generate solana keypair: %w", err)
	}
	pub := wallet.PublicKey()

	inputMintAddr := o.deps.Config.TokenAddresses["solana"]["USDC"]
	if inputMintAddr == "" {
		return nil, nil, fmt.Errorf("no solana USDC mint configured")
	}
	inputMint, err := ag_solana.PublicKeyFromBase58(inputMintAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configured solana USDC mint %q: %w", inputMintAddr, err)
	}

	ata, err := solanachain.DeriveATA(pub, inputMint)
	if err != nil {
		return nil, nil, fmt.Errorf("derive deposit ATA: %w", err)
	}

	sealed, err := walletseal.Seal([]byte(wallet), o.deps.WalletKey)
	if err != nil {
		return nil, nil, fmt.Errorf("seal temp private key: %w", err)
	}

	rawOutput := toRawUnits(amount, bridgeTokenDecimals)
	minFeeBuffer, ok := new(big.Int).SetString(o.deps.Config.BridgeMinRelayFeeBuf, 10)
	if !ok {
		minFeeBuffer = big.NewInt(0)
	}
	relayFee := proportionalFee(rawOutput, o.deps.Config.BridgeRelayFeePct)
	if relayFee.Cmp(minFeeBuffer) < 0 {
		relayFee = minFeeBuffer
	}
	rawInput := new(big.Int).Add(rawOutput, relayFee)

	outputTokenAddr := o.deps.Config.TokenAddresses[header.SettlementChain]["USDC"]

	rec := &record.BridgeRecord{
		Header:               header,
		SourceChain:          "solana",
		InputTokenMint:       inputMintAddr,
		OutputTokenAddress:   outputTokenAddr,
		RawInputAmount:       rawInput.String(),
		RawOutputAmount:      rawOutput.String(),
		RelayFee:             relayFee.String(),
		TempWalletPubkey:     pub.String(),
		DepositAddress:       ata.String(),
		TempPrivateKeySealed: base64.StdEncoding.EncodeToString(sealed),
		SpokePoolSource:      o.deps.Config.BridgeSpokePoolSolana,
		SpokePoolDestination: o.deps.Config.BridgeSpokePools[header.SettlementChain],
		DestinationChainID:   o.deps.Config.BridgeAcrossChainIDs[header.SettlementChain],
		QuoteTimestamp:       header.CreatedAt.Unix(),
		FillDeadline:         header.CreatedAt.Add(time.Duration(o.deps.Config.BridgeFillDeadlineSecs) * time.Second).Unix(),
	}

	instructions := &BridgeInstructions{
		DepositAddress:   rec.DepositAddress,
		AmountToSend:     fromRawUnits(rawInput, bridgeTokenDecimals).StringFixed(2),
		RelayFee:         fromRawUnits(relayFee, bridgeTokenDecimals).StringFixed(2),
		BusinessReceives: businessReceives.StringFixed(2),
		SettlementChain:  header.SettlementChain,
		SettlementWallet: header.SettlementWallet,
	}

	return rec, instructions, nil
}

func proportionalFee(rawAmount *big.Int, feePct float64) *big.Int {
	feeFloat := new(big.Float).Mul(new(big.Float).SetInt(rawAmount), big.NewFloat(feePct))
	fee, _ := feeFloat.Int(nil)
	return fee
}

func toRawUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

func fromRawUnits(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}

func newPaymentID() string {
	return "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
