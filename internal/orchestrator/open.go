package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/vetexchange/vetex/internal/cache"
	"github.com/vetexchange/vetex/internal/chain"
	"github.com/vetexchange/vetex/internal/logging"
	"github.com/vetexchange/vetex/internal/tokens"
	"github.com/vetexchange/vetex/internal/trade"
	"github.com/vetexchange/vetex/internal/units"
)

// ErrNoContact means the seller has no messenger handle on file, so
// buyers would have no way to reach them.
var ErrNoContact = errors.New("orchestrator: seller profile has no contact handle")

// OpenParams describes a new trade to post.
type OpenParams struct {
	Token      string             `json:"token"` // symbol or address
	Amount     string             `json:"amount"`
	Buyer      string             `json:"buyer,omitempty"` // empty for an open offer
	Fiat       trade.FiatCurrency `json:"fiat"`
	FiatAmount int64              `json:"fiatAmount"`
	PaymentRef string             `json:"paymentRef,omitempty"`
}

// OpenResult describes a posted trade.
type OpenResult struct {
	TradeID   uint64          `json:"tradeId"`
	Tx        *chain.TxResult `json:"tx"`
	ApproveTx *chain.TxResult `json:"approveTx,omitempty"`
}

// Opener posts new trades: profile gate, allowance, escrow deposit,
// and the cache write that puts the trade on the board.
type Opener struct {
	chain    Chain
	store    cache.Store
	reg      *tokens.Registry
	contract string
	svc      *Service
}

func NewOpener(c Chain, store cache.Store, reg *tokens.Registry, contract string, svc *Service) *Opener {
	return &Opener{chain: c, store: store, reg: reg, contract: contract, svc: svc}
}

// Open posts a new trade for the signing wallet. The seller must have
// a contact handle cached; a buyer with no way to reach the seller
// cannot complete the fiat leg.
func (o *Opener) Open(ctx context.Context, p OpenParams) (*OpenResult, error) {
	log := logging.FromContext(ctx)
	seller := o.chain.SignerAddress()

	profile, err := o.store.GetProfile(ctx, seller)
	if err != nil || !profile.HasContact() {
		return nil, ErrNoContact
	}

	tok, err := o.resolveToken(p.Token)
	if err != nil {
		return nil, err
	}
	amount, ok := units.Parse(p.Amount, tok.Decimals)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("orchestrator: invalid amount %q", p.Amount)
	}
	if p.FiatAmount <= 0 {
		return nil, fmt.Errorf("orchestrator: fiat amount must be positive")
	}

	result := &OpenResult{}

	// Top up the allowance only when it cannot cover the deposit.
	allowance, err := o.chain.Allowance(ctx, tok.Address, seller)
	if err != nil {
		return nil, fmt.Errorf("allowance check: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		approveTx, err := o.chain.ApproveToken(ctx, tok.Address, amount)
		if err != nil {
			return nil, fmt.Errorf("approve: %w", err)
		}
		if _, err := o.chain.WaitMined(ctx, approveTx.TxHash, o.svc.confirmTimeout); err != nil {
			return nil, fmt.Errorf("approve confirm: %w", err)
		}
		result.ApproveTx = approveTx
		log.Info("allowance approved", "token", tok.Symbol, "tx", approveTx.TxHash)
	}

	buyer := p.Buyer
	if buyer == "" {
		buyer = trade.ZeroAddress
	}
	tx, err := o.chain.OpenTrade(ctx, tok.Address, amount, buyer, p.Fiat, big.NewInt(p.FiatAmount), chain.RefBytes(p.PaymentRef))
	if err != nil {
		return nil, fmt.Errorf("open trade: %w", err)
	}
	result.Tx = tx

	receipt, err := o.chain.WaitReceipt(ctx, tx.TxHash, o.svc.confirmTimeout)
	if err != nil {
		return nil, fmt.Errorf("open confirm: %w", err)
	}
	ev, err := o.chain.ParseTradeOpened(receipt)
	if err != nil {
		return nil, fmt.Errorf("parse open event: %w", err)
	}
	result.TradeID = ev.TradeID
	log.Info("trade opened", "trade_id", ev.TradeID, "token", tok.Symbol, "tx", tx.TxHash)

	o.index(ctx, ev, seller, tok, p, amount, profile)
	return result, nil
}

// index writes the new trade into both cache partitions. Best effort:
// the trade exists on chain regardless, and the board's chain fallback
// will still find it.
func (o *Opener) index(ctx context.Context, ev chain.TradeOpenedEvent, seller string, tok tokens.Token, p OpenParams, amount *big.Int, profile *cache.Profile) {
	log := logging.FromContext(ctx)

	amtDisplay := units.Format(amount, tok.Decimals)
	unitPrice := int64(0)
	if f := units.Float(amount, tok.Decimals); f > 0 {
		unitPrice = int64(float64(p.FiatAmount)/f + 0.5)
	}

	l := &cache.Listing{
		TradeID:     ev.TradeID,
		Seller:      seller,
		Token:       tok.Address,
		Symbol:      tok.Symbol,
		Amount:      amtDisplay,
		Decimals:    tok.Decimals,
		Fiat:        p.Fiat,
		FiatAmount:  p.FiatAmount,
		UnitPrice:   unitPrice,
		SellerSNS:   profile.SNS(),
		Status:      trade.StatusOpen,
		TxHash:      ev.TxHash,
		BlockNumber: ev.Block,
	}
	for _, partition := range []string{cache.GlobalPartition, cache.ContractPartition(o.contract)} {
		if err := o.store.UpsertListing(ctx, partition, l); err != nil {
			log.Warn("listing index write failed", "partition", partition, "trade_id", ev.TradeID, "error", err)
		}
	}
}

func (o *Opener) resolveToken(ref string) (tokens.Token, error) {
	if tok, ok := o.reg.BySymbol(ref); ok {
		return tok, nil
	}
	if tok, ok := o.reg.ByAddress(ref); ok {
		return tok, nil
	}
	return tokens.Token{}, fmt.Errorf("orchestrator: unknown token %q", ref)
}
