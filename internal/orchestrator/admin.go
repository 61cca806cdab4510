package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vetexchange/vetex/internal/chain"
	"github.com/vetexchange/vetex/internal/logging"
	"github.com/vetexchange/vetex/internal/tokens"
	"github.com/vetexchange/vetex/internal/trade"
	"github.com/vetexchange/vetex/internal/units"
)

// FeeBalance is the accrued platform fee for one token.
type FeeBalance struct {
	Symbol  string `json:"symbol"`
	Token   string `json:"token"`
	Display string `json:"display"`
	Raw     string `json:"raw"`
}

// PendingFees reads the accrued fee for every registered token.
func (s *Service) PendingFees(ctx context.Context, reg *tokens.Registry) ([]FeeBalance, error) {
	toks := reg.All()
	fees := make([]FeeBalance, 0, len(toks))
	for _, tok := range toks {
		raw, err := s.chain.PendingFee(ctx, tok.Address)
		if err != nil {
			return nil, fmt.Errorf("pending fee for %s: %w", tok.Symbol, err)
		}
		fees = append(fees, FeeBalance{
			Symbol:  tok.Symbol,
			Token:   tok.Address,
			Display: units.Format(raw, tok.Decimals),
			Raw:     raw.String(),
		})
	}
	return fees, nil
}

// WithdrawFee moves accrued fees out of the contract. Amount is
// human-readable in the token's units.
func (s *Service) WithdrawFee(ctx context.Context, tok tokens.Token, to, amount string) (*Result, error) {
	raw, ok := units.Parse(amount, tok.Decimals)
	if !ok || raw.Sign() <= 0 {
		return nil, fmt.Errorf("orchestrator: invalid fee amount %q", amount)
	}

	tx, err := s.chain.WithdrawFee(ctx, to, raw)
	if err != nil {
		return nil, fmt.Errorf("withdraw fee: %w", err)
	}
	logging.FromContext(ctx).Info("fee withdrawal submitted", "token", tok.Symbol, "to", to, "tx", tx.TxHash)

	return s.confirm(ctx, "withdrawFee", 0, tx)
}

// ResolveWinner settles a disputed trade entirely to one party.
func (s *Service) ResolveWinner(ctx context.Context, tradeID uint64, winner string) (*Result, error) {
	if _, err := s.disputePreflight(ctx, tradeID); err != nil {
		return nil, err
	}
	tx, err := s.chain.ResolveWinnerTakesAll(ctx, tradeID, winner)
	if err != nil {
		return nil, fmt.Errorf("resolve winner: %w", err)
	}
	return s.confirm(ctx, "resolveWinner", tradeID, tx)
}

// ResolveSplit settles a disputed trade by paying amountToBuyer (in the
// token's smallest units) to the buyer; the contract returns the
// remainder to the seller.
func (s *Service) ResolveSplit(ctx context.Context, tradeID uint64, amountToBuyer *big.Int) (*Result, error) {
	if amountToBuyer == nil || amountToBuyer.Sign() < 0 {
		return nil, fmt.Errorf("orchestrator: invalid split amount")
	}
	t, err := s.disputePreflight(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if amountToBuyer.Cmp(t.Amount) > 0 {
		return nil, &PreconditionError{Action: "resolve", Reason: "split amount exceeds escrowed amount"}
	}
	tx, err := s.chain.ResolveSplit(ctx, tradeID, amountToBuyer)
	if err != nil {
		return nil, fmt.Errorf("resolve split: %w", err)
	}
	return s.confirm(ctx, "resolveSplit", tradeID, tx)
}

// RegisterContact puts the signer's messenger handles on chain.
func (s *Service) RegisterContact(ctx context.Context, kakaoID, telegramID string) (*Result, error) {
	if kakaoID == "" && telegramID == "" {
		return nil, fmt.Errorf("orchestrator: at least one contact handle required")
	}
	tx, err := s.chain.RegisterContact(ctx, kakaoID, telegramID)
	if err != nil {
		return nil, fmt.Errorf("register contact: %w", err)
	}
	return s.confirm(ctx, "registerContact", 0, tx)
}

func (s *Service) disputePreflight(ctx context.Context, tradeID uint64) (*trade.Trade, error) {
	t, err := s.chain.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("preflight fetch: %w", err)
	}
	if t.Seller == trade.ZeroAddress {
		return nil, &PreconditionError{Action: "resolve", Reason: "trade does not exist"}
	}
	if t.Status != trade.StatusDisputed {
		return nil, &PreconditionError{Action: "resolve", Reason: "trade is not disputed"}
	}
	return t, nil
}

// confirm waits out a submitted administrative transaction, sharing
// the pending semantics of Execute.
func (s *Service) confirm(ctx context.Context, op string, tradeID uint64, tx *chain.TxResult) (*Result, error) {
	result := &Result{Action: trade.Action(op), TradeID: tradeID, Tx: tx}

	mined, err := s.chain.WaitMined(ctx, tx.TxHash, s.confirmTimeout)
	if err != nil {
		if isTimeout(err) {
			result.Pending = true
			result.Message = "transaction submitted but not yet confirmed"
			return result, nil
		}
		return nil, err
	}
	mined.From = tx.From
	result.Tx = mined

	if tradeID != 0 {
		s.refresh(ctx, result)
	}
	return result, nil
}
