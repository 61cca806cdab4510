// Package orchestrator drives trade actions end to end: preflight
// against fresh chain state, submit, wait for the mine, refresh. No
// transaction leaves this package without its preconditions re-checked
// on chain first; cached or previously rendered state is never enough
// to act on.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vetexchange/vetex/internal/chain"
	"github.com/vetexchange/vetex/internal/logging"
	"github.com/vetexchange/vetex/internal/metrics"
	"github.com/vetexchange/vetex/internal/traces"
	"github.com/vetexchange/vetex/internal/trade"
)

// PreconditionError means the action failed preflight and no
// transaction was submitted.
type PreconditionError struct {
	Action trade.Action
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("orchestrator: %s blocked: %s", e.Action, e.Reason)
}

// ErrSimulationRejected means the dry-run of the escrow payout failed,
// so the release was not submitted.
var ErrSimulationRejected = errors.New("orchestrator: payout simulation rejected")

func isTimeout(err error) bool {
	return errors.Is(err, chain.ErrTimeout)
}

// Chain is the slice of the chain client the orchestrator drives.
type Chain interface {
	GetTrade(ctx context.Context, id uint64) (*trade.Trade, error)
	EscrowBalance(ctx context.Context, token string) (*big.Int, error)
	SimulateEscrowTransfer(ctx context.Context, token, to string, amount *big.Int) error

	AcceptTrade(ctx context.Context, id uint64) (*chain.TxResult, error)
	MarkPaid(ctx context.Context, id uint64, paymentRef [32]byte) (*chain.TxResult, error)
	Release(ctx context.Context, id uint64) (*chain.TxResult, error)
	CancelBySeller(ctx context.Context, id uint64) (*chain.TxResult, error)
	Dispute(ctx context.Context, id uint64) (*chain.TxResult, error)

	Allowance(ctx context.Context, token, owner string) (*big.Int, error)
	ApproveToken(ctx context.Context, token string, amount *big.Int) (*chain.TxResult, error)
	OpenTrade(ctx context.Context, token string, amount *big.Int, buyer string, fiat trade.FiatCurrency, fiatAmount *big.Int, paymentRef [32]byte) (*chain.TxResult, error)
	ParseTradeOpened(receipt *types.Receipt) (chain.TradeOpenedEvent, error)

	PendingFee(ctx context.Context, token string) (*big.Int, error)
	WithdrawFee(ctx context.Context, to string, amount *big.Int) (*chain.TxResult, error)
	ResolveWinnerTakesAll(ctx context.Context, id uint64, winner string) (*chain.TxResult, error)
	ResolveSplit(ctx context.Context, id uint64, amountToBuyer *big.Int) (*chain.TxResult, error)
	RegisterContact(ctx context.Context, kakaoID, telegramID string) (*chain.TxResult, error)

	WaitMined(ctx context.Context, txHash string, timeout time.Duration) (*chain.TxResult, error)
	WaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*types.Receipt, error)
	SignerAddress() string
}

// Resolver refreshes the merged trade view after an action lands.
type Resolver interface {
	Resolve(ctx context.Context, id uint64) (*trade.TradeView, error)
}

// Notifier receives status change events. May be nil.
type Notifier interface {
	TradeUpdated(id uint64, status trade.Status)
}

// Result of an executed action.
type Result struct {
	Action  trade.Action     `json:"action"`
	TradeID uint64           `json:"tradeId"`
	Tx      *chain.TxResult  `json:"tx"`
	Pending bool             `json:"pending"`
	Message string           `json:"message,omitempty"`
	View    *trade.TradeView `json:"view,omitempty"`
}

// Service executes trade actions.
type Service struct {
	chain          Chain
	resolver       Resolver
	notifier       Notifier
	confirmTimeout time.Duration
}

func NewService(c Chain, r Resolver, n Notifier, confirmTimeout time.Duration) *Service {
	if confirmTimeout <= 0 {
		confirmTimeout = 90 * time.Second
	}
	return &Service{chain: c, resolver: r, notifier: n, confirmTimeout: confirmTimeout}
}

// Execute runs one lifecycle action for the signing wallet. The trade
// is re-fetched and the permission re-derived immediately before
// submission, so a stale page can never push a transaction the
// contract would reject for role or status.
func (s *Service) Execute(ctx context.Context, action trade.Action, tradeID uint64, paymentRef string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "trade.execute",
		traces.TradeID(tradeID), traces.TradeAction(string(action)))
	defer span.End()

	log := logging.Trade(ctx, tradeID)
	actor := s.chain.SignerAddress()

	t, err := s.chain.GetTrade(ctx, tradeID)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(string(action), "error").Inc()
		return nil, fmt.Errorf("preflight fetch: %w", err)
	}
	if t.Seller == trade.ZeroAddress {
		metrics.ActionsTotal.WithLabelValues(string(action), "blocked").Inc()
		return nil, &PreconditionError{Action: action, Reason: "trade does not exist"}
	}

	perm := trade.ComputeActions(t, actor).Get(action)
	if !perm.Allowed {
		metrics.ActionsTotal.WithLabelValues(string(action), "blocked").Inc()
		metrics.PreflightBlocksTotal.WithLabelValues("permission").Inc()
		return nil, &PreconditionError{Action: action, Reason: perm.Reason}
	}

	if action == trade.ActionRelease {
		if err := s.releasePreflight(ctx, t); err != nil {
			metrics.ActionsTotal.WithLabelValues(string(action), "blocked").Inc()
			return nil, err
		}
	}

	tx, err := s.submit(ctx, action, tradeID, paymentRef)
	if err != nil {
		metrics.ActionsTotal.WithLabelValues(string(action), "error").Inc()
		return nil, err
	}
	log.Info("action submitted", "action", action, "tx", tx.TxHash)

	result := &Result{Action: action, TradeID: tradeID, Tx: tx}

	mined, err := s.chain.WaitMined(ctx, tx.TxHash, s.confirmTimeout)
	switch {
	case isTimeout(err):
		// The transaction may still mine later; report it as pending
		// rather than failed.
		result.Pending = true
		result.Message = "transaction submitted but not yet confirmed"
		metrics.ActionsTotal.WithLabelValues(string(action), "pending").Inc()
		log.Warn("confirmation timed out", "action", action, "tx", tx.TxHash)
		return result, nil
	case err != nil:
		metrics.ActionsTotal.WithLabelValues(string(action), "error").Inc()
		return nil, err
	}
	result.Tx = mined
	result.Tx.From = tx.From
	metrics.ActionsTotal.WithLabelValues(string(action), "ok").Inc()

	s.refresh(ctx, result)
	return result, nil
}

// releasePreflight runs the pre-payout checks that cannot be expressed
// as a permission: the buyer must be assigned, escrow must actually
// hold the tokens, and the payout transfer must succeed in simulation.
func (s *Service) releasePreflight(ctx context.Context, t *trade.Trade) error {
	if !t.BuyerAssigned() {
		metrics.PreflightBlocksTotal.WithLabelValues("no_buyer").Inc()
		return &PreconditionError{Action: trade.ActionRelease, Reason: "no buyer assigned"}
	}

	bal, err := s.chain.EscrowBalance(ctx, t.Token)
	if err != nil {
		return fmt.Errorf("escrow balance check: %w", err)
	}
	if bal.Cmp(t.Amount) < 0 {
		metrics.PreflightBlocksTotal.WithLabelValues("underfunded").Inc()
		return &PreconditionError{Action: trade.ActionRelease, Reason: "escrow does not hold the trade amount"}
	}

	if err := s.chain.SimulateEscrowTransfer(ctx, t.Token, t.Buyer, t.Amount); err != nil {
		metrics.PreflightBlocksTotal.WithLabelValues("simulation").Inc()
		return fmt.Errorf("%w: %v", ErrSimulationRejected, err)
	}
	return nil
}

func (s *Service) submit(ctx context.Context, action trade.Action, tradeID uint64, paymentRef string) (*chain.TxResult, error) {
	switch action {
	case trade.ActionAccept:
		return s.chain.AcceptTrade(ctx, tradeID)
	case trade.ActionMarkPaid:
		return s.chain.MarkPaid(ctx, tradeID, chain.RefBytes(paymentRef))
	case trade.ActionRelease:
		return s.chain.Release(ctx, tradeID)
	case trade.ActionCancel:
		return s.chain.CancelBySeller(ctx, tradeID)
	case trade.ActionDispute:
		return s.chain.Dispute(ctx, tradeID)
	default:
		return nil, fmt.Errorf("orchestrator: unknown action %q", action)
	}
}

// refresh re-resolves the view after a mined action and pushes the
// status event. Best effort: a refresh failure does not fail the
// action that already landed.
func (s *Service) refresh(ctx context.Context, result *Result) {
	view, err := s.resolver.Resolve(ctx, result.TradeID)
	if err != nil {
		logging.Trade(ctx, result.TradeID).Warn("post-action refresh failed", "error", err)
		return
	}
	result.View = view
	if s.notifier != nil {
		s.notifier.TradeUpdated(result.TradeID, view.Status)
	}
}
