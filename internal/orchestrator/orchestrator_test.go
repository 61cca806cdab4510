package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vetexchange/vetex/internal/chain"
	"github.com/vetexchange/vetex/internal/trade"
)

const (
	sellerAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	buyerAddr  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	tokenAddr  = "0x2222222222222222222222222222222222222222"
)

// mockChain records submissions; unset paths succeed with sane defaults.
type mockChain struct {
	signer string

	trade    *trade.Trade
	tradeErr error

	escrowBal    *big.Int
	escrowBalErr error
	simulateErr  error

	allowance   *big.Int
	splitAmount *big.Int

	waitErr  error
	receipt  *types.Receipt
	openedEv chain.TradeOpenedEvent
	parseErr error

	pendingFees map[string]*big.Int

	submitted []string // method names, in order
}

func (m *mockChain) record(name string) *chain.TxResult {
	m.submitted = append(m.submitted, name)
	return &chain.TxResult{TxHash: "0x" + name, From: m.signer, GasLimit: 100_000}
}

func (m *mockChain) GetTrade(ctx context.Context, id uint64) (*trade.Trade, error) {
	if m.tradeErr != nil {
		return nil, m.tradeErr
	}
	return m.trade, nil
}

func (m *mockChain) EscrowBalance(ctx context.Context, token string) (*big.Int, error) {
	if m.escrowBalErr != nil {
		return nil, m.escrowBalErr
	}
	if m.escrowBal != nil {
		return m.escrowBal, nil
	}
	return big.NewInt(1 << 40), nil
}

func (m *mockChain) SimulateEscrowTransfer(ctx context.Context, token, to string, amount *big.Int) error {
	return m.simulateErr
}

func (m *mockChain) AcceptTrade(ctx context.Context, id uint64) (*chain.TxResult, error) {
	return m.record("acceptTrade"), nil
}

func (m *mockChain) MarkPaid(ctx context.Context, id uint64, ref [32]byte) (*chain.TxResult, error) {
	return m.record("markPaid"), nil
}

func (m *mockChain) Release(ctx context.Context, id uint64) (*chain.TxResult, error) {
	return m.record("release"), nil
}

func (m *mockChain) CancelBySeller(ctx context.Context, id uint64) (*chain.TxResult, error) {
	return m.record("cancelBySeller"), nil
}

func (m *mockChain) Dispute(ctx context.Context, id uint64) (*chain.TxResult, error) {
	return m.record("dispute"), nil
}

func (m *mockChain) Allowance(ctx context.Context, token, owner string) (*big.Int, error) {
	if m.allowance != nil {
		return m.allowance, nil
	}
	return big.NewInt(0), nil
}

func (m *mockChain) ApproveToken(ctx context.Context, token string, amount *big.Int) (*chain.TxResult, error) {
	return m.record("approve"), nil
}

func (m *mockChain) OpenTrade(ctx context.Context, token string, amount *big.Int, buyer string, fiat trade.FiatCurrency, fiatAmount *big.Int, ref [32]byte) (*chain.TxResult, error) {
	return m.record("openTrade"), nil
}

func (m *mockChain) ParseTradeOpened(receipt *types.Receipt) (chain.TradeOpenedEvent, error) {
	return m.openedEv, m.parseErr
}

func (m *mockChain) PendingFee(ctx context.Context, token string) (*big.Int, error) {
	if fee, ok := m.pendingFees[token]; ok {
		return fee, nil
	}
	return big.NewInt(0), nil
}

func (m *mockChain) WithdrawFee(ctx context.Context, to string, amount *big.Int) (*chain.TxResult, error) {
	return m.record("withdrawFee"), nil
}

func (m *mockChain) ResolveWinnerTakesAll(ctx context.Context, id uint64, winner string) (*chain.TxResult, error) {
	return m.record("resolveWinnerTakesAll"), nil
}

func (m *mockChain) ResolveSplit(ctx context.Context, id uint64, amountToBuyer *big.Int) (*chain.TxResult, error) {
	m.splitAmount = amountToBuyer
	return m.record("resolveSplit"), nil
}

func (m *mockChain) RegisterContact(ctx context.Context, kakaoID, telegramID string) (*chain.TxResult, error) {
	return m.record("registerContact"), nil
}

func (m *mockChain) WaitMined(ctx context.Context, txHash string, timeout time.Duration) (*chain.TxResult, error) {
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return &chain.TxResult{TxHash: txHash, BlockNumber: 1234, GasUsed: 80_000}, nil
}

func (m *mockChain) WaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*types.Receipt, error) {
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	if m.receipt != nil {
		return m.receipt, nil
	}
	return &types.Receipt{Status: 1, BlockNumber: big.NewInt(1234)}, nil
}

func (m *mockChain) SignerAddress() string { return m.signer }

type mockResolver struct {
	view *trade.TradeView
	err  error
}

func (m *mockResolver) Resolve(ctx context.Context, id uint64) (*trade.TradeView, error) {
	return m.view, m.err
}

type mockNotifier struct {
	updates []trade.Status
}

func (m *mockNotifier) TradeUpdated(id uint64, status trade.Status) {
	m.updates = append(m.updates, status)
}

func escrowTrade(status trade.Status, buyer string) *trade.Trade {
	return &trade.Trade{
		ID:         7,
		Seller:     sellerAddr,
		Buyer:      buyer,
		Token:      tokenAddr,
		Amount:     big.NewInt(1_000_000),
		FiatAmount: big.NewInt(50_000),
		Fiat:       trade.FiatKRW,
		Status:     status,
	}
}

func viewFor(t *trade.Trade) *trade.TradeView {
	return &trade.TradeView{Trade: *t}
}

func TestExecute_HappyPath(t *testing.T) {
	after := escrowTrade(trade.StatusTaken, buyerAddr)
	c := &mockChain{signer: buyerAddr, trade: escrowTrade(trade.StatusOpen, trade.ZeroAddress)}
	notifier := &mockNotifier{}
	svc := NewService(c, &mockResolver{view: viewFor(after)}, notifier, time.Second)

	res, err := svc.Execute(context.Background(), trade.ActionAccept, 7, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"acceptTrade"}, c.submitted)
	assert.False(t, res.Pending)
	assert.Equal(t, uint64(1234), res.Tx.BlockNumber)
	assert.Equal(t, buyerAddr, res.Tx.From)
	require.NotNil(t, res.View)
	assert.Equal(t, trade.StatusTaken, res.View.Status)
	assert.Equal(t, []trade.Status{trade.StatusTaken}, notifier.updates)
}

func TestExecute_PermissionBlocked(t *testing.T) {
	// The signer is the seller; accepting your own trade is not a thing.
	c := &mockChain{signer: sellerAddr, trade: escrowTrade(trade.StatusTaken, buyerAddr)}
	svc := NewService(c, &mockResolver{}, nil, time.Second)

	_, err := svc.Execute(context.Background(), trade.ActionMarkPaid, 7, "")

	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, trade.ActionMarkPaid, pe.Action)
	assert.Equal(t, trade.ReasonNotBuyer, pe.Reason)
	assert.Empty(t, c.submitted, "blocked action must not reach the chain")
}

func TestExecute_StaleStateBlocked(t *testing.T) {
	// The page believed the trade was PAID, but it got canceled under us.
	c := &mockChain{signer: sellerAddr, trade: escrowTrade(trade.StatusCanceled, buyerAddr)}
	svc := NewService(c, &mockResolver{}, nil, time.Second)

	_, err := svc.Execute(context.Background(), trade.ActionRelease, 7, "")

	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "CANCELED")
	assert.Empty(t, c.submitted)
}

func TestExecute_NonexistentTrade(t *testing.T) {
	c := &mockChain{signer: sellerAddr, trade: &trade.Trade{Seller: trade.ZeroAddress}}
	svc := NewService(c, &mockResolver{}, nil, time.Second)

	_, err := svc.Execute(context.Background(), trade.ActionAccept, 999, "")

	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "trade does not exist", pe.Reason)
}

func TestExecute_ReleasePreflight(t *testing.T) {
	t.Run("underfunded escrow", func(t *testing.T) {
		c := &mockChain{
			signer:    sellerAddr,
			trade:     escrowTrade(trade.StatusPaid, buyerAddr),
			escrowBal: big.NewInt(1),
		}
		svc := NewService(c, &mockResolver{}, nil, time.Second)

		_, err := svc.Execute(context.Background(), trade.ActionRelease, 7, "")

		var pe *PreconditionError
		require.ErrorAs(t, err, &pe)
		assert.Contains(t, pe.Reason, "escrow does not hold")
		assert.Empty(t, c.submitted)
	})

	t.Run("simulation rejected", func(t *testing.T) {
		c := &mockChain{
			signer:      sellerAddr,
			trade:       escrowTrade(trade.StatusPaid, buyerAddr),
			simulateErr: chain.ErrTransferFalse,
		}
		svc := NewService(c, &mockResolver{}, nil, time.Second)

		_, err := svc.Execute(context.Background(), trade.ActionRelease, 7, "")
		assert.ErrorIs(t, err, ErrSimulationRejected)
		assert.Empty(t, c.submitted)
	})

	t.Run("balance read failure", func(t *testing.T) {
		c := &mockChain{
			signer:       sellerAddr,
			trade:        escrowTrade(trade.StatusPaid, buyerAddr),
			escrowBalErr: errors.New("rpc down"),
		}
		svc := NewService(c, &mockResolver{}, nil, time.Second)

		_, err := svc.Execute(context.Background(), trade.ActionRelease, 7, "")
		require.Error(t, err)
		assert.Empty(t, c.submitted)
	})

	t.Run("all checks pass", func(t *testing.T) {
		after := escrowTrade(trade.StatusReleased, buyerAddr)
		c := &mockChain{signer: sellerAddr, trade: escrowTrade(trade.StatusPaid, buyerAddr)}
		svc := NewService(c, &mockResolver{view: viewFor(after)}, nil, time.Second)

		res, err := svc.Execute(context.Background(), trade.ActionRelease, 7, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"release"}, c.submitted)
		assert.Equal(t, trade.StatusReleased, res.View.Status)
	})
}

func TestExecute_PendingOnConfirmTimeout(t *testing.T) {
	c := &mockChain{
		signer:  buyerAddr,
		trade:   escrowTrade(trade.StatusOpen, trade.ZeroAddress),
		waitErr: chain.ErrTimeout,
	}
	notifier := &mockNotifier{}
	svc := NewService(c, &mockResolver{}, notifier, time.Second)

	res, err := svc.Execute(context.Background(), trade.ActionAccept, 7, "")
	require.NoError(t, err)

	assert.True(t, res.Pending)
	assert.Equal(t, "transaction submitted but not yet confirmed", res.Message)
	assert.NotNil(t, res.Tx)
	assert.Nil(t, res.View, "no refresh for an unconfirmed action")
	assert.Empty(t, notifier.updates)
}

func TestExecute_MinedButReverted(t *testing.T) {
	c := &mockChain{
		signer:  buyerAddr,
		trade:   escrowTrade(trade.StatusOpen, trade.ZeroAddress),
		waitErr: &chain.CallError{Op: "confirm", TxHash: "0xacceptTrade", Err: chain.ErrTxFailed},
	}
	svc := NewService(c, &mockResolver{}, nil, time.Second)

	_, err := svc.Execute(context.Background(), trade.ActionAccept, 7, "")
	assert.ErrorIs(t, err, chain.ErrTxFailed)
}

func TestExecute_RefreshFailureDoesNotFailAction(t *testing.T) {
	c := &mockChain{signer: buyerAddr, trade: escrowTrade(trade.StatusOpen, trade.ZeroAddress)}
	svc := NewService(c, &mockResolver{err: errors.New("cache down")}, nil, time.Second)

	res, err := svc.Execute(context.Background(), trade.ActionAccept, 7, "")
	require.NoError(t, err)
	assert.Nil(t, res.View)
}

func TestExecute_DisputeByParty(t *testing.T) {
	after := escrowTrade(trade.StatusDisputed, buyerAddr)
	c := &mockChain{signer: buyerAddr, trade: escrowTrade(trade.StatusPaid, buyerAddr)}
	svc := NewService(c, &mockResolver{view: viewFor(after)}, nil, time.Second)

	res, err := svc.Execute(context.Background(), trade.ActionDispute, 7, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dispute"}, c.submitted)
	assert.Equal(t, trade.StatusDisputed, res.View.Status)
}

func TestExecute_UnknownAction(t *testing.T) {
	c := &mockChain{signer: sellerAddr, trade: escrowTrade(trade.StatusOpen, trade.ZeroAddress)}
	svc := NewService(c, &mockResolver{}, nil, time.Second)

	_, err := svc.Execute(context.Background(), trade.Action("selfdestruct"), 7, "")
	require.Error(t, err)

	var pe *PreconditionError
	assert.ErrorAs(t, err, &pe)
}

func TestExecute_EmitsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	defer otel.SetTracerProvider(prev)

	after := escrowTrade(trade.StatusReleased, buyerAddr)
	c := &mockChain{signer: sellerAddr, trade: escrowTrade(trade.StatusPaid, buyerAddr)}
	svc := NewService(c, &mockResolver{view: viewFor(after)}, nil, time.Second)

	_, err := svc.Execute(context.Background(), trade.ActionRelease, 7, "")
	require.NoError(t, err)

	spans := rec.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, "trade.execute", spans[0].Name())

	attrs := spans[0].Attributes()
	assert.Contains(t, attrs, attribute.Int64("trade.id", 7))
	assert.Contains(t, attrs, attribute.String("trade.action", "release"))
}
