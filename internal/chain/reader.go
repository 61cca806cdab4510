package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vetexchange/vetex/internal/metrics"
	"github.com/vetexchange/vetex/internal/trade"
)

// GetTrade reads the full on-chain trade record. A record whose seller
// is the zero address has never been opened; callers treat that as not
// found.
func (c *Client) GetTrade(ctx context.Context, id uint64) (*trade.Trade, error) {
	out, err := c.call(ctx, c.escrow, c.escrowABI, "getTrade", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}

	vals, err := c.escrowABI.Unpack("getTrade", out)
	if err != nil {
		return nil, &CallError{Op: "getTrade", Err: err}
	}
	if len(vals) != 10 {
		return nil, &CallError{Op: "getTrade", Err: fmt.Errorf("unexpected return arity %d", len(vals))}
	}

	seller, ok0 := vals[0].(common.Address)
	buyer, ok1 := vals[1].(common.Address)
	token, ok2 := vals[2].(common.Address)
	amount, ok3 := vals[3].(*big.Int)
	fiatAmount, ok4 := vals[4].(*big.Int)
	paymentRef, ok5 := vals[5].([32]byte)
	createdAt, ok6 := vals[6].(uint64)
	paidAt, ok7 := vals[7].(uint64)
	fiat, ok8 := vals[8].(uint8)
	status, ok9 := vals[9].(uint8)
	if !(ok0 && ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8 && ok9) {
		return nil, &CallError{Op: "getTrade", Err: fmt.Errorf("unexpected return types")}
	}

	return &trade.Trade{
		ID:         id,
		Seller:     strings.ToLower(seller.Hex()),
		Buyer:      strings.ToLower(buyer.Hex()),
		Token:      strings.ToLower(token.Hex()),
		Amount:     amount,
		FiatAmount: fiatAmount,
		PaymentRef: refString(paymentRef),
		CreatedAt:  createdAt,
		PaidAt:     paidAt,
		Fiat:       trade.FiatCurrency(fiat),
		Status:     trade.Status(status),
	}, nil
}

// refString renders a bytes32 payment reference as 0x-hex, or "" for
// the zero value.
func refString(ref [32]byte) string {
	zero := true
	for _, b := range ref {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return ""
	}
	return "0x" + common.Bytes2Hex(ref[:])
}

// NextTradeID returns the id the next openTrade call will get. The
// highest existing trade is NextTradeID()-1.
func (c *Client) NextTradeID(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, c.escrow, c.escrowABI, "nextTradeId")
	if err != nil {
		return 0, err
	}
	vals, err := c.escrowABI.Unpack("nextTradeId", out)
	if err != nil {
		return 0, &CallError{Op: "nextTradeId", Err: err}
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return 0, &CallError{Op: "nextTradeId", Err: fmt.Errorf("unexpected return type")}
	}
	return n.Uint64(), nil
}

// GetSellerContact reads the seller's registered contact record.
func (c *Client) GetSellerContact(ctx context.Context, seller string) (trade.Contact, error) {
	out, err := c.call(ctx, c.escrow, c.escrowABI, "getSellerContact", common.HexToAddress(seller))
	if err != nil {
		return trade.Contact{}, err
	}
	vals, err := c.escrowABI.Unpack("getSellerContact", out)
	if err != nil {
		return trade.Contact{}, &CallError{Op: "getSellerContact", Err: err}
	}
	kakao, ok0 := vals[0].(string)
	telegram, ok1 := vals[1].(string)
	registered, ok2 := vals[2].(bool)
	if !(ok0 && ok1 && ok2) {
		return trade.Contact{}, &CallError{Op: "getSellerContact", Err: fmt.Errorf("unexpected return types")}
	}
	return trade.Contact{KakaoID: kakao, TelegramID: telegram, Registered: registered}, nil
}

// PendingFee returns the accrued platform fee for a token.
func (c *Client) PendingFee(ctx context.Context, token string) (*big.Int, error) {
	out, err := c.call(ctx, c.escrow, c.escrowABI, "pendingFee", common.HexToAddress(token))
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

// TokenDecimals reads decimals() from a token contract.
func (c *Client) TokenDecimals(ctx context.Context, token string) (uint8, error) {
	out, err := c.call(ctx, common.HexToAddress(token), c.erc20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	vals, err := c.erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, &CallError{Op: "decimals", Err: err}
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return 0, &CallError{Op: "decimals", Err: fmt.Errorf("unexpected return type")}
	}
	return dec, nil
}

// TokenBalance reads balanceOf(holder) from a token contract.
func (c *Client) TokenBalance(ctx context.Context, token, holder string) (*big.Int, error) {
	out, err := c.call(ctx, common.HexToAddress(token), c.erc20ABI, "balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

// Allowance reads allowance(owner, escrow) from a token contract.
func (c *Client) Allowance(ctx context.Context, token, owner string) (*big.Int, error) {
	out, err := c.call(ctx, common.HexToAddress(token), c.erc20ABI, "allowance", common.HexToAddress(owner), c.escrow)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

// EscrowBalance reads the escrow contract's balance of a token. Release
// preflight requires this to cover the trade amount.
func (c *Client) EscrowBalance(ctx context.Context, token string) (*big.Int, error) {
	return c.TokenBalance(ctx, token, c.escrow.Hex())
}

// SimulateEscrowTransfer dry-runs token.transfer(to, amount) with the
// escrow contract as sender. It distinguishes three outcomes:
//
//	nil            the transfer would succeed (true return, or empty
//	               return from a non-standard token)
//	ErrTransferFalse  the token returned false without reverting
//	revert error   the decoded revert, via DecodeRevert
func (c *Client) SimulateEscrowTransfer(ctx context.Context, token, to string, amount *big.Int) error {
	data, err := c.erc20ABI.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return &CallError{Op: "simulateTransfer", Err: err}
	}

	tokenAddr := common.HexToAddress(token)
	done := metrics.ObserveRPC("simulateTransfer")
	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{
		From: c.escrow,
		To:   &tokenAddr,
		Data: data,
	}, nil)
	done()
	if err != nil {
		return &CallError{Op: "simulateTransfer", Err: DecodeRevert(err)}
	}

	// Non-standard tokens return no data on success.
	if len(out) == 0 {
		return nil
	}
	if new(big.Int).SetBytes(out).Sign() == 0 {
		return &CallError{Op: "simulateTransfer", Err: ErrTransferFalse}
	}
	return nil
}
