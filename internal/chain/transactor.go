package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vetexchange/vetex/internal/metrics"
	"github.com/vetexchange/vetex/internal/trade"
)

type signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func newSigner(privateKey string) (*signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("chain: invalid private key: cannot derive public key")
	}
	return &signer{key: key, address: crypto.PubkeyToAddress(*pub)}, nil
}

// TxResult describes a submitted transaction. BlockNumber and GasUsed
// are zero until the transaction is mined.
type TxResult struct {
	TxHash      string `json:"txHash"`
	From        string `json:"from"`
	Nonce       uint64 `json:"nonce"`
	GasLimit    uint64 `json:"gasLimit"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
}

// submit estimates gas for the packed call, pads the estimate by the
// configured margin, signs, and broadcasts. Estimation failures that
// carry revert data abort the submission with the decoded revert; bare
// estimation failures fall back to fallbackGas.
func (c *Client) submit(ctx context.Context, op string, target common.Address, parsed abi.ABI, fallbackGas uint64, method string, args ...interface{}) (*TxResult, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}

	nonce, err := c.ec.PendingNonceAt(ctx, c.signer.address)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}
	gasPrice, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}

	msg := ethereum.CallMsg{
		From:  c.signer.address,
		To:    &target,
		Value: big.NewInt(0),
		Data:  data,
	}
	gasLimit, err := c.ec.EstimateGas(ctx, msg)
	switch {
	case err == nil:
		gasLimit = gasLimit * uint64(100+c.gasMargin) / 100
	default:
		decoded := DecodeRevert(err)
		var rev *RevertError
		if errors.As(decoded, &rev) && rev.Kind != RevertOpaque {
			return nil, &CallError{Op: op, Err: decoded}
		}
		gasLimit = fallbackGas
	}

	tx := types.NewTransaction(nonce, target, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.signer.key)
	if err != nil {
		return nil, &CallError{Op: op, Err: err}
	}

	done := metrics.ObserveRPC("sendTransaction")
	err = c.ec.SendTransaction(ctx, signedTx)
	done()
	if err != nil {
		return nil, &CallError{Op: op, TxHash: signedTx.Hash().Hex(), Err: DecodeRevert(err)}
	}

	return &TxResult{
		TxHash:   signedTx.Hash().Hex(),
		From:     strings.ToLower(c.signer.address.Hex()),
		Nonce:    nonce,
		GasLimit: gasLimit,
	}, nil
}

// WaitReceipt polls for the transaction receipt until it appears or
// the timeout elapses. A mined-but-reverted transaction returns
// ErrTxFailed.
func (c *Client) WaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(ConfirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for tx %s", ErrTimeout, txHash)
			}
			return nil, ctx.Err()

		case <-ticker.C:
			receipt, err := c.ec.TransactionReceipt(ctx, hash)
			if err != nil {
				continue
			}
			if receipt.Status == 0 {
				return nil, &CallError{Op: "confirm", TxHash: txHash, Err: ErrTxFailed}
			}
			return receipt, nil
		}
	}
}

// WaitMined waits for the transaction to be mined and returns its
// final result.
func (c *Client) WaitMined(ctx context.Context, txHash string, timeout time.Duration) (*TxResult, error) {
	receipt, err := c.WaitReceipt(ctx, txHash, timeout)
	if err != nil {
		return nil, err
	}
	return &TxResult{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// OpenTrade locks tokens into escrow and creates a new trade. The
// buyer may be the zero address for an open offer, or a specific
// address for a reserved one.
func (c *Client) OpenTrade(ctx context.Context, token string, amount *big.Int, buyer string, fiat trade.FiatCurrency, fiatAmount *big.Int, paymentRef [32]byte) (*TxResult, error) {
	return c.submit(ctx, "openTrade", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "openTrade",
		common.HexToAddress(token), amount, common.HexToAddress(buyer), uint8(fiat), fiatAmount, paymentRef)
}

// AcceptTrade assigns the caller as buyer of an open trade.
func (c *Client) AcceptTrade(ctx context.Context, id uint64) (*TxResult, error) {
	return c.submit(ctx, "acceptTrade", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "acceptTrade", new(big.Int).SetUint64(id))
}

// MarkPaid records the buyer's fiat payment reference.
func (c *Client) MarkPaid(ctx context.Context, id uint64, paymentRef [32]byte) (*TxResult, error) {
	return c.submit(ctx, "markPaid", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "markPaid", new(big.Int).SetUint64(id), paymentRef)
}

// Release pays out the escrowed tokens to the buyer.
func (c *Client) Release(ctx context.Context, id uint64) (*TxResult, error) {
	return c.submit(ctx, "release", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "release", new(big.Int).SetUint64(id))
}

// CancelBySeller returns the escrowed tokens to the seller.
func (c *Client) CancelBySeller(ctx context.Context, id uint64) (*TxResult, error) {
	return c.submit(ctx, "cancelBySeller", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "cancelBySeller", new(big.Int).SetUint64(id))
}

// Dispute freezes a trade for arbitration.
func (c *Client) Dispute(ctx context.Context, id uint64) (*TxResult, error) {
	return c.submit(ctx, "dispute", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "dispute", new(big.Int).SetUint64(id))
}

// ResolveWinnerTakesAll settles a disputed trade entirely to one party.
func (c *Client) ResolveWinnerTakesAll(ctx context.Context, id uint64, winner string) (*TxResult, error) {
	return c.submit(ctx, "resolveWinnerTakesAll", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "resolveWinnerTakesAll",
		new(big.Int).SetUint64(id), common.HexToAddress(winner))
}

// ResolveSplit settles a disputed trade by sending amountToBuyer (in the
// token's smallest units) to the buyer and the remainder to the seller.
func (c *Client) ResolveSplit(ctx context.Context, id uint64, amountToBuyer *big.Int) (*TxResult, error) {
	return c.submit(ctx, "resolveSplit", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "resolveSplit",
		new(big.Int).SetUint64(id), amountToBuyer)
}

// WithdrawFee moves accrued platform fees to the given address.
func (c *Client) WithdrawFee(ctx context.Context, to string, amount *big.Int) (*TxResult, error) {
	return c.submit(ctx, "withdrawFee", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "withdrawFee",
		common.HexToAddress(to), amount)
}

// RegisterContact stores the caller's contact handles on chain.
func (c *Client) RegisterContact(ctx context.Context, kakaoID, telegramID string) (*TxResult, error) {
	return c.submit(ctx, "registerContact", c.escrow, c.escrowABI, DefaultReleaseGasLimit, "registerContact", kakaoID, telegramID)
}

// ApproveToken grants the escrow contract an allowance on a token.
func (c *Client) ApproveToken(ctx context.Context, token string, amount *big.Int) (*TxResult, error) {
	return c.submit(ctx, "approve", common.HexToAddress(token), c.erc20ABI, 120000, "approve", c.escrow, amount)
}
