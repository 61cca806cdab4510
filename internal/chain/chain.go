// Package chain is the authoritative read and write path to the escrow
// contract. Everything the service displays about a trade's status,
// parties, and amounts comes from here; cached listing metadata is
// display-only and never overrides a chain read.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vetexchange/vetex/internal/metrics"
)

var (
	ErrRPCConnection = errors.New("chain: RPC connection failed")
	ErrTimeout       = errors.New("chain: operation timed out")
	ErrTxFailed      = errors.New("chain: transaction reverted")
	ErrNoSigner      = errors.New("chain: no signing key configured")
)

// CallError wraps a failed contract interaction with the operation name
// and, for submitted transactions, the hash.
type CallError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *CallError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chain: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chain: %s failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

const (
	// DefaultReleaseGasLimit is used when gas estimation fails.
	DefaultReleaseGasLimit = uint64(900000)

	// ConfirmPollInterval between receipt checks.
	ConfirmPollInterval = 2 * time.Second
)

// Config for creating a Client.
type Config struct {
	RPCURL      string
	ChainID     int64
	Escrow      string
	DeployBlock uint64

	// PrivateKey enables the signing path. Leave empty for a read-only
	// client; write operations then return ErrNoSigner.
	PrivateKey string

	// GasMarginPct is added on top of estimates, e.g. 30 for +30%.
	GasMarginPct int64
}

// Option configures the client.
type Option func(*Client)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(ec EthClient) Option {
	return func(c *Client) { c.ec = ec }
}

// Client talks to the escrow contract and the tokens it holds.
type Client struct {
	ec          EthClient
	chainID     *big.Int
	escrow      common.Address
	deployBlock uint64
	gasMargin   int64
	escrowABI   abi.ABI
	erc20ABI    abi.ABI
	signer      *signer
}

// New creates a Client, dialing the RPC endpoint unless WithClient
// supplied one.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	if cfg.ChainID == 0 {
		return nil, errors.New("chain: chain ID required")
	}
	if cfg.Escrow == "" {
		return nil, errors.New("chain: escrow contract address required")
	}

	escABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow ABI: %w", err)
	}
	ercABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse ERC20 ABI: %w", err)
	}

	margin := cfg.GasMarginPct
	if margin <= 0 {
		margin = 30
	}

	c := &Client{
		chainID:     big.NewInt(cfg.ChainID),
		escrow:      common.HexToAddress(cfg.Escrow),
		deployBlock: cfg.DeployBlock,
		gasMargin:   margin,
		escrowABI:   escABI,
		erc20ABI:    ercABI,
	}

	if cfg.PrivateKey != "" {
		s, err := newSigner(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.signer = s
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.ec == nil {
		ec, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		c.ec = ec
	}

	return c, nil
}

// EscrowAddress returns the escrow contract address, lowercased to
// match the address convention used across the service.
func (c *Client) EscrowAddress() string {
	return strings.ToLower(c.escrow.Hex())
}

// SignerAddress returns the configured signer address, or "" when the
// client is read-only.
func (c *Client) SignerAddress() string {
	if c.signer == nil {
		return ""
	}
	return strings.ToLower(c.signer.address.Hex())
}

// CanSign reports whether write operations are available.
func (c *Client) CanSign() bool { return c.signer != nil }

// BlockNumber returns the current head block, used by health checks.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ec.BlockNumber(ctx)
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.ec != nil {
		c.ec.Close()
	}
}

// call packs a method on the given ABI, executes eth_call against the
// target, and returns the raw return bytes.
func (c *Client) call(ctx context.Context, target common.Address, parsed abi.ABI, method string, args ...interface{}) ([]byte, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, &CallError{Op: method, Err: err}
	}

	done := metrics.ObserveRPC(method)
	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	done()
	if err != nil {
		return nil, &CallError{Op: method, Err: err}
	}
	return out, nil
}
