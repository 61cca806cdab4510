package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_ReadOnlyClient(t *testing.T) {
	c := newTestClient(t, &mockEthClient{}, false)

	_, err := c.Release(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestSubmit_GasMargin(t *testing.T) {
	var sent *types.Transaction
	ec := &mockEthClient{
		estimateGas: func(ctx context.Context, _ ethereum.CallMsg) (uint64, error) {
			return 100_000, nil
		},
		sendTransaction: func(ctx context.Context, tx *types.Transaction) error {
			sent = tx
			return nil
		},
	}
	c := newTestClient(t, ec, true)

	res, err := c.Release(context.Background(), 42)
	require.NoError(t, err)

	// Default margin is 30%.
	assert.Equal(t, uint64(130_000), res.GasLimit)
	require.NotNil(t, sent)
	assert.Equal(t, uint64(130_000), sent.Gas())
	assert.Equal(t, sent.Hash().Hex(), res.TxHash)
	assert.Equal(t, c.SignerAddress(), res.From)
}

func TestSubmit_OpaqueEstimateFailureFallsBack(t *testing.T) {
	ec := &mockEthClient{
		estimateGas: func(ctx context.Context, _ ethereum.CallMsg) (uint64, error) {
			return 0, errors.New("gas required exceeds allowance")
		},
		sendTransaction: func(ctx context.Context, tx *types.Transaction) error {
			return nil
		},
	}
	c := newTestClient(t, ec, true)

	res, err := c.Release(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, DefaultReleaseGasLimit, res.GasLimit)
}

func TestSubmit_RevertingEstimateAborts(t *testing.T) {
	sendCalled := false
	ec := &mockEthClient{
		estimateGas: func(ctx context.Context, _ ethereum.CallMsg) (uint64, error) {
			return 0, &rpcDataError{msg: "execution reverted", data: selectorFor("BadStatus")}
		},
		sendTransaction: func(ctx context.Context, tx *types.Transaction) error {
			sendCalled = true
			return nil
		},
	}
	c := newTestClient(t, ec, true)

	_, err := c.Release(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, "BadStatus", RevertName(err))
	assert.False(t, sendCalled, "a call that would revert must never be broadcast")
}

func TestSubmit_SendFailure(t *testing.T) {
	ec := &mockEthClient{
		estimateGas: func(ctx context.Context, _ ethereum.CallMsg) (uint64, error) {
			return 50_000, nil
		},
		sendTransaction: func(ctx context.Context, tx *types.Transaction) error {
			return errors.New("nonce too low")
		},
	}
	c := newTestClient(t, ec, true)

	_, err := c.Release(context.Background(), 42)
	require.Error(t, err)

	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "release", ce.Op)
	assert.NotEmpty(t, ce.TxHash)
}

func TestApproveToken_TargetsToken(t *testing.T) {
	var sent *types.Transaction
	ec := &mockEthClient{
		estimateGas: func(ctx context.Context, _ ethereum.CallMsg) (uint64, error) {
			return 40_000, nil
		},
		sendTransaction: func(ctx context.Context, tx *types.Transaction) error {
			sent = tx
			return nil
		},
	}
	c := newTestClient(t, ec, true)

	_, err := c.ApproveToken(context.Background(), testToken, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, common.HexToAddress(testToken), *sent.To())
}

func TestResolveSplit_Calldata(t *testing.T) {
	var sent *types.Transaction
	ec := &mockEthClient{
		estimateGas: func(ctx context.Context, _ ethereum.CallMsg) (uint64, error) {
			return 60_000, nil
		},
		sendTransaction: func(ctx context.Context, tx *types.Transaction) error {
			sent = tx
			return nil
		},
	}
	c := newTestClient(t, ec, true)

	_, err := c.ResolveSplit(context.Background(), 7, big.NewInt(250_000))
	require.NoError(t, err)
	require.NotNil(t, sent)

	// The escrow contract exposes resolveSplit(uint256,uint256); any
	// other signature produces a selector the contract will not match.
	data := sent.Data()
	require.GreaterOrEqual(t, len(data), 4)
	assert.Equal(t, "7a0db580", common.Bytes2Hex(data[:4]))

	method, err := c.escrowABI.MethodById(data[:4])
	require.NoError(t, err)
	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, big.NewInt(7), args[0])
	assert.Equal(t, big.NewInt(250_000), args[1])
}

func TestWaitReceipt_Success(t *testing.T) {
	receipt := &types.Receipt{
		Status:      1,
		BlockNumber: big.NewInt(1234),
		GasUsed:     21_000,
	}
	ec := &mockEthClient{
		transactionReceipt: func(ctx context.Context, _ common.Hash) (*types.Receipt, error) {
			return receipt, nil
		},
	}
	c := newTestClient(t, ec, false)

	res, err := c.WaitMined(context.Background(), "0xabc", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), res.BlockNumber)
	assert.Equal(t, uint64(21_000), res.GasUsed)
}

func TestWaitReceipt_MinedButReverted(t *testing.T) {
	ec := &mockEthClient{
		transactionReceipt: func(ctx context.Context, _ common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: 0, BlockNumber: big.NewInt(1234)}, nil
		},
	}
	c := newTestClient(t, ec, false)

	_, err := c.WaitReceipt(context.Background(), "0xabc", 10*time.Second)
	assert.ErrorIs(t, err, ErrTxFailed)
}

func TestWaitReceipt_Timeout(t *testing.T) {
	ec := &mockEthClient{
		transactionReceipt: func(ctx context.Context, _ common.Hash) (*types.Receipt, error) {
			return nil, errors.New("not found")
		},
	}
	c := newTestClient(t, ec, false)

	start := time.Now()
	_, err := c.WaitReceipt(context.Background(), "0xabc", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitReceipt_ContextCanceled(t *testing.T) {
	ec := &mockEthClient{
		transactionReceipt: func(ctx context.Context, _ common.Hash) (*types.Receipt, error) {
			return nil, errors.New("not found")
		},
	}
	c := newTestClient(t, ec, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.WaitReceipt(ctx, "0xabc", 10*time.Second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}
