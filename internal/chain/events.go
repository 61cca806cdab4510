package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vetexchange/vetex/internal/metrics"
	"github.com/vetexchange/vetex/internal/trade"
)

// TradeOpenedEvent is a decoded TradeOpened log.
type TradeOpenedEvent struct {
	TradeID uint64
	Seller  string
	Token   string
	Amount  *big.Int
	Fiat    trade.FiatCurrency
	Block   uint64
	TxHash  string
}

// FilterTradeOpened scans for TradeOpened events between the given
// blocks. fromBlock of 0 starts at the contract's deploy block. seller
// narrows the scan to one seller when non-empty.
func (c *Client) FilterTradeOpened(ctx context.Context, fromBlock, toBlock uint64, seller string) ([]TradeOpenedEvent, error) {
	if fromBlock == 0 {
		fromBlock = c.deployBlock
	}

	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{c.escrow},
		Topics:    [][]common.Hash{{c.escrowABI.Events["TradeOpened"].ID}},
	}
	if toBlock > 0 {
		q.ToBlock = new(big.Int).SetUint64(toBlock)
	}
	if seller != "" {
		q.Topics = append(q.Topics,
			nil,
			[]common.Hash{common.BytesToHash(common.HexToAddress(seller).Bytes())})
	}

	done := metrics.ObserveRPC("filterLogs")
	logs, err := c.ec.FilterLogs(ctx, q)
	done()
	if err != nil {
		return nil, &CallError{Op: "filterTradeOpened", Err: err}
	}

	events := make([]TradeOpenedEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := c.decodeTradeOpened(lg)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ParseTradeOpened extracts the TradeOpened event from a receipt,
// yielding the id the contract assigned. Used after submitting an
// openTrade transaction.
func (c *Client) ParseTradeOpened(receipt *types.Receipt) (TradeOpenedEvent, error) {
	for _, lg := range receipt.Logs {
		if lg.Address != c.escrow {
			continue
		}
		if len(lg.Topics) == 0 || lg.Topics[0] != c.escrowABI.Events["TradeOpened"].ID {
			continue
		}
		return c.decodeTradeOpened(*lg)
	}
	return TradeOpenedEvent{}, fmt.Errorf("chain: no TradeOpened event in receipt")
}

func (c *Client) decodeTradeOpened(lg types.Log) (TradeOpenedEvent, error) {
	if len(lg.Topics) < 3 {
		return TradeOpenedEvent{}, fmt.Errorf("chain: malformed TradeOpened log")
	}

	vals, err := c.escrowABI.Events["TradeOpened"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil || len(vals) != 3 {
		return TradeOpenedEvent{}, fmt.Errorf("chain: decode TradeOpened data: %w", err)
	}
	token, ok0 := vals[0].(common.Address)
	amount, ok1 := vals[1].(*big.Int)
	fiat, ok2 := vals[2].(uint8)
	if !(ok0 && ok1 && ok2) {
		return TradeOpenedEvent{}, fmt.Errorf("chain: unexpected TradeOpened field types")
	}

	return TradeOpenedEvent{
		TradeID: new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		Seller:  strings.ToLower(common.BytesToAddress(lg.Topics[2].Bytes()).Hex()),
		Token:   strings.ToLower(token.Hex()),
		Amount:  amount,
		Fiat:    trade.FiatCurrency(fiat),
		Block:   lg.BlockNumber,
		TxHash:  lg.TxHash.Hex(),
	}, nil
}
