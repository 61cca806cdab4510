// Package balances renders the per-token holdings of the connected
// wallet. Each token is read independently so one slow or broken token
// contract cannot blank the whole dashboard.
package balances

import (
	"context"
	"math/big"
	"sync"

	"github.com/vetexchange/vetex/internal/logging"
	"github.com/vetexchange/vetex/internal/session"
	"github.com/vetexchange/vetex/internal/tokens"
	"github.com/vetexchange/vetex/internal/units"
)

// Placeholder shown while a balance is unknown or its read failed.
const Placeholder = "-"

// Balance is one token's holding for display.
type Balance struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Display string `json:"display"`
	OK      bool   `json:"ok"`
}

// TokenReader reads ERC20 balances.
type TokenReader interface {
	TokenBalance(ctx context.Context, token, holder string) (*big.Int, error)
}

// Service assembles balance snapshots.
type Service struct {
	chain    TokenReader
	reg      *tokens.Registry
	sessions *session.Manager
}

func NewService(chain TokenReader, reg *tokens.Registry, sessions *session.Manager) *Service {
	return &Service{chain: chain, reg: reg, sessions: sessions}
}

// Snapshot reads every registered token's balance for the session's
// wallet, concurrently. Failed reads keep the placeholder. If the
// session changes while reads are in flight the whole snapshot is
// dropped and nil is returned, so stale balances never render under a
// different account.
func (s *Service) Snapshot(ctx context.Context, sess session.Session) []Balance {
	if !sess.Connected() {
		return nil
	}
	log := logging.FromContext(ctx)

	toks := s.reg.All()
	result := make([]Balance, len(toks))

	var wg sync.WaitGroup
	for i, tok := range toks {
		result[i] = Balance{Symbol: tok.Symbol, Address: tok.Address, Display: Placeholder}

		wg.Add(1)
		go func(i int, tok tokens.Token) {
			defer wg.Done()

			raw, err := s.chain.TokenBalance(ctx, tok.Address, sess.Address)
			if err != nil {
				log.Debug("balance read failed", "token", tok.Symbol, "error", err)
				return
			}
			result[i].Display = units.Format(raw, tok.Decimals)
			result[i].OK = true
		}(i, tok)
	}
	wg.Wait()

	if !s.sessions.Valid(sess) {
		return nil
	}
	return result
}
