package server

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vetexchange/vetex/internal/cache"
	"github.com/vetexchange/vetex/internal/chain"
	"github.com/vetexchange/vetex/internal/logging"
	"github.com/vetexchange/vetex/internal/metrics"
	"github.com/vetexchange/vetex/internal/orchestrator"
	"github.com/vetexchange/vetex/internal/trade"
	"github.com/vetexchange/vetex/internal/validation"
)

// tradeIDParam parses the :id path segment. Writes the error response
// itself and reports ok=false when the id is unusable.
func tradeIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_trade_id",
			"message": "trade id must be a non-negative integer",
		})
		return 0, false
	}
	return id, true
}

// listTrades handles GET /v1/trades
func (s *Server) listTrades(c *gin.Context) {
	page := s.aggregator.Load(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"trades": page.Rows,
		"count":  len(page.Rows),
		"source": page.Source,
	})
}

// sellerTrades handles GET /v1/sellers/:address/trades
func (s *Server) sellerTrades(c *gin.Context) {
	address := c.Param("address")

	rows, err := s.aggregator.SellerHistory(c.Request.Context(), address)
	if err != nil {
		logging.L(c.Request.Context()).Error("seller history scan failed", "seller", address, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "chain_unavailable",
			"message": "Failed to scan the seller's trades",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": rows,
		"count":  len(rows),
	})
}

// getTrade handles GET /v1/trades/:id
func (s *Server) getTrade(c *gin.Context) {
	id, ok := tradeIDParam(c)
	if !ok {
		return
	}

	view, err := s.resolver.Resolve(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, trade.ErrNotFound) {
			metrics.TradeResolvesTotal.WithLabelValues("not_found").Inc()
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "trade_not_found",
				"message": "No trade exists with this id",
			})
			return
		}
		metrics.TradeResolvesTotal.WithLabelValues("error").Inc()
		logging.L(c.Request.Context()).Error("trade resolve failed", "trade_id", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "chain_unavailable",
			"message": "Failed to read the trade from chain",
		})
		return
	}
	metrics.TradeResolvesTotal.WithLabelValues("ok").Inc()

	c.JSON(http.StatusOK, view)
}

// getTradeActions handles GET /v1/trades/:id/actions?actor=0x...
// The actor defaults to the connected session wallet; an explicit
// query param allows previewing another wallet's buttons.
func (s *Server) getTradeActions(c *gin.Context) {
	id, ok := tradeIDParam(c)
	if !ok {
		return
	}

	actor := c.Query("actor")
	if actor == "" {
		actor = s.sessions.Current().Address
	}
	if actor != "" && !validation.IsValidEthAddress(actor) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "actor must be a valid Ethereum address",
		})
		return
	}

	t, err := s.chain.GetTrade(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "chain_unavailable",
			"message": "Failed to read the trade from chain",
		})
		return
	}
	if t.Seller == trade.ZeroAddress {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "trade_not_found",
			"message": "No trade exists with this id",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tradeId": id,
		"status":  t.Status.String(),
		"actions": trade.ComputeActions(t, actor),
	})
}

// connectWallet handles POST /v1/session/connect
func (s *Server) connectWallet(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidEthAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "address must be a valid Ethereum address (0x + 40 hex chars)",
		})
		return
	}

	sess := s.sessions.Connect(req.Address)
	c.JSON(http.StatusOK, gin.H{
		"address": sess.Address,
		"epoch":   sess.Epoch,
	})
}

// disconnectWallet handles POST /v1/session/disconnect
func (s *Server) disconnectWallet(c *gin.Context) {
	sess := s.sessions.Disconnect()
	c.JSON(http.StatusOK, gin.H{"epoch": sess.Epoch})
}

// getSession handles GET /v1/session
func (s *Server) getSession(c *gin.Context) {
	sess := s.sessions.Current()
	c.JSON(http.StatusOK, gin.H{
		"connected": sess.Connected(),
		"address":   sess.Address,
		"epoch":     sess.Epoch,
	})
}

// getBalances handles GET /v1/session/balances
func (s *Server) getBalances(c *gin.Context) {
	sess := s.sessions.Current()
	if !sess.Connected() {
		c.JSON(http.StatusOK, gin.H{
			"connected": false,
			"balances":  []struct{}{},
		})
		return
	}

	snapshot := s.balances.Snapshot(c.Request.Context(), sess)
	if snapshot == nil {
		// Session switched mid-read; tell the client to refetch.
		c.JSON(http.StatusConflict, gin.H{
			"error":   "session_changed",
			"message": "Session changed while reading balances",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected": true,
		"address":   sess.Address,
		"balances":  snapshot,
	})
}

// getProfile handles GET /v1/profiles/:address
func (s *Server) getProfile(c *gin.Context) {
	address := c.Param("address")

	profile, err := s.store.GetProfile(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, cache.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "profile_not_found",
				"message": "No profile stored for this address",
			})
			return
		}
		logging.L(c.Request.Context()).Error("profile read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to read profile",
		})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// putProfile handles PUT /v1/profiles/:address
func (s *Server) putProfile(c *gin.Context) {
	address := c.Param("address")

	var req struct {
		KakaoID    string `json:"kakaoId"`
		TelegramID string `json:"telegramId"`
		MeetPlace  string `json:"meetPlace"`
		KRBank     string `json:"krBank"`
		KRAccount  string `json:"krAccount"`
		VNBank     string `json:"vnBank"`
		VNAccount  string `json:"vnAccount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	profile := &cache.Profile{
		Address:    address,
		KakaoID:    validation.SanitizeString(req.KakaoID, 100),
		TelegramID: validation.SanitizeString(req.TelegramID, 100),
		MeetPlace:  validation.SanitizeString(req.MeetPlace, 200),
		KRBank:     validation.SanitizeString(req.KRBank, 100),
		KRAccount:  validation.SanitizeString(req.KRAccount, 100),
		VNBank:     validation.SanitizeString(req.VNBank, 100),
		VNAccount:  validation.SanitizeString(req.VNAccount, 100),
	}
	if err := s.store.UpsertProfile(c.Request.Context(), profile); err != nil {
		logging.L(c.Request.Context()).Error("profile write failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to save profile",
		})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// openTrade handles POST /v1/trades
func (s *Server) openTrade(c *gin.Context) {
	var params orchestrator.OpenParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if params.Buyer != "" && !validation.IsValidEthAddress(params.Buyer) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "buyer must be a valid Ethereum address",
		})
		return
	}

	result, err := s.opener.Open(c.Request.Context(), params)
	if err != nil {
		s.writeActionError(c, err)
		return
	}

	s.realtimeHub.TradeOpened(result.TradeID, s.chain.SignerAddress())
	c.JSON(http.StatusCreated, result)
}

// tradeAction builds the handler for one lifecycle action endpoint.
func (s *Server) tradeAction(action trade.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tradeIDParam(c)
		if !ok {
			return
		}

		var req struct {
			PaymentRef string `json:"paymentRef"`
		}
		// Body is optional for everything except markPaid.
		_ = c.ShouldBindJSON(&req)

		result, err := s.actions.Execute(c.Request.Context(), action, id, req.PaymentRef)
		if err != nil {
			s.writeActionError(c, err)
			return
		}

		status := http.StatusOK
		if result.Pending {
			status = http.StatusAccepted
		}
		c.JSON(status, result)
	}
}

// registerContact handles POST /v1/contact
func (s *Server) registerContact(c *gin.Context) {
	var req struct {
		KakaoID    string `json:"kakaoId"`
		TelegramID string `json:"telegramId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	result, err := s.actions.RegisterContact(c.Request.Context(),
		validation.SanitizeString(req.KakaoID, 100),
		validation.SanitizeString(req.TelegramID, 100))
	if err != nil {
		s.writeActionError(c, err)
		return
	}

	status := http.StatusOK
	if result.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// getPendingFees handles GET /v1/admin/fees
func (s *Server) getPendingFees(c *gin.Context) {
	fees, err := s.actions.PendingFees(c.Request.Context(), s.registry)
	if err != nil {
		logging.L(c.Request.Context()).Error("fee read failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "chain_unavailable",
			"message": "Failed to read pending fees",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fees": fees})
}

// withdrawFee handles POST /v1/admin/fees/withdraw
func (s *Server) withdrawFee(c *gin.Context) {
	var req struct {
		Token  string `json:"token" binding:"required"`
		To     string `json:"to" binding:"required"`
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidEthAddress(req.To) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "to must be a valid Ethereum address",
		})
		return
	}

	tok, ok := s.registry.BySymbol(req.Token)
	if !ok {
		tok, ok = s.registry.ByAddress(req.Token)
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "unknown_token",
			"message": "token is not in the registry",
		})
		return
	}

	result, err := s.actions.WithdrawFee(c.Request.Context(), tok, req.To, req.Amount)
	if err != nil {
		s.writeActionError(c, err)
		return
	}

	status := http.StatusOK
	if result.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// resolveDispute handles POST /v1/admin/trades/:id/resolve
// Body is either {"winner": "0x..."} or {"amountToBuyer": "500000"},
// the latter a decimal string in the token's smallest units.
func (s *Server) resolveDispute(c *gin.Context) {
	id, ok := tradeIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Winner        string `json:"winner"`
		AmountToBuyer string `json:"amountToBuyer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	var result *orchestrator.Result
	var err error
	switch {
	case req.Winner != "":
		if !validation.IsValidEthAddress(req.Winner) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "winner must be a valid Ethereum address",
			})
			return
		}
		result, err = s.actions.ResolveWinner(c.Request.Context(), id, req.Winner)
	case req.AmountToBuyer != "":
		amount, ok := new(big.Int).SetString(req.AmountToBuyer, 10)
		if !ok || amount.Sign() < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": "amountToBuyer must be a non-negative integer in the token's smallest units",
			})
			return
		}
		result, err = s.actions.ResolveSplit(c.Request.Context(), id, amount)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Provide either winner or amountToBuyer",
		})
		return
	}
	if err != nil {
		s.writeActionError(c, err)
		return
	}

	status := http.StatusOK
	if result.Pending {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// writeActionError maps orchestrator and chain errors to HTTP
// responses with messages safe to surface.
func (s *Server) writeActionError(c *gin.Context, err error) {
	log := logging.L(c.Request.Context())

	var pre *orchestrator.PreconditionError
	if errors.As(err, &pre) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "precondition_failed",
			"action":  string(pre.Action),
			"message": pre.Reason,
		})
		return
	}

	if errors.Is(err, orchestrator.ErrNoContact) {
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error":   "no_contact",
			"message": "Register a kakao or telegram handle before posting a trade",
		})
		return
	}

	if errors.Is(err, orchestrator.ErrSimulationRejected) {
		log.Warn("payout simulation rejected", "error", err)
		c.JSON(http.StatusConflict, gin.H{
			"error":   "simulation_rejected",
			"message": "The escrow payout would fail; nothing was submitted",
		})
		return
	}

	var rev *chain.RevertError
	if errors.As(err, &rev) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "contract_rejected",
			"message": chain.UserMessage(err),
			"kind":    rev.Kind,
		})
		return
	}

	if errors.Is(err, chain.ErrNoSigner) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "signing_unavailable",
			"message": "No signing key is configured",
		})
		return
	}

	log.Error("trade action failed", "error", err)
	c.JSON(http.StatusBadGateway, gin.H{
		"error":   "action_failed",
		"message": "The action could not be completed",
	})
}
