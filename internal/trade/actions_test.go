package trade

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	seller = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	buyer  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	other  = "0xcccccccccccccccccccccccccccccccccccccccc"
)

func testTrade(status Status, buyerAddr string) *Trade {
	return &Trade{
		ID:         7,
		Seller:     seller,
		Buyer:      buyerAddr,
		Token:      "0xdddddddddddddddddddddddddddddddddddddddd",
		Amount:     big.NewInt(1_000_000),
		FiatAmount: big.NewInt(50000),
		Fiat:       FiatKRW,
		Status:     status,
	}
}

func TestComputeActions_NotConnected(t *testing.T) {
	set := ComputeActions(testTrade(StatusOpen, ZeroAddress), "")

	for _, p := range []Permission{set.Accept, set.MarkPaid, set.Release, set.Cancel, set.Dispute} {
		assert.False(t, p.Allowed)
		assert.Equal(t, ReasonNotConnected, p.Reason)
	}
}

func TestComputeActions_Accept(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		buyer   string
		actor   string
		allowed bool
		reason  string
	}{
		{
			name:    "open broadcast trade, anyone can accept",
			status:  StatusOpen,
			buyer:   ZeroAddress,
			actor:   other,
			allowed: true,
		},
		{
			name:    "open reserved trade, assigned buyer can accept",
			status:  StatusOpen,
			buyer:   buyer,
			actor:   buyer,
			allowed: true,
		},
		{
			name:   "open reserved trade, stranger cannot accept",
			status: StatusOpen,
			buyer:  buyer,
			actor:  other,
			reason: ReasonReservedBuyer,
		},
		{
			name:   "taken trade cannot be accepted again",
			status: StatusTaken,
			buyer:  buyer,
			actor:  other,
			reason: "cannot accept while the trade is TAKEN",
		},
		{
			name:   "released trade cannot be accepted",
			status: StatusReleased,
			buyer:  buyer,
			actor:  other,
			reason: "cannot accept while the trade is RELEASED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := ComputeActions(testTrade(tt.status, tt.buyer), tt.actor)
			assert.Equal(t, tt.allowed, set.Accept.Allowed)
			assert.Equal(t, tt.reason, set.Accept.Reason)
		})
	}
}

func TestComputeActions_MarkPaid(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		actor   string
		allowed bool
		reason  string
	}{
		{name: "buyer on taken trade", status: StatusTaken, actor: buyer, allowed: true},
		{name: "seller cannot mark paid", status: StatusTaken, actor: seller, reason: ReasonNotBuyer},
		{name: "stranger cannot mark paid", status: StatusTaken, actor: other, reason: ReasonNotBuyer},
		{name: "open trade has no buyer step yet", status: StatusOpen, actor: buyer, reason: "cannot mark paid while the trade is OPEN"},
		{name: "paid trade cannot be marked again", status: StatusPaid, actor: buyer, reason: "cannot mark paid while the trade is PAID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := ComputeActions(testTrade(tt.status, buyer), tt.actor)
			assert.Equal(t, tt.allowed, set.MarkPaid.Allowed)
			assert.Equal(t, tt.reason, set.MarkPaid.Reason)
		})
	}
}

func TestComputeActions_Release(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		actor   string
		allowed bool
		reason  string
	}{
		{name: "seller on paid trade", status: StatusPaid, actor: seller, allowed: true},
		{name: "buyer cannot release", status: StatusPaid, actor: buyer, reason: ReasonNotSeller},
		{name: "taken trade not releasable yet", status: StatusTaken, actor: seller, reason: "cannot release while the trade is TAKEN"},
		{name: "released trade not releasable again", status: StatusReleased, actor: seller, reason: "cannot release while the trade is RELEASED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := ComputeActions(testTrade(tt.status, buyer), tt.actor)
			assert.Equal(t, tt.allowed, set.Release.Allowed)
			assert.Equal(t, tt.reason, set.Release.Reason)
		})
	}
}

func TestComputeActions_Cancel(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		actor   string
		allowed bool
		reason  string
	}{
		{name: "seller on open trade", status: StatusOpen, actor: seller, allowed: true},
		{name: "seller on taken trade", status: StatusTaken, actor: seller, allowed: true},
		{name: "buyer cannot cancel", status: StatusTaken, actor: buyer, reason: ReasonNotSeller},
		{name: "paid trade cannot be canceled", status: StatusPaid, actor: seller, reason: "cannot cancel while the trade is PAID"},
		{name: "disputed trade cannot be canceled", status: StatusDisputed, actor: seller, reason: "cannot cancel while the trade is DISPUTED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := ComputeActions(testTrade(tt.status, buyer), tt.actor)
			assert.Equal(t, tt.allowed, set.Cancel.Allowed)
			assert.Equal(t, tt.reason, set.Cancel.Reason)
		})
	}
}

func TestComputeActions_Dispute(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		actor   string
		allowed bool
		reason  string
	}{
		{name: "seller can dispute a taken trade", status: StatusTaken, actor: seller, allowed: true},
		{name: "buyer can dispute a paid trade", status: StatusPaid, actor: buyer, allowed: true},
		{name: "seller can dispute an open trade", status: StatusOpen, actor: seller, allowed: true},
		{name: "stranger cannot dispute", status: StatusPaid, actor: other, reason: ReasonNotParty},
		{name: "already disputed", status: StatusDisputed, actor: seller, reason: "cannot dispute while the trade is DISPUTED"},
		{name: "released is terminal", status: StatusReleased, actor: seller, reason: "cannot dispute while the trade is RELEASED"},
		{name: "canceled is terminal", status: StatusCanceled, actor: buyer, reason: "cannot dispute while the trade is CANCELED"},
		{name: "resolved is terminal", status: StatusResolved, actor: seller, reason: "cannot dispute while the trade is RESOLVED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := ComputeActions(testTrade(tt.status, buyer), tt.actor)
			assert.Equal(t, tt.allowed, set.Dispute.Allowed)
			assert.Equal(t, tt.reason, set.Dispute.Reason)
		})
	}
}

func TestComputeActions_CaseInsensitiveAddresses(t *testing.T) {
	tr := testTrade(StatusPaid, buyer)
	tr.Seller = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	set := ComputeActions(tr, seller)
	assert.True(t, set.Release.Allowed, "checksum-cased seller must still match")

	set = ComputeActions(testTrade(StatusTaken, "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"), buyer)
	assert.True(t, set.MarkPaid.Allowed, "checksum-cased buyer must still match")
}

func TestComputeActions_ZeroAddressBuyerIsUnassigned(t *testing.T) {
	tr := testTrade(StatusTaken, ZeroAddress)

	// Nobody, not even "the zero address", counts as the buyer.
	set := ComputeActions(tr, ZeroAddress)
	assert.False(t, set.MarkPaid.Allowed)
	assert.Equal(t, ReasonNotBuyer, set.MarkPaid.Reason)
	assert.False(t, tr.BuyerAssigned())
}

func TestActionSet_Get(t *testing.T) {
	set := ComputeActions(testTrade(StatusPaid, buyer), seller)

	require.True(t, set.Get(ActionRelease).Allowed)
	require.False(t, set.Get(ActionCancel).Allowed)

	unknown := set.Get(Action("selfdestruct"))
	assert.False(t, unknown.Allowed)
	assert.Equal(t, "unknown action", unknown.Reason)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "OPEN", StatusOpen.String())
	assert.Equal(t, "RESOLVED", StatusResolved.String())
	assert.Equal(t, "UNKNOWN", Status(42).String())
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusReleased, StatusCanceled, StatusResolved}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s.String())
	}
	for _, s := range []Status{StatusOpen, StatusTaken, StatusPaid, StatusDisputed} {
		assert.False(t, s.IsTerminal(), s.String())
	}
}
