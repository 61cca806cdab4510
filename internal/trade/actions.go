package trade

import "fmt"

// Action is a state-changing trade operation.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionMarkPaid Action = "markPaid"
	ActionRelease  Action = "release"
	ActionCancel   Action = "cancel"
	ActionDispute  Action = "dispute"
)

// Permission is the gate's decision for one action.
type Permission struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ActionSet holds the gate's decision for every user-facing action.
type ActionSet struct {
	Accept   Permission `json:"accept"`
	MarkPaid Permission `json:"markPaid"`
	Release  Permission `json:"release"`
	Cancel   Permission `json:"cancel"`
	Dispute  Permission `json:"dispute"`
}

// Denial reasons. Not-connected, wrong-role, and wrong-status cases get
// distinct text so the UI (and tests) can tell them apart.
const (
	ReasonNotConnected  = "wallet not connected"
	ReasonNotBuyer      = "only the buyer can do this"
	ReasonNotSeller     = "only the seller can do this"
	ReasonNotParty      = "only a party to the trade can do this"
	ReasonReservedBuyer = "this trade is reserved for a specific buyer"
)

func wrongStatus(action string, s Status) string {
	return fmt.Sprintf("cannot %s while the trade is %s", action, s)
}

// ComputeActions decides which actions the actor may take on the trade.
// An empty actor means no wallet is connected. The decision uses only
// on-chain fields; cached metadata never gates an action.
func ComputeActions(t *Trade, actor string) ActionSet {
	allowed := Permission{Allowed: true}

	var set ActionSet

	// accept: open trade, and either broadcast-open (no buyer yet) or
	// pre-assigned to this actor.
	switch {
	case actor == "":
		set.Accept = Permission{Reason: ReasonNotConnected}
	case t.Status != StatusOpen:
		set.Accept = Permission{Reason: wrongStatus("accept", t.Status)}
	case t.BuyerAssigned() && !t.IsBuyer(actor):
		set.Accept = Permission{Reason: ReasonReservedBuyer}
	default:
		set.Accept = allowed
	}

	// markPaid: taken trade, buyer only.
	switch {
	case actor == "":
		set.MarkPaid = Permission{Reason: ReasonNotConnected}
	case t.Status != StatusTaken:
		set.MarkPaid = Permission{Reason: wrongStatus("mark paid", t.Status)}
	case !t.IsBuyer(actor):
		set.MarkPaid = Permission{Reason: ReasonNotBuyer}
	default:
		set.MarkPaid = allowed
	}

	// release: paid trade, seller only.
	switch {
	case actor == "":
		set.Release = Permission{Reason: ReasonNotConnected}
	case t.Status != StatusPaid:
		set.Release = Permission{Reason: wrongStatus("release", t.Status)}
	case !t.IsSeller(actor):
		set.Release = Permission{Reason: ReasonNotSeller}
	default:
		set.Release = allowed
	}

	// cancel: open or taken trade, seller only.
	switch {
	case actor == "":
		set.Cancel = Permission{Reason: ReasonNotConnected}
	case t.Status != StatusOpen && t.Status != StatusTaken:
		set.Cancel = Permission{Reason: wrongStatus("cancel", t.Status)}
	case !t.IsSeller(actor):
		set.Cancel = Permission{Reason: ReasonNotSeller}
	default:
		set.Cancel = allowed
	}

	// dispute: any non-terminal, not-yet-disputed trade, parties only.
	switch {
	case actor == "":
		set.Dispute = Permission{Reason: ReasonNotConnected}
	case t.Status.IsTerminal() || t.Status == StatusDisputed:
		set.Dispute = Permission{Reason: wrongStatus("dispute", t.Status)}
	case !t.IsParty(actor):
		set.Dispute = Permission{Reason: ReasonNotParty}
	default:
		set.Dispute = allowed
	}

	return set
}

// Get returns the permission for a single action, denying unknown ones.
func (s ActionSet) Get(a Action) Permission {
	switch a {
	case ActionAccept:
		return s.Accept
	case ActionMarkPaid:
		return s.MarkPaid
	case ActionRelease:
		return s.Release
	case ActionCancel:
		return s.Cancel
	case ActionDispute:
		return s.Dispute
	default:
		return Permission{Reason: "unknown action"}
	}
}
