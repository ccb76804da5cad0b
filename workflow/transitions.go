package workflow

import (
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/models"
)

type Event string

const (
	EventSubmit   Event = "submit"
	EventApprove  Event = "approve"
	EventEscalate Event = "escalate"
	EventReject   Event = "reject"
	EventStart    Event = "start"
	EventReturn   Event = "return"
	EventCancel   Event = "cancel"
)

// Transition is one row of the state table.
type Transition struct {
	From  models.RequestStatus
	Event Event
	To    models.RequestStatus
	// Op is the permission the actor needs to fire it.
	Op authz.Operation
}

var transitions = []Transition{
	{models.StatusPendingOwner, EventApprove, models.StatusApproved, authz.OpOwnerDecision},
	{models.StatusPendingOwner, EventEscalate, models.StatusPendingHeadmaster, authz.OpOwnerDecision},
	{models.StatusPendingOwner, EventReject, models.StatusRejected, authz.OpOwnerDecision},
	{models.StatusPendingOwner, EventCancel, models.StatusCancelled, authz.OpCancelRequest},
	{models.StatusPendingHeadmaster, EventApprove, models.StatusApproved, authz.OpHeadmasterDecision},
	{models.StatusPendingHeadmaster, EventReject, models.StatusRejected, authz.OpHeadmasterDecision},
	{models.StatusPendingHeadmaster, EventCancel, models.StatusCancelled, authz.OpCancelRequest},
	{models.StatusApproved, EventStart, models.StatusActive, authz.OpStartLoan},
	{models.StatusActive, EventReturn, models.StatusCompleted, authz.OpCompleteLoan},
}

// Lookup finds the row for (from, ev).
func Lookup(from models.RequestStatus, ev Event) (Transition, bool) {
	for _, t := range transitions {
		if t.From == from && t.Event == ev {
			return t, true
		}
	}
	return Transition{}, false
}

// From lists the rows leaving status, in table order.
func From(status models.RequestStatus) []Transition {
	var out []Transition
	for _, t := range transitions {
		if t.From == status {
			out = append(out, t)
		}
	}
	return out
}

// coarseOps are the permissions of which at least one is needed to fire ev
// from some status; checked before the request is read.
func coarseOps(ev Event) []authz.Operation {
	var out []authz.Operation
	seen := map[authz.Operation]bool{}
	for _, t := range transitions {
		if t.Event == ev && !seen[t.Op] {
			seen[t.Op] = true
			out = append(out, t.Op)
		}
	}
	return out
}
