// Package workflow drives borrow requests through their approval lifecycle.
//
// Every transition runs in one transaction: the item rows involved are
// locked, availability is recomputed, the status write is conditional on the
// status read, and the audit row is appended. Item status fan-out and
// notifications follow the commit; when they fail the next reconcile or read
// repairs the view, since availability is always derived.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/inventory"
	"Gin_postgres_redis_loan_approval/models"
	"Gin_postgres_redis_loan_approval/notify"
)

// Notifier receives committed transitions. *notify.Hub is the production one.
type Notifier interface {
	Emit(ctx context.Context, ev notify.Event) error
}

type Options struct {
	LetterPrefix string
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

type Service struct {
	repo   *db.Repo
	notify Notifier
	prefix string
	now    func() time.Time
}

// NewService: n may be nil.
func NewService(repo *db.Repo, n Notifier, opt Options) *Service {
	s := &Service{repo: repo, notify: n, prefix: opt.LetterPrefix, now: opt.Now}
	if s.prefix == "" {
		s.prefix = DefaultLetterPrefix
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// DecisionInput carries the free text of approve/escalate/reject/cancel.
type DecisionInput struct {
	Notes  string
	Reason string
}

// DepartmentIDs returns the distinct departments of the request lines.
// Lines must have Item loaded.
func DepartmentIDs(br *models.BorrowRequest) []string {
	seen := map[string]bool{}
	var out []string
	for _, line := range br.Items {
		if line.Item == nil || line.Item.DepartmentID == "" || seen[line.Item.DepartmentID] {
			continue
		}
		seen[line.Item.DepartmentID] = true
		out = append(out, line.Item.DepartmentID)
	}
	sort.Strings(out)
	return out
}

func targetOf(br *models.BorrowRequest) authz.Target {
	return authz.Target{DepartmentIDs: DepartmentIDs(br), BorrowerID: br.BorrowerID}
}

func (s *Service) Approve(ctx context.Context, actor *authz.Actor, id string, in DecisionInput) (*models.BorrowRequest, error) {
	return s.fire(ctx, actor, id, EventApprove, in)
}

func (s *Service) Escalate(ctx context.Context, actor *authz.Actor, id string, in DecisionInput) (*models.BorrowRequest, error) {
	return s.fire(ctx, actor, id, EventEscalate, in)
}

func (s *Service) Reject(ctx context.Context, actor *authz.Actor, id string, in DecisionInput) (*models.BorrowRequest, error) {
	return s.fire(ctx, actor, id, EventReject, in)
}

func (s *Service) Start(ctx context.Context, actor *authz.Actor, id string) (*models.BorrowRequest, error) {
	return s.fire(ctx, actor, id, EventStart, DecisionInput{})
}

func (s *Service) Return(ctx context.Context, actor *authz.Actor, id string) (*models.BorrowRequest, error) {
	return s.fire(ctx, actor, id, EventReturn, DecisionInput{})
}

func (s *Service) Cancel(ctx context.Context, actor *authz.Actor, id string, in DecisionInput) (*models.BorrowRequest, error) {
	return s.fire(ctx, actor, id, EventCancel, in)
}

// Fire dispatches by event name; the HTTP layer uses it.
func (s *Service) Fire(ctx context.Context, actor *authz.Actor, id string, ev Event, in DecisionInput) (*models.BorrowRequest, error) {
	switch ev {
	case EventApprove, EventEscalate, EventReject, EventStart, EventReturn, EventCancel:
		return s.fire(ctx, actor, id, ev, in)
	}
	return nil, apperr.Invalid("event", "unknown event %q", ev)
}

// coarse: at least one of the event's permissions by role alone.
func coarse(actor *authz.Actor, ev Event) error {
	var first error
	for _, op := range coarseOps(ev) {
		err := authz.Check(actor, op)
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		first = apperr.Forbidden("no permission maps to " + string(ev))
	}
	return first
}

func authorizeAny(actor *authz.Actor, t authz.Target, ops ...authz.Operation) error {
	var first error
	for _, op := range ops {
		err := authz.Authorize(actor, op, t)
		if err == nil {
			return nil
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// unknownRequest answers an event on a missing id. Actors with a scoped view
// get the same refusal as for a request outside their scope.
func unknownRequest(actor *authz.Actor) error {
	if actor.IsAdmin() || actor.Has(models.RoleHeadmaster) {
		return apperr.NotFound("request")
	}
	return apperr.Forbidden("view_request: unknown request")
}

type outcome struct {
	from, to models.RequestStatus
	noop     bool
}

func (s *Service) fire(ctx context.Context, actor *authz.Actor, id string, ev Event, in DecisionInput) (*models.BorrowRequest, error) {
	if err := coarse(actor, ev); err != nil {
		return nil, err
	}
	if ev == EventReject && strings.TrimSpace(in.Reason) == "" {
		return nil, apperr.Invalid("reason", "a rejection needs a reason")
	}

	var res outcome
	err := s.repo.InTx(ctx, func(tx *db.Repo) error {
		br, err := tx.LockRequest(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			return unknownRequest(actor)
		}
		if err != nil {
			return err
		}
		target := targetOf(br)
		// 无查看权限时不暴露状态
		if err := authz.Authorize(actor, authz.OpViewRequest, target); err != nil {
			return err
		}

		// 重复审批：幂等，直接返回
		if ev == EventApprove && br.Status == models.StatusApproved {
			if err := authorizeAny(actor, target, authz.OpOwnerDecision, authz.OpHeadmasterDecision); err != nil {
				return err
			}
			res = outcome{from: br.Status, to: br.Status, noop: true}
			return nil
		}

		t, ok := Lookup(br.Status, ev)
		if !ok {
			return &apperr.StateTransitionError{From: string(br.Status), Event: string(ev)}
		}
		if err := authz.Authorize(actor, t.Op, target); err != nil {
			return err
		}

		now := s.now().UTC()
		fields := map[string]any{}
		switch {
		case t.Op == authz.OpOwnerDecision:
			fields["owner_reviewed_at"] = now
			fields["owner_reviewed_by"] = actor.UserID
			if n := strings.TrimSpace(in.Notes); n != "" {
				fields["owner_notes"] = n
			}
		case t.Op == authz.OpHeadmasterDecision:
			fields["headmaster_approved_at"] = now
			fields["headmaster_approved_by"] = actor.UserID
			if n := strings.TrimSpace(in.Notes); n != "" {
				fields["headmaster_notes"] = n
			}
		}

		switch ev {
		case EventApprove:
			if err := s.recheckCapacity(ctx, tx, br, ""); err != nil {
				return err
			}
			if br.LetterNumber == nil {
				seq, err := tx.NextLetterSequence(ctx, LetterPeriod(now))
				if err != nil {
					return err
				}
				fields["letter_number"] = FormatLetterNumber(s.prefix, now, seq)
				fields["letter_generated_at"] = now
			}
		case EventReject:
			fields["rejection_reason"] = strings.TrimSpace(in.Reason)
		case EventStart:
			if err := s.recheckCapacity(ctx, tx, br, br.ID); err != nil {
				return err
			}
			fields["started_at"] = now
		case EventReturn:
			fields["completed_at"] = now
		case EventCancel:
			fields["cancelled_at"] = now
		}

		if err := tx.TransitionRequest(ctx, br.ID, t.From, t.To, fields); err != nil {
			if errors.Is(err, db.ErrStatusChanged) {
				return &apperr.StateTransitionError{From: string(t.From), Event: string(ev)}
			}
			return err
		}

		note := strings.TrimSpace(in.Notes)
		if ev == EventReject || (ev == EventCancel && strings.TrimSpace(in.Reason) != "") {
			note = strings.TrimSpace(in.Reason)
		}
		if err := tx.AppendRequestLog(ctx, &models.RequestLog{
			RequestID:  br.ID,
			Event:      string(ev),
			FromStatus: t.From,
			ToStatus:   t.To,
			ActorID:    actor.UserID,
			Note:       note,
		}); err != nil {
			return err
		}
		res = outcome{from: t.From, to: t.To}
		return nil
	})
	if err != nil {
		return nil, err
	}

	br, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload request: %w", err)
	}
	if res.noop {
		return br, nil
	}
	s.afterCommit(ctx, actor, br, ev)
	return br, nil
}

// recheckCapacity locks the involved items in id order and recomputes their
// availability. exclude leaves one request out of the committed sum.
func (s *Service) recheckCapacity(ctx context.Context, tx *db.Repo, br *models.BorrowRequest, exclude string) error {
	ids := br.ItemIDs()
	sort.Strings(ids)
	items, err := tx.LockItems(ctx, ids)
	if err != nil {
		return err
	}
	committed, err := tx.CommittedQuantities(ctx, ids, exclude)
	if err != nil {
		return err
	}
	avail := make(map[string]inventory.Availability, len(ids))
	for _, id := range ids {
		it, ok := items[id]
		if !ok {
			continue
		}
		a := inventory.ComputeAvailability(id, it.TotalQuantity, committed[id])
		if a.Overcommitted {
			logAnomaly(it, a)
		}
		avail[id] = a
	}
	short := inventory.Shortfalls(br.QuantityByItem(), avail)
	if len(short) == 0 {
		return nil
	}
	for i := range short {
		if it, ok := items[short[i].ItemID]; ok {
			short[i].ItemName = it.Name
		} else {
			short[i].ItemName = short[i].ItemID
		}
	}
	return &apperr.CapacityError{Shortfalls: short}
}

func logAnomaly(it models.Item, a inventory.Availability) {
	log.Printf("[ANOMALY] item %s (%s): total %d below committed %d", it.ID, it.Code, a.Total, a.Committed)
}

// afterCommit: item status fan-out, then notifications. Failures are logged.
func (s *Service) afterCommit(ctx context.Context, actor *authz.Actor, br *models.BorrowRequest, ev Event) {
	ids := br.ItemIDs()
	switch ev {
	case EventStart:
		if _, err := s.repo.SetItemStatus(ctx, ids, models.ItemBorrowed,
			models.ItemAvailable, models.ItemReserved); err != nil {
			log.Printf("[WORKFLOW] item fan-out for %s: %v", br.ID, err)
		}
	case EventReturn:
		held, err := s.repo.ItemsHeldByActive(ctx, ids, br.ID)
		if err != nil {
			log.Printf("[WORKFLOW] item fan-out for %s: %v", br.ID, err)
			break
		}
		var release []string
		for _, id := range ids {
			if !held[id] {
				release = append(release, id)
			}
		}
		if _, err := s.repo.SetItemStatus(ctx, release, models.ItemAvailable,
			models.ItemBorrowed, models.ItemReserved); err != nil {
			log.Printf("[WORKFLOW] item fan-out for %s: %v", br.ID, err)
		}
	}
	s.emit(ctx, actor, br, ev)
}

func (s *Service) emit(ctx context.Context, actor *authz.Actor, br *models.BorrowRequest, ev Event) {
	if s.notify == nil {
		return
	}
	who := "system"
	if actor != nil {
		who = actor.Name
		if who == "" {
			who = actor.Email
		}
	}
	msg := fmt.Sprintf("request %s: %s by %s, now %s", shortID(br.ID), ev, who, br.Status)
	if ev == EventApprove && br.LetterNumber != nil {
		msg += " (letter " + *br.LetterNumber + ")"
	}
	if ev == EventReject && br.RejectionReason != nil {
		msg += ": " + *br.RejectionReason
	}
	actorID := ""
	if actor != nil {
		actorID = actor.UserID
	}
	if err := s.notify.Emit(ctx, notify.Event{
		Kind:          string(ev),
		RequestID:     br.ID,
		Status:        br.Status,
		ActorID:       actorID,
		BorrowerID:    br.BorrowerID,
		DepartmentIDs: DepartmentIDs(br),
		Message:       msg,
	}); err != nil {
		log.Printf("[NOTIFY] %s/%s: %v", br.ID, ev, err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
