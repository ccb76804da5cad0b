// Package notify fans a committed request transition out to the inbox of
// every interested user and publishes a change signal on Redis.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/models"

	"github.com/redis/go-redis/v9"
)

// Channel carries one JSON Signal per committed transition. Consumers must
// re-query; the payload is a hint, never state.
const Channel = "loan:changes"

type Event struct {
	Kind          string
	RequestID     string
	Status        models.RequestStatus
	ActorID       string
	BorrowerID    string
	DepartmentIDs []string
	Message       string
}

type Signal struct {
	RequestID string               `json:"requestId"`
	Event     string               `json:"event"`
	Status    models.RequestStatus `json:"status"`
	At        time.Time            `json:"at"`
}

type Hub struct {
	repo *db.Repo
	rdb  *redis.Client
	now  func() time.Time
}

// NewHub: rdb may be nil, then only the inbox is written.
func NewHub(repo *db.Repo, rdb *redis.Client) *Hub {
	return &Hub{repo: repo, rdb: rdb, now: time.Now}
}

// Recipients resolves who hears about ev. The actor is left out.
func (h *Hub) Recipients(ctx context.Context, ev Event) ([]string, error) {
	set := map[string]bool{}
	addRole := func(role models.Role, depts []string) error {
		ids, err := h.repo.UsersWithRole(ctx, role, depts)
		if err != nil {
			return err
		}
		for _, id := range ids {
			set[id] = true
		}
		return nil
	}

	switch ev.Kind {
	case "submit":
		if len(ev.DepartmentIDs) > 0 {
			if err := addRole(models.RoleOwner, ev.DepartmentIDs); err != nil {
				return nil, err
			}
		}
	case "escalate":
		if err := addRole(models.RoleHeadmaster, nil); err != nil {
			return nil, err
		}
	case "approve", "reject":
		set[ev.BorrowerID] = true
	case "start", "return", "cancel":
		set[ev.BorrowerID] = true
		if len(ev.DepartmentIDs) > 0 {
			if err := addRole(models.RoleOwner, ev.DepartmentIDs); err != nil {
				return nil, err
			}
		}
	}

	delete(set, "")
	delete(set, ev.ActorID)
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Emit writes the inbox rows, then publishes. Callers run it after commit
// and only log its error.
func (h *Hub) Emit(ctx context.Context, ev Event) error {
	to, err := h.Recipients(ctx, ev)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	ns := make([]models.Notification, 0, len(to))
	for _, uid := range to {
		ns = append(ns, models.Notification{
			UserID:    uid,
			RequestID: ev.RequestID,
			Kind:      ev.Kind,
			Message:   ev.Message,
		})
	}
	if err := h.repo.CreateNotifications(ctx, ns); err != nil {
		return fmt.Errorf("write inbox: %w", err)
	}

	if h.rdb == nil {
		return nil
	}
	b, _ := json.Marshal(Signal{RequestID: ev.RequestID, Event: ev.Kind, Status: ev.Status, At: h.now().UTC()})
	if err := h.rdb.Publish(ctx, Channel, b).Err(); err != nil {
		// 收件箱已写入；信号丢了前端下次轮询也会拿到
		log.Printf("[NOTIFY] publish %s/%s: %v", ev.RequestID, ev.Kind, err)
	}
	return nil
}
