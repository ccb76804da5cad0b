// Package cart is the per-user staging area for a borrow request, kept in a
// Redis hash (item id -> quantity) until checkout.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/models"
	"Gin_postgres_redis_loan_approval/workflow"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 7 * 24 * time.Hour

// Workflow is the part of *workflow.Service the cart needs.
type Workflow interface {
	CheckCartLine(ctx context.Context, actor *authz.Actor, itemID string, qty int) (*models.Item, error)
	Submit(ctx context.Context, actor *authz.Actor, in workflow.SubmitInput) (*models.BorrowRequest, error)
}

type Line struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type Cart struct {
	rdb *redis.Client
	ttl time.Duration
	wf  Workflow
}

// New: ttl <= 0 means DefaultTTL.
func New(rdb *redis.Client, wf Workflow, ttl time.Duration) *Cart {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cart{rdb: rdb, ttl: ttl, wf: wf}
}

func key(uid string) string { return "cart:" + uid }

func (c *Cart) quantity(ctx context.Context, uid, itemID string) (int, error) {
	n, err := c.rdb.HGet(ctx, key(uid), itemID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Add puts qty more units of itemID in the cart. The check runs against the
// resulting quantity.
func (c *Cart) Add(ctx context.Context, actor *authz.Actor, itemID string, qty int) ([]Line, error) {
	if qty < 1 {
		return nil, apperr.Invalid("quantity", "must be at least 1")
	}
	have, err := c.quantity(ctx, actor.UserID, itemID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if _, err := c.wf.CheckCartLine(ctx, actor, itemID, have+qty); err != nil {
		return nil, err
	}
	pipe := c.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key(actor.UserID), itemID, int64(qty))
	pipe.Expire(ctx, key(actor.UserID), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("write cart: %w", err)
	}
	return c.List(ctx, actor)
}

// Set replaces the quantity; zero removes the line.
func (c *Cart) Set(ctx context.Context, actor *authz.Actor, itemID string, qty int) ([]Line, error) {
	if qty < 0 {
		return nil, apperr.Invalid("quantity", "must not be negative")
	}
	if qty == 0 {
		return c.Remove(ctx, actor, itemID)
	}
	if _, err := c.wf.CheckCartLine(ctx, actor, itemID, qty); err != nil {
		return nil, err
	}
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key(actor.UserID), itemID, qty)
	pipe.Expire(ctx, key(actor.UserID), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("write cart: %w", err)
	}
	return c.List(ctx, actor)
}

func (c *Cart) Remove(ctx context.Context, actor *authz.Actor, itemID string) ([]Line, error) {
	if err := c.rdb.HDel(ctx, key(actor.UserID), itemID).Err(); err != nil {
		return nil, fmt.Errorf("write cart: %w", err)
	}
	return c.List(ctx, actor)
}

// List returns the lines sorted by item id. Unparseable entries are dropped.
func (c *Cart) List(ctx context.Context, actor *authz.Actor) ([]Line, error) {
	m, err := c.rdb.HGetAll(ctx, key(actor.UserID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	out := make([]Line, 0, len(m))
	for id, v := range m {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			continue
		}
		out = append(out, Line{ItemID: id, Quantity: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (c *Cart) Clear(ctx context.Context, actor *authz.Actor) error {
	return c.rdb.Del(ctx, key(actor.UserID)).Err()
}

// Checkout submits the cart as one request. Items of in are only used for
// per-line notes, matched by item id; the quantities come from the cart.
// The cart is cleared once the request exists.
func (c *Cart) Checkout(ctx context.Context, actor *authz.Actor, in workflow.SubmitInput) (*models.BorrowRequest, error) {
	lines, err := c.List(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperr.Invalid("items", "the cart is empty")
	}
	extra := map[string]workflow.LineInput{}
	for _, l := range in.Items {
		extra[l.ItemID] = l
	}
	in.Items = make([]workflow.LineInput, 0, len(lines))
	for _, l := range lines {
		li := extra[l.ItemID]
		li.ItemID, li.Quantity = l.ItemID, l.Quantity
		in.Items = append(in.Items, li)
	}

	br, err := c.wf.Submit(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	if err := c.Clear(ctx, actor); err != nil {
		log.Printf("[WORKFLOW] clear cart of %s after %s: %v", actor.UserID, br.ID, err)
	}
	return br, nil
}
