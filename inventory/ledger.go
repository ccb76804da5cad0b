// Package inventory derives available quantity from total stock and the
// requests currently holding it. Nothing here writes; release is simply the
// next computation no longer seeing the request.
package inventory

import (
	"sort"

	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/models"
)

// LimitedThreshold: below this many units an item shows as limited.
const LimitedThreshold = 3

type Badge string

const (
	BadgeAvailable   Badge = "available"
	BadgeLimited     Badge = "limited"
	BadgeUnavailable Badge = "unavailable"
)

type Availability struct {
	ItemID    string `json:"itemId"`
	Total     int    `json:"totalQuantity"`
	Committed int    `json:"committedQuantity"`
	Available int    `json:"availableQuantity"`
	Badge     Badge  `json:"badge"`
	// Overcommitted: total edited below what approved/active requests hold.
	Overcommitted bool `json:"overcommitted,omitempty"`
}

// ComputeAvailability clamps at zero; an over-committed item is flagged, not fixed.
func ComputeAvailability(itemID string, total, committed int) Availability {
	a := Availability{ItemID: itemID, Total: total, Committed: committed}
	a.Available = total - committed
	if a.Available < 0 {
		a.Available = 0
		a.Overcommitted = true
	}
	a.Badge = BadgeFor(a.Available)
	return a
}

// BadgeFor is display sugar only; never use it for authorization or capacity.
func BadgeFor(available int) Badge {
	switch {
	case available <= 0:
		return BadgeUnavailable
	case available < LimitedThreshold:
		return BadgeLimited
	default:
		return BadgeAvailable
	}
}

// Committed sums the quantity of itemID held by requests in approved/active.
func Committed(itemID string, requests []models.BorrowRequest) int {
	n := 0
	for _, r := range requests {
		if !r.Status.HoldsStock() {
			continue
		}
		for _, line := range r.Items {
			if line.ItemID == itemID {
				n += line.Quantity
			}
		}
	}
	return n
}

// ForItem is ComputeAvailability over an in-memory request set.
func ForItem(item models.Item, requests []models.BorrowRequest) Availability {
	return ComputeAvailability(item.ID, item.TotalQuantity, Committed(item.ID, requests))
}

// Shortfalls returns, sorted by item id, the items whose availability does not
// cover the wanted quantity. Items missing from avail count as zero available.
func Shortfalls(wanted map[string]int, avail map[string]Availability) []apperr.Shortfall {
	var out []apperr.Shortfall
	for id, qty := range wanted {
		a := avail[id]
		if qty > a.Available {
			out = append(out, apperr.Shortfall{ItemID: id, Requested: qty, Available: a.Available})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}
