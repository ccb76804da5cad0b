package workflow

import (
	"context"
	"errors"
	"time"

	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/inventory"
	"Gin_postgres_redis_loan_approval/models"
)

// RequestView is a request plus what the caller may do with it now.
type RequestView struct {
	*models.BorrowRequest
	AvailableEvents []Event `json:"availableEvents"`
}

// AvailableEvents lists the events actor may fire on br in its current status.
func AvailableEvents(actor *authz.Actor, br *models.BorrowRequest) []Event {
	target := targetOf(br)
	out := []Event{}
	for _, t := range From(br.Status) {
		if authz.Authorize(actor, t.Op, target) == nil {
			out = append(out, t.Event)
		}
	}
	return out
}

func (s *Service) view(actor *authz.Actor, br *models.BorrowRequest) RequestView {
	return RequestView{BorrowRequest: br, AvailableEvents: AvailableEvents(actor, br)}
}

// load fetches a request and checks view_request on it. A request out of
// the actor's view is reported as not found.
func (s *Service) load(ctx context.Context, actor *authz.Actor, id string) (*models.BorrowRequest, error) {
	if err := authz.Check(actor, authz.OpViewRequest); err != nil {
		return nil, err
	}
	br, err := s.repo.GetRequest(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("request")
	}
	if err != nil {
		return nil, err
	}
	// 看不到的请求按不存在处理
	if err := authz.Authorize(actor, authz.OpViewRequest, targetOf(br)); err != nil {
		return nil, apperr.NotFound("request")
	}
	return br, nil
}

func (s *Service) Get(ctx context.Context, actor *authz.Actor, id string) (*RequestView, error) {
	br, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	v := s.view(actor, br)
	return &v, nil
}

func (s *Service) History(ctx context.Context, actor *authz.Actor, id string) ([]models.RequestLog, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.ListRequestLogs(ctx, id)
}

type Scope string

const (
	ScopeVisible    Scope = ""           // everything the actor may see
	ScopeMine       Scope = "mine"       // filed by the actor
	ScopeDepartment Scope = "department" // touching departments the actor owns
	ScopeHeadmaster Scope = "headmaster" // waiting for the headmaster
	ScopeAll        Scope = "all"
)

// filterFor turns a scope into a repo filter. ok=false: nothing visible.
func filterFor(actor *authz.Actor, scope Scope) (db.RequestFilter, bool, error) {
	wide := actor.IsAdmin() || actor.Has(models.RoleHeadmaster)
	switch scope {
	case ScopeMine:
		return db.RequestFilter{BorrowerID: actor.UserID}, true, nil
	case ScopeDepartment:
		if actor.IsAdmin() {
			return db.RequestFilter{}, true, nil
		}
		depts := actor.OwnedDepartments()
		return db.RequestFilter{DepartmentIDs: depts}, len(depts) > 0, nil
	case ScopeHeadmaster:
		if err := authz.Check(actor, authz.OpHeadmasterDecision); err != nil {
			return db.RequestFilter{}, false, err
		}
		return db.RequestFilter{Statuses: []models.RequestStatus{models.StatusPendingHeadmaster}}, true, nil
	case ScopeAll:
		if !wide {
			return db.RequestFilter{}, false, apperr.Forbidden("scope all")
		}
		return db.RequestFilter{}, true, nil
	case ScopeVisible:
		if wide {
			return db.RequestFilter{}, true, nil
		}
		return db.RequestFilter{
			BorrowerID:    actor.UserID,
			DepartmentIDs: actor.OwnedDepartments(),
			Union:         true,
		}, true, nil
	}
	return db.RequestFilter{}, false, apperr.Invalid("scope", "unknown scope %q", scope)
}

func (s *Service) List(ctx context.Context, actor *authz.Actor, scope Scope, statuses []models.RequestStatus) ([]RequestView, error) {
	if err := authz.Check(actor, authz.OpViewRequest); err != nil {
		return nil, err
	}
	for _, st := range statuses {
		if !st.Valid() {
			return nil, apperr.Invalid("status", "unknown status %q", st)
		}
	}
	f, ok, err := filterFor(actor, scope)
	if err != nil {
		return nil, err
	}
	out := []RequestView{}
	if !ok {
		return out, nil
	}
	if len(statuses) > 0 {
		f.Statuses = intersect(f.Statuses, statuses)
		if len(f.Statuses) == 0 {
			return out, nil
		}
	}
	rs, err := s.repo.ListRequests(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range rs {
		out = append(out, s.view(actor, &rs[i]))
	}
	return out, nil
}

// intersect: an empty have means "any".
func intersect(have, want []models.RequestStatus) []models.RequestStatus {
	if len(have) == 0 {
		return want
	}
	var out []models.RequestStatus
	for _, w := range want {
		for _, h := range have {
			if w == h {
				out = append(out, w)
			}
		}
	}
	return out
}

// Dashboard counts requests per status within the actor's visibility.
func (s *Service) Dashboard(ctx context.Context, actor *authz.Actor) (map[models.RequestStatus]int64, error) {
	if err := authz.Check(actor, authz.OpViewReports); err != nil {
		return nil, err
	}
	f, _, err := filterFor(actor, ScopeVisible)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, st := range []models.RequestStatus{
		models.StatusPendingOwner, models.StatusPendingHeadmaster, models.StatusApproved,
		models.StatusActive, models.StatusCompleted, models.StatusRejected, models.StatusCancelled,
	} {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return counts, nil
}

// LetterLine is one item row of the printable letter.
type LetterLine struct {
	ItemName   string `json:"itemName"`
	ItemCode   string `json:"itemCode"`
	Department string `json:"department"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Letter is the snapshot handed to the document renderer. It is only
// produced once a letter number exists, and every field it carries is
// frozen from then on.
type Letter struct {
	LetterNumber     string       `json:"letterNumber"`
	GeneratedAt      time.Time    `json:"generatedAt"`
	RequestID        string       `json:"requestId"`
	Status           string       `json:"status"`
	Purpose          string       `json:"purpose"`
	StartDate        time.Time    `json:"startDate"`
	EndDate          time.Time    `json:"endDate"`
	LocationUsage    string       `json:"locationUsage"`
	PICName          string       `json:"picName"`
	PICContact       string       `json:"picContact"`
	Borrower         Person       `json:"borrower"`
	OwnerReviewer    *Person      `json:"ownerReviewer,omitempty"`
	OwnerNotes       string       `json:"ownerNotes,omitempty"`
	HeadmasterSigner *Person      `json:"headmasterSigner,omitempty"`
	HeadmasterNotes  string       `json:"headmasterNotes,omitempty"`
	Items            []LetterLine `json:"items"`
}

func (s *Service) Letter(ctx context.Context, actor *authz.Actor, id string) (*Letter, error) {
	br, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if br.LetterNumber == nil || !br.Status.CarriesLetter() {
		return nil, &apperr.StateTransitionError{From: string(br.Status), Event: "print a letter for"}
	}

	var ids []string
	if br.OwnerReviewedBy != nil {
		ids = append(ids, *br.OwnerReviewedBy)
	}
	if br.HeadmasterApprovedBy != nil {
		ids = append(ids, *br.HeadmasterApprovedBy)
	}
	people, err := s.repo.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	person := func(id *string) *Person {
		if id == nil {
			return nil
		}
		p := &Person{ID: *id}
		if u, ok := people[*id]; ok {
			p.Name, p.Email = u.DisplayName, u.Email
		}
		return p
	}

	l := &Letter{
		LetterNumber:     *br.LetterNumber,
		RequestID:        br.ID,
		Status:           string(br.Status),
		Purpose:          br.Purpose,
		StartDate:        br.StartDate,
		EndDate:          br.EndDate,
		LocationUsage:    br.LocationUsage,
		PICName:          br.PICName,
		PICContact:       br.PICContact,
		Borrower:         Person{ID: br.BorrowerID},
		OwnerReviewer:    person(br.OwnerReviewedBy),
		OwnerNotes:       br.OwnerNotes,
		HeadmasterSigner: person(br.HeadmasterApprovedBy),
		HeadmasterNotes:  br.HeadmasterNotes,
	}
	if br.LetterGeneratedAt != nil {
		l.GeneratedAt = *br.LetterGeneratedAt
	}
	if br.Borrower != nil {
		l.Borrower.Name, l.Borrower.Email = br.Borrower.DisplayName, br.Borrower.Email
	}
	for _, line := range br.Items {
		ll := LetterLine{Quantity: line.Quantity, Notes: line.Notes}
		if line.Item != nil {
			ll.ItemName, ll.ItemCode = line.Item.Name, line.Item.Code
			if line.Item.Department != nil {
				ll.Department = line.Item.Department.Name
			}
		}
		l.Items = append(l.Items, ll)
	}
	return l, nil
}

// ItemView is an item with its derived availability.
type ItemView struct {
	models.Item
	Availability inventory.Availability `json:"availability"`
}

// Availability is the storage form of the ledger for the given items.
func (s *Service) Availability(ctx context.Context, items []models.Item) (map[string]inventory.Availability, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	out := make(map[string]inventory.Availability, len(items))
	if len(ids) == 0 {
		return out, nil
	}
	committed, err := s.repo.CommittedQuantities(ctx, ids, "")
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		a := inventory.ComputeAvailability(it.ID, it.TotalQuantity, committed[it.ID])
		if a.Overcommitted {
			logAnomaly(it, a)
		}
		out[it.ID] = a
	}
	return out, nil
}

// Inventory is the public board; anyone may read it.
func (s *Service) Inventory(ctx context.Context, f db.ItemFilter) ([]ItemView, error) {
	items, err := s.repo.ListItems(ctx, f)
	if err != nil {
		return nil, err
	}
	avail, err := s.Availability(ctx, items)
	if err != nil {
		return nil, err
	}
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, ItemView{Item: it, Availability: avail[it.ID]})
	}
	return out, nil
}

func (s *Service) InventoryItem(ctx context.Context, id string) (*ItemView, error) {
	it, err := s.repo.FindItemByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("item")
	}
	if err != nil {
		return nil, err
	}
	avail, err := s.Availability(ctx, []models.Item{*it})
	if err != nil {
		return nil, err
	}
	return &ItemView{Item: *it, Availability: avail[it.ID]}, nil
}
