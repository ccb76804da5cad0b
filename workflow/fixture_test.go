package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/db/dbtest"
	"Gin_postgres_redis_loan_approval/models"
	"Gin_postgres_redis_loan_approval/notify"
	"Gin_postgres_redis_loan_approval/workflow"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Emit(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	t    *testing.T
	ctx  context.Context
	repo *db.Repo
	svc  *workflow.Service
	rec  *recorder

	science, art models.Department
	projector    models.Item // science, 5 units
	easel        models.Item // art, 4 units

	borrower, borrower2    *authz.Actor
	scienceOwner, artOwner *authz.Actor
	headmaster, admin      *authz.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), repo: dbtest.New(t), rec: &recorder{}}
	f.svc = workflow.NewService(f.repo, f.rec, workflow.Options{Now: func() time.Time { return fixedNow }})

	f.science = models.Department{Name: "Science"}
	f.art = models.Department{Name: "Art"}
	require.NoError(t, f.repo.CreateDepartment(f.ctx, &f.science))
	require.NoError(t, f.repo.CreateDepartment(f.ctx, &f.art))

	f.projector = f.item("Projector", "SCI-PROJ", f.science.ID, 5)
	f.easel = f.item("Easel", "ART-EASEL", f.art.ID, 4)

	f.borrower = f.user("borrower@school.test", "Budi", models.RoleAssignment{Role: models.RoleBorrower})
	f.borrower2 = f.user("borrower2@school.test", "Citra", models.RoleAssignment{Role: models.RoleBorrower})
	f.scienceOwner = f.user("sci@school.test", "Pak Sains",
		models.RoleAssignment{Role: models.RoleBorrower},
		models.RoleAssignment{Role: models.RoleOwner, DepartmentID: &f.science.ID})
	f.artOwner = f.user("art@school.test", "Bu Seni",
		models.RoleAssignment{Role: models.RoleOwner, DepartmentID: &f.art.ID})
	f.headmaster = f.user("head@school.test", "Kepala Sekolah", models.RoleAssignment{Role: models.RoleHeadmaster})
	f.admin = f.user("admin@school.test", "Admin", models.RoleAssignment{Role: models.RoleAdmin})
	return f
}

func (f *fixture) item(name, code, dept string, total int) models.Item {
	f.t.Helper()
	it := models.Item{Name: name, Code: code, DepartmentID: dept, TotalQuantity: total}
	require.NoError(f.t, f.repo.CreateItem(f.ctx, &it))
	return it
}

// user persists the user and its roles so recipients resolve, and returns
// the matching actor.
func (f *fixture) user(email, name string, roles ...models.RoleAssignment) *authz.Actor {
	f.t.Helper()
	u, err := f.repo.FindOrCreateUser(f.ctx, "idp-"+email, email, name)
	require.NoError(f.t, err)
	for _, r := range roles {
		_, err := f.repo.AssignRole(f.ctx, u.ID, r.Role, r.DepartmentID)
		require.NoError(f.t, err)
	}
	u, err = f.repo.FindUserByID(f.ctx, u.ID)
	require.NoError(f.t, err)
	return &authz.Actor{UserID: u.ID, Email: u.Email, Name: u.DisplayName, Roles: u.Roles}
}

func (f *fixture) input(lines ...workflow.LineInput) workflow.SubmitInput {
	return workflow.SubmitInput{
		Purpose:       "Physics practical",
		StartDate:     time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC),
		LocationUsage: "Lab 2",
		PICName:       "Pak Guru",
		PICContact:    "0812-0000-0000",
		Items:         lines,
	}
}

func (f *fixture) submit(actor *authz.Actor, itemID string, qty int) *models.BorrowRequest {
	f.t.Helper()
	br, err := f.svc.Submit(f.ctx, actor, f.input(workflow.LineInput{ItemID: itemID, Quantity: qty}))
	require.NoError(f.t, err)
	return br
}

func (f *fixture) available(it models.Item) int {
	f.t.Helper()
	v, err := f.svc.InventoryItem(f.ctx, it.ID)
	require.NoError(f.t, err)
	return v.Availability.Available
}

func (f *fixture) reload(id string) *models.BorrowRequest {
	f.t.Helper()
	br, err := f.repo.GetRequest(f.ctx, id)
	require.NoError(f.t, err)
	return br
}

func asCapacity(err error) *apperr.CapacityError {
	var c *apperr.CapacityError
	if errors.As(err, &c) {
		return c
	}
	return nil
}

func isForbidden(err error) bool {
	var a *apperr.AuthorizationError
	return errors.As(err, &a)
}

func isBadTransition(err error) bool {
	var s *apperr.StateTransitionError
	return errors.As(err, &s)
}

func isNotFound(err error) bool {
	var n *apperr.NotFoundError
	return errors.As(err, &n)
}

func isInvalid(err error) bool {
	var v *apperr.ValidationError
	return errors.As(err, &v)
}
