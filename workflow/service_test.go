package workflow_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"Gin_postgres_redis_loan_approval/models"
	"Gin_postgres_redis_loan_approval/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectApproveIssuesLetterAndCommitsStock(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 5, f.available(f.projector))

	br := f.submit(f.borrower, f.projector.ID, 3)
	assert.Equal(t, models.StatusPendingOwner, br.Status)
	assert.Nil(t, br.LetterNumber)
	assert.Equal(t, 5, f.available(f.projector), "pending requests hold no stock")

	got, err := f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	require.NotNil(t, got.LetterNumber)
	assert.Equal(t, "LOAN/2026/10/0001", *got.LetterNumber)
	require.NotNil(t, got.LetterGeneratedAt)
	require.NotNil(t, got.OwnerReviewedBy)
	assert.Equal(t, f.scienceOwner.UserID, *got.OwnerReviewedBy)
	assert.Equal(t, "ok", got.OwnerNotes)
	assert.Equal(t, 2, f.available(f.projector))
}

func TestSecondApprovalHitsCapacity(t *testing.T) {
	f := newFixture(t)
	first := f.submit(f.borrower, f.projector.ID, 3)
	second := f.submit(f.borrower2, f.projector.ID, 3)
	assert.Equal(t, models.StatusPendingOwner, second.Status, "submission does not check capacity")

	_, err := f.svc.Approve(f.ctx, f.scienceOwner, first.ID, workflow.DecisionInput{})
	require.NoError(t, err)

	_, err = f.svc.Approve(f.ctx, f.scienceOwner, second.ID, workflow.DecisionInput{})
	c := asCapacity(err)
	require.NotNil(t, c, "want CapacityError, got %v", err)
	require.Len(t, c.Shortfalls, 1)
	assert.Equal(t, "Projector", c.Shortfalls[0].ItemName)
	assert.Equal(t, 3, c.Shortfalls[0].Requested)
	assert.Equal(t, 2, c.Shortfalls[0].Available)

	after := f.reload(second.ID)
	assert.Equal(t, models.StatusPendingOwner, after.Status)
	assert.Nil(t, after.LetterNumber)
	assert.Nil(t, after.OwnerReviewedAt)
}

func TestEscalateThenHeadmasterRejects(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 2)

	esc, err := f.svc.Escalate(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{Notes: "large group"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingHeadmaster, esc.Status)
	assert.Nil(t, esc.LetterNumber)
	assert.NotNil(t, esc.OwnerReviewedAt)

	_, err = f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
	assert.True(t, isForbidden(err), "owner cannot decide at headmaster stage")

	_, err = f.svc.Reject(f.ctx, f.headmaster, br.ID, workflow.DecisionInput{Reason: "   "})
	assert.True(t, isInvalid(err))
	assert.Equal(t, models.StatusPendingHeadmaster, f.reload(br.ID).Status)

	rej, err := f.svc.Reject(f.ctx, f.headmaster, br.ID, workflow.DecisionInput{Reason: "insufficient justification"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rej.Status)
	require.NotNil(t, rej.RejectionReason)
	assert.Equal(t, "insufficient justification", *rej.RejectionReason)
	assert.Nil(t, rej.LetterNumber)
	require.NotNil(t, rej.HeadmasterApprovedBy)
	assert.Equal(t, f.headmaster.UserID, *rej.HeadmasterApprovedBy)
	assert.Equal(t, 5, f.available(f.projector))
}

func TestHeadmasterApprovalIssuesLetter(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.easel.ID, 1)
	_, err := f.svc.Escalate(f.ctx, f.artOwner, br.ID, workflow.DecisionInput{})
	require.NoError(t, err)

	got, err := f.svc.Approve(f.ctx, f.headmaster, br.ID, workflow.DecisionInput{Notes: "approved for exhibition"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	require.NotNil(t, got.LetterNumber)
	assert.NotNil(t, got.HeadmasterApprovedAt)
	assert.Equal(t, "approved for exhibition", got.HeadmasterNotes)
	assert.Equal(t, 3, f.available(f.easel))
}

func TestStartAndReturnFlipItemStatus(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 3)
	_, err := f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
	require.NoError(t, err)

	active, err := f.svc.Start(f.ctx, f.borrower, br.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, active.Status)
	assert.NotNil(t, active.StartedAt)
	it, err := f.repo.FindItemByID(f.ctx, f.projector.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemBorrowed, it.Status)
	assert.Equal(t, 2, f.available(f.projector))

	done, err := f.svc.Return(f.ctx, f.scienceOwner, br.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.LetterNumber, "completed requests keep their letter")
	it, err = f.repo.FindItemByID(f.ctx, f.projector.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, it.Status)
	assert.Equal(t, 5, f.available(f.projector))
}

func TestReturnKeepsItemBorrowedWhileAnotherLoanIsActive(t *testing.T) {
	f := newFixture(t)
	a := f.submit(f.borrower, f.projector.ID, 2)
	b := f.submit(f.borrower2, f.projector.ID, 2)
	for _, br := range []*models.BorrowRequest{a, b} {
		_, err := f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
		require.NoError(t, err)
		_, err = f.svc.Start(f.ctx, f.admin, br.ID)
		require.NoError(t, err)
	}

	_, err := f.svc.Return(f.ctx, f.borrower, a.ID)
	require.NoError(t, err)
	it, err := f.repo.FindItemByID(f.ctx, f.projector.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemBorrowed, it.Status)
	assert.Equal(t, 3, f.available(f.projector))
}

func TestMaintenanceStatusSurvivesFanOut(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 1)
	_, err := f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateItem(f.ctx, f.projector.ID, map[string]any{"status": models.ItemMaintenance}))

	_, err = f.svc.Start(f.ctx, f.borrower, br.ID)
	require.NoError(t, err)
	it, err := f.repo.FindItemByID(f.ctx, f.projector.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemMaintenance, it.Status)
}

func TestStartRechecksCapacityExcludingItself(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 3)
	_, err := f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
	require.NoError(t, err)

	// its own hold does not count against it
	three := 3
	_, err = f.svc.UpdateItem(f.ctx, f.scienceOwner, f.projector.ID, workflow.ItemInput{TotalQuantity: &three})
	require.NoError(t, err)
	_, err = f.svc.Start(f.ctx, f.borrower, br.ID)
	require.NoError(t, err)

	other := f.submit(f.borrower2, f.easel.ID, 4)
	_, err = f.svc.Approve(f.ctx, f.artOwner, other.ID, workflow.DecisionInput{})
	require.NoError(t, err)
	one := 1
	_, err = f.svc.UpdateItem(f.ctx, f.artOwner, f.easel.ID, workflow.ItemInput{TotalQuantity: &one})
	require.NoError(t, err)
	_, err = f.svc.Start(f.ctx, f.borrower2, other.ID)
	require.NotNil(t, asCapacity(err), "want CapacityError, got %v", err)
	assert.Equal(t, models.StatusApproved, f.reload(other.ID).Status)
}

func TestOwnerOfOtherDepartmentIsRefused(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 1)

	for _, fire := range []func() error{
		func() error { _, err := f.svc.Approve(f.ctx, f.artOwner, br.ID, workflow.DecisionInput{}); return err },
		func() error { _, err := f.svc.Escalate(f.ctx, f.artOwner, br.ID, workflow.DecisionInput{}); return err },
		func() error {
			_, err := f.svc.Reject(f.ctx, f.artOwner, br.ID, workflow.DecisionInput{Reason: "no"})
			return err
		},
	} {
		err := fire()
		assert.True(t, isForbidden(err), "want AuthorizationError, got %v", err)
		assert.NotContains(t, err.Error(), f.science.Name)
	}
	assert.Equal(t, models.StatusPendingOwner, f.reload(br.ID).Status)

	_, err := f.svc.Get(f.ctx, f.artOwner, br.ID)
	assert.True(t, isNotFound(err), "reads do not reveal the request")
}

// A request outside the actor's view answers exactly like a missing id:
// not found on reads, not permitted on decisions.
func TestOutOfScopeRequestLooksMissing(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 1)

	_, missing := f.svc.Get(f.ctx, f.artOwner, "no-such-request")
	_, hidden := f.svc.Get(f.ctx, f.artOwner, br.ID)
	require.True(t, isNotFound(missing))
	require.True(t, isNotFound(hidden))
	assert.Equal(t, missing.Error(), hidden.Error())

	_, err := f.svc.History(f.ctx, f.borrower2, br.ID)
	assert.True(t, isNotFound(err))
	_, err = f.svc.Letter(f.ctx, f.borrower2, br.ID)
	assert.True(t, isNotFound(err))

	_, missing = f.svc.Approve(f.ctx, f.artOwner, "no-such-request", workflow.DecisionInput{})
	_, hidden = f.svc.Approve(f.ctx, f.artOwner, br.ID, workflow.DecisionInput{})
	require.True(t, isForbidden(missing), "got %v", missing)
	require.True(t, isForbidden(hidden), "got %v", hidden)
	assert.Equal(t, missing.Error(), hidden.Error())

	_, missing = f.svc.Start(f.ctx, f.borrower2, "no-such-request")
	_, hidden = f.svc.Start(f.ctx, f.borrower2, br.ID)
	assert.Equal(t, missing.Error(), hidden.Error())

	// an unscoped view has nothing to hide
	_, err = f.svc.Approve(f.ctx, f.headmaster, "no-such-request", workflow.DecisionInput{})
	assert.True(t, isNotFound(err))
}

func TestMixedRequestAnyTouchedOwnerDecides(t *testing.T) {
	f := newFixture(t)
	br, err := f.svc.Submit(f.ctx, f.borrower, f.input(
		workflow.LineInput{ItemID: f.projector.ID, Quantity: 1},
		workflow.LineInput{ItemID: f.easel.ID, Quantity: 1},
	))
	require.NoError(t, err)

	got, err := f.svc.Approve(f.ctx, f.artOwner, br.ID, workflow.DecisionInput{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
}

func TestSelfDealingRefusedAtSubmitAndCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(f.ctx, f.scienceOwner, f.input(workflow.LineInput{ItemID: f.projector.ID, Quantity: 1}))
	assert.True(t, isForbidden(err), "want AuthorizationError, got %v", err)

	_, err = f.svc.CheckCartLine(f.ctx, f.scienceOwner, f.projector.ID, 1)
	assert.True(t, isForbidden(err))

	// other departments are fine
	_, err = f.svc.Submit(f.ctx, f.scienceOwner, f.input(workflow.LineInput{ItemID: f.easel.ID, Quantity: 1}))
	assert.NoError(t, err)
	_, err = f.svc.CheckCartLine(f.ctx, f.scienceOwner, f.easel.ID, 1)
	assert.NoError(t, err)
}

func TestHeadmasterAloneCannotSubmit(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(f.ctx, f.headmaster, f.input(workflow.LineInput{ItemID: f.projector.ID, Quantity: 1}))
	assert.True(t, isForbidden(err))
}

func TestRepeatedApproveIsNoOp(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 1)
	first, err := f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
	require.NoError(t, err)

	second, err := f.svc.Approve(f.ctx, f.admin, br.ID, workflow.DecisionInput{Notes: "again"})
	require.NoError(t, err)
	assert.Equal(t, *first.LetterNumber, *second.LetterNumber)
	assert.Equal(t, first.OwnerReviewedBy, second.OwnerReviewedBy)
	assert.Empty(t, second.OwnerNotes)

	n, err := f.repo.NextLetterSequence(f.ctx, workflow.LetterPeriod(fixedNow))
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the repeat did not consume a sequence number")

	logs, err := f.svc.History(f.ctx, f.borrower, br.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestLetterNumbersAreSequentialWithinPeriod(t *testing.T) {
	f := newFixture(t)
	var got []string
	for i := 0; i < 3; i++ {
		br := f.submit(f.borrower, f.projector.ID, 1)
		ap, err := f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
		require.NoError(t, err)
		got = append(got, *ap.LetterNumber)
	}
	assert.Equal(t, []string{"LOAN/2026/10/0001", "LOAN/2026/10/0002", "LOAN/2026/10/0003"}, got)
}

func TestInvalidEventsAreStateTransitionErrors(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 1)

	_, err := f.svc.Start(f.ctx, f.borrower, br.ID)
	assert.True(t, isBadTransition(err), "got %v", err)
	_, err = f.svc.Return(f.ctx, f.admin, br.ID)
	assert.True(t, isBadTransition(err), "got %v", err)

	// no visibility: the status is not revealed
	_, err = f.svc.Start(f.ctx, f.borrower2, br.ID)
	assert.True(t, isForbidden(err), "got %v", err)

	_, err = f.svc.Approve(f.ctx, f.admin, "missing", workflow.DecisionInput{})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not found"))

	_, err = f.svc.Fire(f.ctx, f.admin, br.ID, workflow.Event("teleport"), workflow.DecisionInput{})
	assert.True(t, isInvalid(err))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 1)

	_, err := f.svc.Cancel(f.ctx, f.borrower2, br.ID, workflow.DecisionInput{})
	assert.True(t, isForbidden(err))
	_, err = f.svc.Cancel(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
	assert.True(t, isForbidden(err), "owners reject, they do not cancel")

	got, err := f.svc.Cancel(f.ctx, f.borrower, br.ID, workflow.DecisionInput{Reason: "class moved"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
	assert.Nil(t, got.LetterNumber)

	approved := f.submit(f.borrower, f.projector.ID, 1)
	_, err = f.svc.Approve(f.ctx, f.scienceOwner, approved.ID, workflow.DecisionInput{})
	require.NoError(t, err)
	_, err = f.svc.Cancel(f.ctx, f.borrower, approved.ID, workflow.DecisionInput{})
	assert.True(t, isBadTransition(err))
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	line := workflow.LineInput{ItemID: f.projector.ID, Quantity: 1}

	tests := []struct {
		name  string
		edit  func(in *workflow.SubmitInput)
		field string
	}{
		{"empty purpose", func(in *workflow.SubmitInput) { in.Purpose = "  " }, "purpose"},
		{"missing location", func(in *workflow.SubmitInput) { in.LocationUsage = "" }, "locationUsage"},
		{"missing pic name", func(in *workflow.SubmitInput) { in.PICName = "" }, "picName"},
		{"missing pic contact", func(in *workflow.SubmitInput) { in.PICContact = "" }, "picContact"},
		{"end before start", func(in *workflow.SubmitInput) { in.EndDate = in.StartDate.AddDate(0, 0, -1) }, "endDate"},
		{"missing start date", func(in *workflow.SubmitInput) { in.StartDate = time.Time{} }, "startDate"},
		{"missing end date", func(in *workflow.SubmitInput) { in.EndDate = time.Time{} }, "endDate"},
		{"no items", func(in *workflow.SubmitInput) { in.Items = nil }, "items"},
		{"empty item list", func(in *workflow.SubmitInput) { in.Items = []workflow.LineInput{} }, "items"},
		{"blank item id", func(in *workflow.SubmitInput) { in.Items[0].ItemID = " " }, "items[0].itemId"},
		{"zero quantity", func(in *workflow.SubmitInput) { in.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"negative quantity", func(in *workflow.SubmitInput) { in.Items[0].Quantity = -2 }, "items[0].quantity"},
		{"duplicate line", func(in *workflow.SubmitInput) { in.Items = append(in.Items, in.Items[0]) }, "items[1].itemId"},
		{"unknown item", func(in *workflow.SubmitInput) { in.Items[0].ItemID = "nope" }, "items[0].itemId"},
		{"more than total", func(in *workflow.SubmitInput) { in.Items[0].Quantity = 6 }, "items[0].quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.input(line)
			tt.edit(&in)
			_, err := f.svc.Submit(f.ctx, f.borrower, in)
			require.True(t, isInvalid(err), "want ValidationError, got %v", err)
			assert.True(t, strings.HasPrefix(err.Error(), tt.field), "error %q should name %s", err, tt.field)
		})
	}

	// same-day loans are fine
	in := f.input(line)
	in.EndDate = in.StartDate
	_, err := f.svc.Submit(f.ctx, f.borrower, in)
	assert.NoError(t, err)
}

func TestSubmitStoresTrimmedDateOnlyValues(t *testing.T) {
	f := newFixture(t)
	in := f.input(workflow.LineInput{ItemID: " " + f.projector.ID + " ", Quantity: 1, Notes: "  spare bulb "})
	in.Purpose = "  Physics practical  "
	in.StartDate = time.Date(2026, 10, 20, 15, 45, 0, 0, time.UTC)
	in.EndDate = time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)

	br, err := f.svc.Submit(f.ctx, f.borrower, in)
	require.NoError(t, err)
	assert.Equal(t, "Physics practical", br.Purpose)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), br.StartDate.UTC())
	assert.Equal(t, br.StartDate.UTC(), br.EndDate.UTC(), "same day once the clock is dropped")
	require.Len(t, br.Items, 1)
	assert.Equal(t, f.projector.ID, br.Items[0].ItemID)
	assert.Equal(t, "spare bulb", br.Items[0].Notes)
	assert.Equal(t, " "+f.projector.ID+" ", in.Items[0].ItemID, "caller's lines are left alone")
}

func TestSubmitRefusesUnloanableItem(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.UpdateItem(f.ctx, f.projector.ID, map[string]any{"status": models.ItemDamaged}))
	_, err := f.svc.Submit(f.ctx, f.borrower, f.input(workflow.LineInput{ItemID: f.projector.ID, Quantity: 1}))
	assert.True(t, isInvalid(err))
}

func TestConcurrentApprovalsOnLastUnit(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for _, who := range []int{0, 1} {
		b := f.borrower
		if who == 1 {
			b = f.borrower2
		}
		ids = append(ids, f.submit(b, f.projector.ID, 5).ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(f.ctx, f.scienceOwner, id, workflow.DecisionInput{})
		}(i, id)
	}
	wg.Wait()

	wins, capacity := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case asCapacity(err) != nil:
			capacity++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, capacity)
	assert.Equal(t, 0, f.available(f.projector))
}

func TestNotificationsFollowCommittedTransitions(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 1)
	_, err := f.svc.Escalate(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
	require.NoError(t, err)
	_, err = f.svc.Reject(f.ctx, f.headmaster, br.ID, workflow.DecisionInput{})
	require.Error(t, err)
	_, err = f.svc.Approve(f.ctx, f.headmaster, br.ID, workflow.DecisionInput{})
	require.NoError(t, err)

	assert.Equal(t, []string{"submit", "escalate", "approve"}, f.rec.kinds())
	last := f.rec.events[len(f.rec.events)-1]
	assert.Equal(t, f.borrower.UserID, last.BorrowerID)
	assert.Equal(t, []string{f.science.ID}, last.DepartmentIDs)
	assert.Contains(t, last.Message, "LOAN/2026/10/0001")
}

func TestAvailableEvents(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 1)

	v, err := f.svc.Get(f.ctx, f.scienceOwner, br.ID)
	require.NoError(t, err)
	assert.Equal(t, []workflow.Event{workflow.EventApprove, workflow.EventEscalate, workflow.EventReject}, v.AvailableEvents)

	v, err = f.svc.Get(f.ctx, f.borrower, br.ID)
	require.NoError(t, err)
	assert.Equal(t, []workflow.Event{workflow.EventCancel}, v.AvailableEvents)

	v, err = f.svc.Get(f.ctx, f.headmaster, br.ID)
	require.NoError(t, err)
	assert.Empty(t, v.AvailableEvents)
}

func TestListScopes(t *testing.T) {
	f := newFixture(t)
	sci := f.submit(f.borrower, f.projector.ID, 1)
	art := f.submit(f.borrower2, f.easel.ID, 1)
	_, err := f.svc.Escalate(f.ctx, f.artOwner, art.ID, workflow.DecisionInput{})
	require.NoError(t, err)

	ids := func(vs []workflow.RequestView) []string {
		var out []string
		for _, v := range vs {
			out = append(out, v.ID)
		}
		return out
	}

	got, err := f.svc.List(f.ctx, f.borrower, workflow.ScopeVisible, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{sci.ID}, ids(got))

	got, err = f.svc.List(f.ctx, f.scienceOwner, workflow.ScopeDepartment, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{sci.ID}, ids(got))

	got, err = f.svc.List(f.ctx, f.headmaster, workflow.ScopeHeadmaster, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{art.ID}, ids(got))

	got, err = f.svc.List(f.ctx, f.admin, workflow.ScopeAll, []models.RequestStatus{models.StatusPendingOwner})
	require.NoError(t, err)
	assert.Equal(t, []string{sci.ID}, ids(got))

	_, err = f.svc.List(f.ctx, f.borrower, workflow.ScopeAll, nil)
	assert.True(t, isForbidden(err))
	_, err = f.svc.List(f.ctx, f.borrower, workflow.ScopeHeadmaster, nil)
	assert.True(t, isForbidden(err))

	counts, err := f.svc.Dashboard(f.ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.StatusPendingOwner])
	assert.Equal(t, int64(1), counts[models.StatusPendingHeadmaster])
	assert.Equal(t, int64(0), counts[models.StatusApproved])
}

func TestLetterSnapshot(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 2)

	_, err := f.svc.Letter(f.ctx, f.borrower, br.ID)
	assert.True(t, isBadTransition(err), "no letter before approval")

	_, err = f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{Notes: "handle with care"})
	require.NoError(t, err)

	l, err := f.svc.Letter(f.ctx, f.borrower, br.ID)
	require.NoError(t, err)
	assert.Equal(t, "LOAN/2026/10/0001", l.LetterNumber)
	assert.Equal(t, "Budi", l.Borrower.Name)
	require.NotNil(t, l.OwnerReviewer)
	assert.Equal(t, "Pak Sains", l.OwnerReviewer.Name)
	assert.Nil(t, l.HeadmasterSigner)
	assert.Equal(t, "handle with care", l.OwnerNotes)
	require.Len(t, l.Items, 1)
	assert.Equal(t, workflow.LetterLine{ItemName: "Projector", ItemCode: "SCI-PROJ", Department: "Science", Quantity: 2}, l.Items[0])
	assert.True(t, l.GeneratedAt.Equal(fixedNow))
}

func TestReconcileAndAnomalies(t *testing.T) {
	f := newFixture(t)
	br := f.submit(f.borrower, f.projector.ID, 3)
	_, err := f.svc.Approve(f.ctx, f.scienceOwner, br.ID, workflow.DecisionInput{})
	require.NoError(t, err)
	_, err = f.svc.Start(f.ctx, f.borrower, br.ID)
	require.NoError(t, err)

	// simulate a lost fan-out on both items
	_, err = f.repo.SetItemStatus(f.ctx, []string{f.projector.ID}, models.ItemAvailable)
	require.NoError(t, err)
	_, err = f.repo.SetItemStatus(f.ctx, []string{f.easel.ID}, models.ItemBorrowed)
	require.NoError(t, err)

	_, err = f.svc.ReconcileItemStatuses(f.ctx, f.scienceOwner)
	assert.True(t, isForbidden(err))

	res, err := f.svc.ReconcileItemStatuses(f.ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Borrowed)
	assert.Equal(t, int64(1), res.Released)

	p, _ := f.repo.FindItemByID(f.ctx, f.projector.ID)
	e, _ := f.repo.FindItemByID(f.ctx, f.easel.ID)
	assert.Equal(t, models.ItemBorrowed, p.Status)
	assert.Equal(t, models.ItemAvailable, e.Status)

	list, err := f.svc.Anomalies(f.ctx, f.admin)
	require.NoError(t, err)
	assert.Empty(t, list)

	two := 2
	_, err = f.svc.UpdateItem(f.ctx, f.admin, f.projector.ID, workflow.ItemInput{TotalQuantity: &two})
	require.NoError(t, err)
	list, err = f.svc.Anomalies(f.ctx, f.admin)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.projector.ID, list[0].ItemID)
	assert.Equal(t, 0, list[0].Available)
	assert.Equal(t, 0, f.available(f.projector))
}

func TestCatalogIsDepartmentScoped(t *testing.T) {
	f := newFixture(t)
	qty := 2
	in := workflow.ItemInput{Name: "Microscope", Code: "SCI-MIC", DepartmentID: f.science.ID, TotalQuantity: &qty}

	_, err := f.svc.CreateItem(f.ctx, f.artOwner, in)
	assert.True(t, isForbidden(err))
	_, err = f.svc.CreateItem(f.ctx, f.borrower, in)
	assert.True(t, isForbidden(err))

	it, err := f.svc.CreateItem(f.ctx, f.scienceOwner, in)
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, it.Status)

	_, err = f.svc.UpdateItem(f.ctx, f.scienceOwner, it.ID, workflow.ItemInput{DepartmentID: f.art.ID})
	assert.True(t, isForbidden(err), "moving to a department not owned")

	neg := -1
	_, err = f.svc.UpdateItem(f.ctx, f.scienceOwner, it.ID, workflow.ItemInput{TotalQuantity: &neg})
	assert.True(t, isInvalid(err))

	br := f.submit(f.borrower, it.ID, 1)
	err = f.svc.DeleteItem(f.ctx, f.scienceOwner, it.ID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "still referenced")
	assert.Equal(t, models.StatusPendingOwner, f.reload(br.ID).Status)

	require.NoError(t, f.svc.DeleteItem(f.ctx, f.artOwner, f.easel.ID))
}
