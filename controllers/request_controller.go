package controllers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_loan_approval/app"
	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/models"
	"Gin_postgres_redis_loan_approval/workflow"

	"github.com/gin-gonic/gin"
)

type RequestController struct{ *Srv }

func NewRequestController(s *Srv) *RequestController { return &RequestController{Srv: s} }

// submitBody: dates are "YYYY-MM-DD" (RFC 3339 is accepted too).
type submitBody struct {
	Purpose       string               `json:"purpose"`
	StartDate     string               `json:"startDate"`
	EndDate       string               `json:"endDate"`
	LocationUsage string               `json:"locationUsage"`
	PICName       string               `json:"picName"`
	PICContact    string               `json:"picContact"`
	Items         []workflow.LineInput `json:"items"`
}

func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, apperr.Invalid(field, "is required")
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Invalid(field, "expected YYYY-MM-DD")
}

func (b submitBody) input() (workflow.SubmitInput, error) {
	start, err := parseDate("startDate", b.StartDate)
	if err != nil {
		return workflow.SubmitInput{}, err
	}
	end, err := parseDate("endDate", b.EndDate)
	if err != nil {
		return workflow.SubmitInput{}, err
	}
	return workflow.SubmitInput{
		Purpose:       b.Purpose,
		StartDate:     start,
		EndDate:       end,
		LocationUsage: b.LocationUsage,
		PICName:       b.PICName,
		PICContact:    b.PICContact,
		Items:         b.Items,
	}, nil
}

// POST /api/requests
func (rc *RequestController) Submit(c *gin.Context) {
	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badBody(c, err)
		return
	}
	in, err := body.input()
	if err != nil {
		fail(c, err)
		return
	}
	a := actor(c)
	br, err := rc.WF.Submit(c.Request.Context(), a, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, workflow.RequestView{BorrowRequest: br, AvailableEvents: workflow.AvailableEvents(a, br)})
}

// GET /api/requests?scope=mine|department|headmaster|all&status=a,b
func (rc *RequestController) List(c *gin.Context) {
	var statuses []models.RequestStatus
	for _, s := range strings.Split(c.Query("status"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			statuses = append(statuses, models.RequestStatus(s))
		}
	}
	rs, err := rc.WF.List(c.Request.Context(), actor(c), workflow.Scope(c.Query("scope")), statuses)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"requests": rs})
}

// GET /api/requests/:id
func (rc *RequestController) Get(c *gin.Context) {
	v, err := rc.WF.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// GET /api/requests/:id/history
func (rc *RequestController) History(c *gin.Context) {
	logs, err := rc.WF.History(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"history": logs})
}

// GET /api/requests/:id/letter 打印用快照
func (rc *RequestController) Letter(c *gin.Context) {
	l, err := rc.WF.Letter(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// Fire returns the handler of POST /api/requests/:id/<ev>. The body is
// optional: {notes, reason}.
func (rc *RequestController) Fire(ev workflow.Event) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Notes  string `json:"notes"`
			Reason string `json:"reason"`
		}
		// chunked 请求 ContentLength 为 -1，只能靠读到 EOF 判断空 body
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
				badBody(c, err)
				return
			}
		}
		a := actor(c)
		br, err := rc.WF.Fire(c.Request.Context(), a, c.Param("id"), ev,
			workflow.DecisionInput{Notes: in.Notes, Reason: in.Reason})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, workflow.RequestView{BorrowRequest: br, AvailableEvents: workflow.AvailableEvents(a, br)})
	}
}

// GET /api/dashboard
func (rc *RequestController) Dashboard(c *gin.Context) {
	counts, err := rc.WF.Dashboard(c.Request.Context(), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"counts": counts})
}
