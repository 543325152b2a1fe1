package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"voiceref/internal/calls"
	"voiceref/internal/checks"
	"voiceref/internal/questions"
	"voiceref/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Checks     *checks.Service
	Questions  *questions.Service
	Scheduler  *calls.Scheduler
	Dispatcher *calls.Dispatcher
	Reporting  *reporting.Service

	// Health reports dependency readiness; nil means always healthy.
	Health func(ctx context.Context) error
}

func invalidJSON(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
}

func (h Handlers) Healthz(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Reference checks ---

func (h Handlers) CreateCheck(c *gin.Context) {
	var req checks.CreateCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	detail, err := h.Checks.CreateCheck(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

func (h Handlers) GetCheck(c *gin.Context) {
	detail, err := h.Checks.GetCheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// CheckSummary aggregates the calls of one check. Optional from/to query params are RFC3339.
func (h Handlers) CheckSummary(c *gin.Context) {
	var rng reporting.TimeRange
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": p.name + " must be RFC3339"})
			return
		}
		*p.dst = t
	}

	id := c.Param("id")
	if _, err := h.Checks.GetCheckRecord(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	out, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{CheckID: id, Range: rng})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) PreviewQuestions(c *gin.Context) {
	var req questions.BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": h.Questions.Preview(c.Request.Context(), req)})
}

// --- Candidate and reference links ---

type submitReferencesRequest struct {
	References []checks.ReferenceInput `json:"references"`
}

func (h Handlers) SubmitReferences(c *gin.Context) {
	var req submitReferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	detail, err := h.Checks.SubmitReferencesWithToken(c.Request.Context(), c.Param("token"), req.References)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reference_check_id": detail.Check.ID,
		"status":             detail.Check.Status,
		"references":         len(detail.Contacts),
	})
}

type referenceLinkView struct {
	CandidateName string   `json:"candidate_name"`
	Position      string   `json:"position"`
	Company       string   `json:"company"`
	ReferenceName string   `json:"reference_name"`
	Phone         string   `json:"phone,omitempty"`
	Questions     []string `json:"questions"`
}

// GetReferenceLink shows the reference what they are scheduling, without check internals.
func (h Handlers) GetReferenceLink(c *gin.Context) {
	link, err := h.Checks.ResolveReferenceLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, referenceLinkView{
		CandidateName: link.Check.CandidateName,
		Position:      link.Check.Position,
		Company:       link.Check.Company,
		ReferenceName: link.Contact.Name,
		Phone:         link.Contact.Phone,
		Questions:     questions.Texts(link.Questions),
	})
}

type scheduleFromLinkRequest struct {
	ScheduledTime time.Time `json:"scheduled_time"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
}

func (h Handlers) ScheduleFromLink(c *gin.Context) {
	var req scheduleFromLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	link, err := h.Checks.ResolveReferenceLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	call, err := h.Scheduler.Schedule(c.Request.Context(), calls.ScheduleRequest{
		CheckID:       link.Check.ID,
		ContactID:     link.Contact.ID,
		PhoneNumber:   strings.TrimSpace(req.PhoneNumber),
		ContactName:   link.Contact.Name,
		ScheduledTime: req.ScheduledTime,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"call_id":        call.ID,
		"scheduled_time": call.ScheduledTime,
		"phone_number":   call.PhoneNumber,
		"status":         call.Status,
	})
}

type submitResponsesRequest struct {
	Responses []string `json:"responses"`
}

// SubmitResponses lets a reference answer the question set in writing instead of by phone.
func (h Handlers) SubmitResponses(c *gin.Context) {
	var req submitResponsesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	rs, err := h.Checks.CompleteWithResponses(c.Request.Context(), c.Param("token"), req.Responses)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "responses": len(rs)})
}

// --- Calls ---

func (h Handlers) ScheduleCall(c *gin.Context) {
	var req calls.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	call, err := h.Scheduler.Schedule(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Scheduler.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// Dispatch runs one dispatcher scan. Per-call failures are in the report, not the status.
func (h Handlers) Dispatch(c *gin.Context) {
	report, err := h.Dispatcher.RunOnce(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
