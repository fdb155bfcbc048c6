package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/engine"
	"github.com/fyrsmithlabs/remedyd/internal/learning"
	"github.com/fyrsmithlabs/remedyd/internal/risk"
)

// ProposalRequest is the JSON body for POST /api/v1/proposals.
type ProposalRequest struct {
	Kind              string          `json:"kind"`
	Target            string          `json:"target"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Params            map[string]any  `json:"params"`
	EstimatedDuration string          `json:"estimated_duration"`
	RequestedBy       string          `json:"requested_by"`
	Evidence          EvidenceRequest `json:"evidence"`
}

// EvidenceRequest is the evidence block of a proposal request.
type EvidenceRequest struct {
	Metrics   map[string]float64 `json:"metrics"`
	PatternID string             `json:"pattern_id"`
	Reasoning string             `json:"reasoning"`
	Factors   *risk.FactorScores `json:"factors"`
}

// DecisionRequest is the JSON body for approve/reject calls.
type DecisionRequest struct {
	ApproverID string `json:"approver_id"`
	Reason     string `json:"reason"`
}

// CancelRequest is the JSON body for cancel calls.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// FeedbackRequest is the JSON body for feedback calls.
type FeedbackRequest struct {
	Rating  int    `json:"rating"`
	Helpful bool   `json:"helpful"`
	Comment string `json:"comment"`
}

// ObservationRequest is the JSON body for POST /api/v1/observations.
// Health feeds push metric samples here for the degradation detector.
type ObservationRequest struct {
	Target     string  `json:"target"`
	Metric     string  `json:"metric"`
	Value      float64 `json:"value"`
	ObservedAt string  `json:"observed_at"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleSubmitProposal handles POST /api/v1/proposals.
func (s *Server) handleSubmitProposal(c echo.Context) error {
	var req ProposalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	var estimated time.Duration
	if req.EstimatedDuration != "" {
		parsed, err := time.ParseDuration(req.EstimatedDuration)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid estimated_duration: %v", err),
			})
		}
		estimated = parsed
	}

	record, err := s.registry.Engine().Submit(c.Request().Context(), engine.Proposal{
		Kind:              req.Kind,
		Target:            req.Target,
		Title:             req.Title,
		Description:       req.Description,
		Params:            req.Params,
		EstimatedDuration: estimated,
		RequestedBy:       req.RequestedBy,
		Evidence: engine.Evidence{
			Metrics:   req.Evidence.Metrics,
			PatternID: req.Evidence.PatternID,
			Reasoning: req.Evidence.Reasoning,
			Factors:   req.Evidence.Factors,
		},
	})
	if err != nil {
		// A blocked proposal still yields the terminal record.
		if errors.Is(err, engine.ErrPolicyBlocked) && record != nil {
			return c.JSON(http.StatusUnprocessableEntity, record)
		}
		return s.errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, record)
}

// handleSubmitObservation handles POST /api/v1/observations.
func (s *Server) handleSubmitObservation(c echo.Context) error {
	source := s.registry.Observations()
	if source == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "observation intake is not configured"})
	}

	var req ObservationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Target == "" || req.Metric == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "target and metric are required"})
	}

	at := time.Now()
	if req.ObservedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ObservedAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: fmt.Sprintf("invalid observed_at: %v", err),
			})
		}
		at = parsed
	}

	source.RecordMetric(req.Target, req.Metric, at, req.Value)
	return c.NoContent(http.StatusAccepted)
}

// handleListApprovals handles GET /api/v1/approvals.
func (s *Server) handleListApprovals(c echo.Context) error {
	records, err := s.registry.Engine().PendingApprovals(c.Request().Context())
	if err != nil {
		return s.errorResponse(c, err)
	}
	if records == nil {
		records = []*engine.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

// handleListRecords handles GET /api/v1/records.
func (s *Server) handleListRecords(c echo.Context) error {
	records, err := s.registry.Engine().Records(c.Request().Context())
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

// handleGetRecord handles GET /api/v1/records/:id.
func (s *Server) handleGetRecord(c echo.Context) error {
	record, err := s.registry.Engine().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

// handleApprove handles POST /api/v1/records/:id/approve.
func (s *Server) handleApprove(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	record, err := s.registry.Engine().Approve(c.Request().Context(), c.Param("id"), req.ApproverID, req.Reason)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

// handleReject handles POST /api/v1/records/:id/reject.
func (s *Server) handleReject(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	record, err := s.registry.Engine().Reject(c.Request().Context(), c.Param("id"), req.ApproverID, req.Reason)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

// handleCancel handles POST /api/v1/records/:id/cancel.
func (s *Server) handleCancel(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	record, err := s.registry.Engine().Cancel(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

// handleFeedback handles POST /api/v1/records/:id/feedback.
func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	if err := s.registry.Engine().SubmitFeedback(c.Request().Context(), c.Param("id"), req.Rating, req.Helpful, req.Comment); err != nil {
		return s.errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleInsights handles GET /api/v1/insights.
func (s *Server) handleInsights(c echo.Context) error {
	insights, err := s.registry.Engine().Insights(c.Request().Context())
	if err != nil {
		return s.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, insights)
}

// handleListPatterns handles GET /api/v1/patterns.
func (s *Server) handleListPatterns(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Patterns().Snapshot())
}

// errorResponse maps service errors to HTTP statuses.
func (s *Server) errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, engine.ErrValidation), errors.Is(err, learning.ErrInvalidRating):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, learning.ErrEventNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyResolved),
		errors.Is(err, engine.ErrTargetBusy),
		errors.Is(err, engine.ErrNotCancellable),
		errors.Is(err, engine.ErrNotTerminal):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrPolicyBlocked):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		return c.JSON(status, ErrorResponse{Error: "internal error"})
	}
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}
