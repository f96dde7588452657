package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/pce-project/pce/pkg/approval"
	"github.com/pce-project/pce/pkg/models"
)

// approvalDecisionRequest is the body of approve, reject, and override
// calls. Reject prefers reason over notes for its audit note.
type approvalDecisionRequest struct {
	Actor  string `json:"actor"`
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (s *Server) bindDecision(c *echo.Context) (*approvalDecisionRequest, error) {
	var req approvalDecisionRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Actor == "" {
		req.Actor = extractActor(c)
	}
	return &req, nil
}

// ────────────────────────────────────────────────────────────
// GET /os/approvals, GET /v1/os/approvals
// ────────────────────────────────────────────────────────────

func (s *Server) listApprovalsHandler(c *echo.Context) error {
	items, err := s.gate.List(c.Request().Context())
	if err != nil {
		return mapPipelineError(err)
	}

	pending := make([]*models.Approval, 0, len(items))
	for _, item := range items {
		if item.Status == models.ApprovalStatusPending {
			pending = append(pending, item)
		}
	}
	return c.JSON(http.StatusOK, &ApprovalListResponse{Pending: pending, Items: items})
}

// ────────────────────────────────────────────────────────────
// POST /os/approvals/:id/approve
// 200 with the resolution pipeline response, 409 when the twin budget
// cannot cover the projected cost (the approval stays pending).
// ────────────────────────────────────────────────────────────

func (s *Server) approveApprovalHandler(c *echo.Context) error {
	req, err := s.bindDecision(c)
	if err != nil {
		return err
	}

	resp, _, err := s.engine.ResolveApproval(
		c.Request().Context(), c.Param("id"), approval.VerdictApprove, req.Actor, req.Notes)
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ────────────────────────────────────────────────────────────
// POST /os/approvals/:id/reject
// ────────────────────────────────────────────────────────────

func (s *Server) rejectApprovalHandler(c *echo.Context) error {
	req, err := s.bindDecision(c)
	if err != nil {
		return err
	}
	reason := req.Reason
	if reason == "" {
		reason = req.Notes
	}
	if reason == "" {
		reason = "no reason provided"
	}

	resp, _, err := s.engine.ResolveApproval(
		c.Request().Context(), c.Param("id"), approval.VerdictReject, req.Actor, reason)
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ────────────────────────────────────────────────────────────
// POST /v1/os/approvals/:id/override
// Forces execution past the budget check; the record is marked as an
// override for the audit trail.
// ────────────────────────────────────────────────────────────

func (s *Server) overrideApprovalHandler(c *echo.Context) error {
	req, err := s.bindDecision(c)
	if err != nil {
		return err
	}
	notes := req.Notes
	if notes == "" {
		notes = "override"
	}

	resp, _, err := s.engine.ResolveApproval(
		c.Request().Context(), c.Param("id"), approval.VerdictOverride, req.Actor, notes)
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusOK, resp)
}
