package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/pce-project/pce/pkg/models"
	"github.com/pce-project/pce/pkg/robotics"
)

// defaultAuditTail is the audit-trail window returned by GET /v1/os/state
// when no limit is given; limit accepts 1..200.
const defaultAuditTail = 30

// ────────────────────────────────────────────────────────────
// GET /os/robotics/state
// ────────────────────────────────────────────────────────────

func (s *Server) getRoboticsStateHandler(c *echo.Context) error {
	state, err := s.store.LoadState(c.Request().Context())
	if err != nil {
		return mapPipelineError(err)
	}
	twin := robotics.LoadTwin(state)
	return c.JSON(http.StatusOK, &RoboticsStateResponse{RoboticsTwin: twin.Doc()})
}

// ────────────────────────────────────────────────────────────
// GET /v1/os/state
// Control-room aggregate: twin snapshot, derived metrics, approval queue
// counters, and the tail of the audit trail.
// ────────────────────────────────────────────────────────────

func (s *Server) getOSStateHandler(c *echo.Context) error {
	limit := defaultAuditTail
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 200 {
			limit = n
		}
	}

	ctx := c.Request().Context()
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return mapPipelineError(err)
	}
	twin := robotics.LoadTwin(state)

	cci, err := s.engine.CCI(ctx)
	if err != nil {
		return mapPipelineError(err)
	}
	approvals, err := s.gate.List(ctx)
	if err != nil {
		return mapPipelineError(err)
	}
	cursor, err := s.store.LatestCursor(ctx)
	if err != nil {
		return mapPipelineError(err)
	}

	pending := 0
	approved := 0
	for _, item := range approvals {
		switch item.Status {
		case models.ApprovalStatusPending:
			pending++
		case models.ApprovalStatusApproved:
			approved++
		}
	}
	approvalRate := 0.0
	if len(approvals) > 0 {
		approvalRate = float64(approved) / float64(len(approvals))
	}

	actualSpend := 0.0
	for _, purchase := range twin.PurchaseHistory {
		if cost, ok := purchase["total_cost"].(float64); ok {
			actualSpend += cost
		}
	}

	tail := twin.AuditTrail
	if len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}

	return c.JSON(http.StatusOK, &OSStateResponse{
		TwinSnapshot: twin.Doc(),
		OSMetrics: OSMetrics{
			BudgetRemaining: twin.BudgetRemaining,
			RiskLevel:       twin.RiskLevel,
			ProjectedVsActual: ProjectedVsActual{
				ProjectedCost:       twin.CostProjection.ProjectedTotalCost,
				ActualPurchaseSpend: actualSpend,
			},
			ApprovalRate: approvalRate,
			CCI:          cci.Score,
		},
		PolicyState: PolicyState{
			PendingCount:     pending,
			ResolvedCount:    len(approvals) - pending,
			TranscriptCursor: cursor,
		},
		LastNAuditTrail: tail,
	})
}
