package robotics

import (
	"context"
	"log/slog"

	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/models"
)

// Decision plans the os.robotics workflow per event type and attaches the
// committee round plus the twin snapshot to the explain bag.
type Decision struct {
	committee *Committee
	logger    *slog.Logger
}

func (d *Decision) Name() string { return "os_robotics_decision" }

func (d *Decision) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "os.robotics"
}

func (d *Decision) Decide(ctx context.Context, in *engine.DecisionInput) (*models.ActionPlan, error) {
	ev := in.Event
	twin := LoadTwin(in.State)

	projectedCost := twin.CostProjection.ProjectedTotalCost
	if v, ok := ev.PayloadFloat("projected_cost"); ok {
		projectedCost = v
	}
	projectedRisk := stringOr(ev.Payload, "risk_level", twin.RiskLevel)

	cciScore := 0.5
	if in.CCI != nil {
		cciScore = in.CCI.Score
	}

	round := d.committee.Run(ctx, ev, twin)

	explain := map[string]any{
		"value_dimensions": map[string]any{
			"value_score":      in.ValueScore,
			"cci":              cciScore,
			"budget_remaining": twin.BudgetRemaining,
		},
		"risk_level": twin.RiskLevel,
		"budget_snapshot": map[string]any{
			"total":     twin.BudgetTotal,
			"remaining": twin.BudgetRemaining,
		},
		"event_snapshot": map[string]any{
			"event_type": ev.EventType,
			"payload":    ev.Payload,
		},
		"twin_snapshot": twin.Doc(),
		"gate_required": ev.EventType == "purchase.requested",
		"committee": map[string]any{
			"proposed_actions": round.ProposedActions,
			"risk_flags":       round.RiskFlags,
			"questions":        round.Questions,
		},
		"agent_transcript": round.Transcript,
	}

	plan := planFor(ev.EventType)
	metadata := map[string]any{
		"projected_cost": projectedCost,
		"risk_level":     twin.RiskLevel,
		"explain":        explain,
	}
	if ev.EventType == "purchase.requested" {
		metadata["risk_level"] = projectedRisk
		metadata["purchase_id"] = ev.Payload["purchase_id"]
	}
	plan.Metadata = metadata

	d.logger.Info("OS plan decided",
		"event_type", ev.EventType,
		"action_type", plan.ActionType,
		"priority", plan.Priority,
		"projected_cost", projectedCost,
		"risk_level", metadata["risk_level"],
		"committee_actions", len(round.ProposedActions))
	return plan, nil
}

// planFor maps the OS lifecycle events to their workflow actions.
func planFor(eventType string) *models.ActionPlan {
	switch eventType {
	case "project.goal.defined":
		return &models.ActionPlan{
			ActionType: "os.generate_bom",
			Rationale:  "Projeto definido; gerar BOM inicial e baseline de custo/risco.",
			Priority:   2,
		}
	case "part.candidate.added":
		return &models.ActionPlan{
			ActionType: "os.update_project_plan",
			Rationale:  "Componente candidato adicionado; recalcular projeções.",
			Priority:   3,
		}
	case "purchase.requested":
		return &models.ActionPlan{
			ActionType: "os.request_purchase_approval",
			Rationale:  "Compra solicitada; aguardando gate humano obrigatório.",
			Priority:   1,
		}
	case "purchase.completed":
		return &models.ActionPlan{
			ActionType: "os.record_purchase",
			Rationale:  "Compra concluída; registrar execução e atualizar saldo.",
			Priority:   1,
		}
	case "part.received":
		return &models.ActionPlan{
			ActionType: "os.schedule_test",
			Rationale:  "Parte recebida; agendar teste de validação.",
			Priority:   1,
		}
	case "test.result.recorded":
		return &models.ActionPlan{
			ActionType: "os.update_project_plan",
			Rationale:  "Resultado de teste recebido; atualizar risco e custo projetado.",
			Priority:   2,
		}
	}
	return &models.ActionPlan{
		ActionType: "os.update_project_plan",
		Rationale:  "Evento OS processado com atualização incremental do plano.",
		Priority:   4,
	}
}
