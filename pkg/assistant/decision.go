package assistant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/llm"
	"github.com/pce-project/pce/pkg/masking"
	"github.com/pce-project/pce/pkg/models"
)

// FallbackReply is returned when the provider cannot be called. The event
// still completes; only the reply text degrades.
const FallbackReply = "Configuração ausente/erro OpenRouter. Ajuste OPENROUTER_API_KEY/OPENROUTER_MODEL."

// Replier generates one assistant reply. *llm.Client satisfies it.
type Replier interface {
	Generate(ctx context.Context, messages []llm.Message, dec llm.Decoding) (string, error)
	Model() string
}

// Decision is the assistant decision plugin. It builds the bounded prompt
// from session memory, calls OpenRouter with the policy-selected decoding,
// and emits the reply action plan with a full explain bag.
type Decision struct {
	storage *Storage
	policy  *Policy
	values  ValueModel
	client  Replier
	masker  *masking.Service
	logger  *slog.Logger
}

func (d *Decision) Name() string { return "assistant_decision" }

func (d *Decision) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "assistant" && strings.HasPrefix(ev.EventType, "observation.assistant")
}

func (d *Decision) Decide(ctx context.Context, in *engine.DecisionInput) (*models.ActionPlan, error) {
	started := time.Now()
	ev := in.Event
	sessionID := strings.TrimSpace(ev.PayloadString("session_id"))
	if sessionID == "" {
		sessionID = "global"
	}
	userText := strings.TrimSpace(ev.PayloadString("text"))

	memory, err := d.storage.SessionMemory(ctx, sessionID)
	if err != nil {
		d.logger.Warn("Loading session memory failed, starting empty",
			"session_id", sessionID, "error", err)
		memory = &SessionMemory{}
	}
	policyState, err := d.storage.PolicyState(ctx)
	if err != nil {
		d.logger.Warn("Loading policy state failed, using defaults", "error", err)
		policyState = d.policy.DefaultState()
	}

	cciScore := 0.5
	if in.CCI != nil {
		cciScore = in.CCI.Score
	}
	bandit := d.policy.Choose(policyState)
	final, overrideReason := d.policy.Override(bandit, in.ValueScore, cciScore)

	prefs := lastN(memory.Preferences, maxPromptNotes)
	avoid := lastN(memory.Avoid, maxPromptNotes)
	messages := buildMessages(userText, memory.Summary, prefs, avoid, strategicValuesOf(in.State))
	promptHash := hashPrompt(messages)

	var openrouterError string
	reply, err := d.client.Generate(ctx, messages, final.Decoding)
	if err != nil {
		openrouterError = d.masker.Excerpt(err.Error(), 240)
		d.logger.Error("OpenRouter call failed, using fallback reply",
			"session_id", sessionID,
			"model", d.client.Model(),
			"prompt_hash", promptHash,
			"error", openrouterError)
		reply = FallbackReply
	}

	if _, err := d.storage.AppendMessage(ctx, sessionID, "user", userText); err != nil {
		d.logger.Warn("Recording user message failed", "session_id", sessionID, "error", err)
	}
	if _, err := d.storage.AppendMessage(ctx, sessionID, "assistant", reply); err != nil {
		d.logger.Warn("Recording assistant message failed", "session_id", sessionID, "error", err)
	}
	pending := &PendingFeedback{
		ProfileID:       final.ProfileID,
		Epsilon:         bandit.Epsilon,
		BanditProfileID: bandit.ProfileID,
		BanditMode:      bandit.Mode,
		FinalMode:       final.Mode,
		OverrideReason:  overrideReason,
		ValueScore:      in.ValueScore,
		CCI:             cciScore,
		TS:              ev.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if err := d.storage.SetPendingFeedback(ctx, sessionID, pending); err != nil {
		d.logger.Warn("Storing pending feedback failed", "session_id", sessionID, "error", err)
	}

	explain := map[string]any{
		"epl": map[string]any{
			"event_type": ev.EventType,
			"domain":     ev.Domain(),
			"tags":       ev.Tags(),
		},
		"isi": map[string]any{
			"state_keys_used": usedStateKeys(in.State),
			"memory_used": map[string]any{
				"has_summary":    memory.Summary != "",
				"msgs":           len(memory.LastMessages),
				"prefs":          len(prefs),
				"preferences":    prefs,
				"avoid_count":    len(avoid),
				"avoid":          avoid,
				"avoid_injected": len(avoid) > 0,
			},
		},
		"vel": map[string]any{
			"value_score": in.ValueScore,
			"components":  d.values.Components(in.State, ev),
		},
		"de": map[string]any{
			"selected_by_bandit": map[string]any{
				"profile_id": bandit.ProfileID,
				"mode":       bandit.Mode,
				"epsilon":    bandit.Epsilon,
			},
			"final_profile":   final.ProfileID,
			"final_mode":      final.Mode,
			"override_reason": overrideReason,
			"final_decoding": map[string]any{
				"temperature":      final.Decoding.Temperature,
				"top_p":            final.Decoding.TopP,
				"presence_penalty": final.Decoding.PresencePenalty,
			},
			"model":            d.client.Model(),
			"prompt_hash":      promptHash,
			"openrouter_error": openrouterError,
		},
		"ao":  map[string]any{"execution": "emitted"},
		"afs": map[string]any{"pending": true},
	}

	d.logger.Info("Assistant reply decided",
		"session_id", sessionID,
		"profile", bandit.ProfileID,
		"final_profile", final.ProfileID,
		"mode", final.Mode,
		"override_reason", overrideReason,
		"epsilon", bandit.Epsilon,
		"value_score", in.ValueScore,
		"cci", cciScore,
		"latency_ms", time.Since(started).Milliseconds(),
		"user_preview", d.masker.Excerpt(userText, 80),
		"reply_preview", d.masker.Excerpt(reply, 80))

	return &models.ActionPlan{
		ActionType: "assistant.action",
		Rationale: fmt.Sprintf("assistant profile=%s mode=%s epsilon=%.4f",
			final.ProfileID, final.Mode, bandit.Epsilon),
		Priority: 2,
		Metadata: map[string]any{
			"action_payload": map[string]any{
				"type":   "assistant.reply",
				"text":   reply,
				"format": "markdown",
			},
			"explain": explain,
		},
	}, nil
}

// buildMessages composes the bounded chat-completions payload. Preference
// and avoid hints are injected as system guidance; the user turn is capped.
func buildMessages(userText, summary string, prefs, avoid []string, strategicValues map[string]any) []llm.Message {
	messages := []llm.Message{
		{
			Role: "system",
			Content: "Você é um assistente útil, seguro e objetivo. " +
				"Responda em markdown com clareza. " +
				"Preferências conhecidas:\n" + bulletList(prefs) + "\n" +
				"Evitar:\n" + bulletList(avoid) + "\n" +
				"Objetivos estratégicos: " + strategicSection(strategicValues) + ".",
		},
		{
			Role:    "system",
			Content: "Internal rule: explain mode OFF. Never expose hidden reasoning.",
		},
	}
	if summary != "" {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "Resumo de contexto recente (pode estar incompleto): " + truncateRunes(summary, maxSummaryRunes),
		})
	}
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: truncateRunes(userText, maxUserTextRunes),
	})
	return messages
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- none"
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return strings.Join(lines, "\n")
}

// strategicSection renders up to eight strategic values in sorted key order
// so the prompt, and therefore its hash, stays deterministic.
func strategicSection(values map[string]any) string {
	if len(values) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) > 8 {
		keys = keys[:8]
	}
	items := make([]string, 0, len(keys))
	for _, key := range keys {
		items = append(items, fmt.Sprintf("%s=%v", key, values[key]))
	}
	return strings.Join(items, ", ")
}

func strategicValuesOf(state map[string]any) map[string]any {
	values, _ := state["strategic_values"].(map[string]any)
	return values
}

func usedStateKeys(state map[string]any) []string {
	used := make([]string, 0, 3)
	for _, key := range []string{"assistant", "strategic_values", "model"} {
		if _, ok := state[key]; ok {
			used = append(used, key)
		}
	}
	return used
}

// hashPrompt hashes the canonical JSON form of the messages. Maps marshal
// with sorted keys, which keeps the hash stable across processes.
func hashPrompt(messages []llm.Message) string {
	canonical := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		canonical = append(canonical, map[string]string{
			"role":    m.Role,
			"content": m.Content,
		})
	}
	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
