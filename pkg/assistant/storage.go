package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pce-project/pce/pkg/store"
)

// Namespace is the plugin KV namespace holding all assistant data.
const Namespace = "llm_assistant"

const (
	policyKey        = "policy"
	metricsKey       = "metrics"
	rewardWindowKey  = "reward_window"
	memoryKeyPrefix  = "mem:"
	pendingKeyPrefix = "pending:"
)

const (
	maxStoredMessages = 10
	maxMessageRunes   = 800
	maxSummaryRunes   = 600
	maxSummaryPiece   = 80
	maxNoteRunes      = 120
	maxStoredNotes    = 32
	maxPromptNotes    = 10
	maxUserTextRunes  = 2000

	rewardWindowSize   = 50
	rewardWindowStored = 100
)

// MemoryMessage is one bounded conversation turn.
type MemoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
	TS   string `json:"ts"`
}

// SessionMemory is the per-session conversational memory document.
type SessionMemory struct {
	LastMessages []MemoryMessage `json:"last_messages"`
	Summary      string          `json:"summary"`
	Preferences  []string        `json:"preferences"`
	Avoid        []string        `json:"avoid"`
}

// Metrics are the rolling assistant performance numbers.
type Metrics struct {
	CountFeedbacks float64 `json:"count_feedbacks"`
	AvgReward      float64 `json:"avg_reward"`
	SuccessRate    float64 `json:"success_rate"`
}

// PendingFeedback links one decision to the feedback that may follow it.
type PendingFeedback struct {
	ProfileID       string  `json:"profile_id"`
	Epsilon         float64 `json:"epsilon"`
	BanditProfileID string  `json:"bandit_profile_id"`
	BanditMode      string  `json:"bandit_mode"`
	FinalMode       string  `json:"final_mode"`
	OverrideReason  string  `json:"override_reason,omitempty"`
	ValueScore      float64 `json:"value_score"`
	CCI             float64 `json:"cci"`
	TS              string  `json:"ts"`
}

// Storage is the namespace-scoped persistence for assistant memory, policy
// and metrics. Every document is normalized on load so older or partially
// written values never break callers.
type Storage struct {
	store  *store.Manager
	policy *Policy
	clock  func() time.Time
}

// StorageOption customizes storage construction.
type StorageOption func(*Storage)

// WithStorageClock overrides the wall clock, for tests.
func WithStorageClock(clock func() time.Time) StorageOption {
	return func(s *Storage) {
		s.clock = clock
	}
}

func NewStorage(st *store.Manager, policy *Policy, opts ...StorageOption) *Storage {
	s := &Storage{
		store:  st,
		policy: policy,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PolicyState loads the bandit state, seeding and persisting defaults when
// none exists yet. Profiles missing from the stored document are zeroed.
func (s *Storage) PolicyState(ctx context.Context) (*PolicyState, error) {
	var stored PolicyState
	ok, err := s.store.PluginGet(ctx, Namespace, policyKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		defaults := s.policy.DefaultState()
		if err := s.store.PluginSet(ctx, Namespace, policyKey, defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}

	defaults := s.policy.DefaultState()
	if stored.Epsilon <= 0 {
		stored.Epsilon = defaults.Epsilon
	}
	if stored.SelectedProfile == "" {
		stored.SelectedProfile = defaults.SelectedProfile
	}
	merged := make(map[string]ProfileStats, len(Profiles))
	for id := range defaults.Profiles {
		merged[id] = ProfileStats{}
	}
	for id, stats := range stored.Profiles {
		merged[id] = stats
	}
	stored.Profiles = merged
	return &stored, nil
}

// SavePolicyState persists the bandit state.
func (s *Storage) SavePolicyState(ctx context.Context, ps *PolicyState) error {
	return s.store.PluginSet(ctx, Namespace, policyKey, ps)
}

// Metrics loads the rolling metrics, seeding zeroes when absent.
func (s *Storage) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	ok, err := s.store.PluginGet(ctx, Namespace, metricsKey, &m)
	if err != nil {
		return Metrics{}, err
	}
	if !ok {
		if err := s.store.PluginSet(ctx, Namespace, metricsKey, Metrics{}); err != nil {
			return Metrics{}, err
		}
		return Metrics{}, nil
	}
	return m, nil
}

// SaveMetrics persists the rolling metrics.
func (s *Storage) SaveMetrics(ctx context.Context, m Metrics) error {
	return s.store.PluginSet(ctx, Namespace, metricsKey, m)
}

// RewardWindow loads the bounded reward history, newest last.
func (s *Storage) RewardWindow(ctx context.Context) ([]float64, error) {
	var window []float64
	if _, err := s.store.PluginGet(ctx, Namespace, rewardWindowKey, &window); err != nil {
		return nil, err
	}
	if len(window) > rewardWindowStored {
		window = window[len(window)-rewardWindowStored:]
	}
	return window, nil
}

// SaveRewardWindow persists the reward history, keeping the newest entries.
func (s *Storage) SaveRewardWindow(ctx context.Context, window []float64) error {
	if len(window) > rewardWindowStored {
		window = window[len(window)-rewardWindowStored:]
	}
	return s.store.PluginSet(ctx, Namespace, rewardWindowKey, window)
}

// SessionMemory loads one session's memory document, normalized to bounds.
func (s *Storage) SessionMemory(ctx context.Context, sessionID string) (*SessionMemory, error) {
	var stored SessionMemory
	ok, err := s.store.PluginGet(ctx, Namespace, memoryKeyPrefix+sessionID, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &SessionMemory{}, nil
	}
	return normalizeMemory(&stored), nil
}

// SaveSessionMemory persists one session memory document, normalized.
func (s *Storage) SaveSessionMemory(ctx context.Context, sessionID string, mem *SessionMemory) error {
	return s.store.PluginSet(ctx, Namespace, memoryKeyPrefix+sessionID, normalizeMemory(mem))
}

// AppendMessage appends one bounded message and refreshes the summary
// snapshot, returning the updated memory.
func (s *Storage) AppendMessage(ctx context.Context, sessionID, role, text string) (*SessionMemory, error) {
	mem, err := s.SessionMemory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	mem.LastMessages = append(mem.LastMessages, MemoryMessage{
		Role: role,
		Text: truncateRunes(text, maxMessageRunes),
		TS:   s.clock().UTC().Format(time.RFC3339Nano),
	})
	if len(mem.LastMessages) > maxStoredMessages {
		mem.LastMessages = mem.LastMessages[len(mem.LastMessages)-maxStoredMessages:]
	}

	pieces := make([]string, 0, len(mem.LastMessages))
	for _, msg := range mem.LastMessages {
		pieces = append(pieces, truncateRunes(msg.Text, maxSummaryPiece))
	}
	mem.Summary = tailRunes(strings.Join(pieces, " | "), maxSummaryRunes)

	if err := s.SaveSessionMemory(ctx, sessionID, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

// AddPreference appends a preference note for future prompting.
func (s *Storage) AddPreference(ctx context.Context, sessionID, note string) (*SessionMemory, error) {
	return s.addNote(ctx, sessionID, note, func(mem *SessionMemory, clean string) {
		mem.Preferences = appendNote(mem.Preferences, clean)
	})
}

// AddAvoid appends an avoid note for future prompting.
func (s *Storage) AddAvoid(ctx context.Context, sessionID, note string) (*SessionMemory, error) {
	return s.addNote(ctx, sessionID, note, func(mem *SessionMemory, clean string) {
		mem.Avoid = appendNote(mem.Avoid, clean)
	})
}

func (s *Storage) addNote(ctx context.Context, sessionID, note string, apply func(*SessionMemory, string)) (*SessionMemory, error) {
	mem, err := s.SessionMemory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	clean := truncateRunes(strings.TrimSpace(note), maxNoteRunes)
	if clean != "" {
		apply(mem, clean)
	}
	if err := s.SaveSessionMemory(ctx, sessionID, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

// SetPendingFeedback persists the decision context the next feedback event
// for this session will consume.
func (s *Storage) SetPendingFeedback(ctx context.Context, sessionID string, pending *PendingFeedback) error {
	return s.store.PluginSet(ctx, Namespace, pendingKeyPrefix+sessionID, pending)
}

// PopPendingFeedback loads and removes the pending decision context.
// Returns nil when none is stored.
func (s *Storage) PopPendingFeedback(ctx context.Context, sessionID string) (*PendingFeedback, error) {
	key := pendingKeyPrefix + sessionID
	var pending PendingFeedback
	ok, err := s.store.PluginGet(ctx, Namespace, key, &pending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if err := s.store.PluginDelete(ctx, Namespace, key); err != nil {
		return nil, err
	}
	return &pending, nil
}

// ClearAll wipes the assistant namespace and reseeds policy and metrics
// defaults. Returns how many keys were deleted.
func (s *Storage) ClearAll(ctx context.Context) (int64, error) {
	var deleted int64
	for _, prefix := range []string{memoryKeyPrefix, pendingKeyPrefix, policyKey, metricsKey, rewardWindowKey} {
		n, err := s.store.PluginDeletePrefix(ctx, Namespace, prefix)
		if err != nil {
			return deleted, fmt.Errorf("clearing %s%s*: %w", Namespace, prefix, err)
		}
		deleted += n
	}
	if err := s.store.PluginSet(ctx, Namespace, policyKey, s.policy.DefaultState()); err != nil {
		return deleted, err
	}
	if err := s.store.PluginSet(ctx, Namespace, metricsKey, Metrics{}); err != nil {
		return deleted, err
	}
	if err := s.store.PluginSet(ctx, Namespace, rewardWindowKey, []float64{}); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// normalizeMemory enforces the document bounds in place and returns it.
func normalizeMemory(mem *SessionMemory) *SessionMemory {
	if len(mem.LastMessages) > maxStoredMessages {
		mem.LastMessages = mem.LastMessages[len(mem.LastMessages)-maxStoredMessages:]
	}
	mem.Summary = truncateRunes(mem.Summary, maxSummaryRunes)
	mem.Preferences = sanitizeNotes(mem.Preferences)
	mem.Avoid = sanitizeNotes(mem.Avoid)
	return mem
}

// sanitizeNotes dedupes, bounds each note, and keeps the newest entries.
func sanitizeNotes(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	notes := make([]string, 0, len(raw))
	for _, item := range raw {
		text := truncateRunes(strings.TrimSpace(item), maxNoteRunes)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		notes = append(notes, text)
	}
	if len(notes) > maxStoredNotes {
		notes = notes[len(notes)-maxStoredNotes:]
	}
	return notes
}

// appendNote adds a deduped note, evicting the oldest past the cap.
func appendNote(notes []string, clean string) []string {
	for _, existing := range notes {
		if existing == clean {
			return notes
		}
	}
	notes = append(notes, clean)
	if len(notes) > maxStoredNotes {
		notes = notes[len(notes)-maxStoredNotes:]
	}
	return notes
}

// lastN returns the trailing n entries of notes.
func lastN(notes []string, n int) []string {
	if len(notes) <= n {
		return notes
	}
	return notes[len(notes)-n:]
}

// truncateRunes keeps the leading n runes of s.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// tailRunes keeps the trailing n runes of s.
func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
