package assistant

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/database"
	"github.com/pce-project/pce/pkg/store"
)

func newTestStorage(t *testing.T, opts ...StorageOption) (*Storage, *store.Manager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pce_test.db")
	client, err := database.NewClient(context.Background(), database.DefaultConfig(path))
	require.NoError(t, err)

	st := store.NewManager(client)
	t.Cleanup(func() {
		st.Close()
		_ = client.Close()
	})
	return NewStorage(st, NewPolicy(nil), opts...), st
}

func TestPolicyStateSeedsDefaults(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	ps, err := storage.PolicyState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, ps.Epsilon, 1e-9)
	assert.Equal(t, DefaultProfileID, ps.SelectedProfile)
	assert.Len(t, ps.Profiles, 4)

	// The seeded document is persisted, so a saved change survives reloads.
	ps.Epsilon = 0.31
	ps.FeedbackCount = 7
	require.NoError(t, storage.SavePolicyState(ctx, ps))

	loaded, err := storage.PolicyState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.31, loaded.Epsilon, 1e-9)
	assert.Equal(t, 7, loaded.FeedbackCount)
}

func TestPolicyStateNormalizesPartialDocument(t *testing.T) {
	storage, st := newTestStorage(t)
	ctx := context.Background()

	partial := map[string]any{
		"profiles": map[string]any{
			"P1": map[string]any{"count": 4, "avg_reward": 0.25},
		},
	}
	require.NoError(t, st.PluginSet(ctx, Namespace, policyKey, partial))

	ps, err := storage.PolicyState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, ps.Epsilon, 1e-9)
	assert.Equal(t, DefaultProfileID, ps.SelectedProfile)
	assert.Len(t, ps.Profiles, 4)
	assert.Equal(t, 4, ps.Profiles["P1"].Count)
	assert.Equal(t, 0, ps.Profiles["P0"].Count)
}

func TestAppendMessageBounds(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	storage, _ := newTestStorage(t, WithStorageClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := storage.AppendMessage(ctx, "s1", "user", fmt.Sprintf("mensagem %02d", i))
		require.NoError(t, err)
	}
	long := strings.Repeat("é", 900)
	mem, err := storage.AppendMessage(ctx, "s1", "assistant", long)
	require.NoError(t, err)

	require.Len(t, mem.LastMessages, 10)
	assert.Equal(t, "mensagem 03", mem.LastMessages[0].Text)
	assert.Equal(t, now.Format(time.RFC3339Nano), mem.LastMessages[0].TS)

	last := mem.LastMessages[9]
	assert.Equal(t, "assistant", last.Role)
	assert.Len(t, []rune(last.Text), 800)

	// Summary joins 80-rune pieces and keeps only the trailing 600 runes.
	assert.LessOrEqual(t, len([]rune(mem.Summary)), 600)
	assert.True(t, strings.HasSuffix(mem.Summary, strings.Repeat("é", 80)))
	assert.Contains(t, mem.Summary, " | ")
}

func TestNotesDedupeAndCap(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := storage.AddPreference(ctx, "s1", "  responder em português  ")
		require.NoError(t, err)
	}
	mem, err := storage.AddPreference(ctx, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"responder em português"}, mem.Preferences)

	for i := 0; i < 35; i++ {
		_, err := storage.AddAvoid(ctx, "s1", fmt.Sprintf("nota %02d", i))
		require.NoError(t, err)
	}
	mem, err = storage.SessionMemory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, mem.Avoid, 32)
	assert.Equal(t, "nota 03", mem.Avoid[0])
	assert.Equal(t, "nota 34", mem.Avoid[31])
}

func TestSessionMemoryMissingIsEmpty(t *testing.T) {
	storage, _ := newTestStorage(t)

	mem, err := storage.SessionMemory(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, mem.LastMessages)
	assert.Empty(t, mem.Summary)
	assert.Empty(t, mem.Preferences)
	assert.Empty(t, mem.Avoid)
}

func TestPendingFeedbackPopRemoves(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	pending := &PendingFeedback{
		ProfileID:       "P0",
		Epsilon:         0.552,
		BanditProfileID: "P2",
		BanditMode:      "explore",
		FinalMode:       "override_safe",
		OverrideReason:  OverrideValueFloor,
		ValueScore:      0.4,
		CCI:             0.7,
	}
	require.NoError(t, storage.SetPendingFeedback(ctx, "s1", pending))

	got, err := storage.PopPendingFeedback(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "P0", got.ProfileID)
	assert.Equal(t, "P2", got.BanditProfileID)
	assert.Equal(t, OverrideValueFloor, got.OverrideReason)

	got, err = storage.PopPendingFeedback(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRewardWindowKeepsNewest(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	window := make([]float64, 0, 120)
	for i := 0; i < 120; i++ {
		window = append(window, float64(i))
	}
	require.NoError(t, storage.SaveRewardWindow(ctx, window))

	loaded, err := storage.RewardWindow(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 100)
	assert.Equal(t, 20.0, loaded[0])
	assert.Equal(t, 119.0, loaded[99])
}

func TestClearAllReseeds(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()

	ps, err := storage.PolicyState(ctx)
	require.NoError(t, err)
	require.NoError(t, storage.SavePolicyState(ctx, storage.policy.Update(ps, "P1", 1.0)))
	_, err = storage.Metrics(ctx)
	require.NoError(t, err)
	require.NoError(t, storage.SaveRewardWindow(ctx, []float64{1, -1}))
	_, err = storage.AppendMessage(ctx, "s1", "user", "oi")
	require.NoError(t, err)
	require.NoError(t, storage.SetPendingFeedback(ctx, "s1", &PendingFeedback{ProfileID: "P1"}))

	deleted, err := storage.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	ps, err = storage.PolicyState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, ps.Epsilon, 1e-9)
	assert.Equal(t, 0, ps.FeedbackCount)

	mem, err := storage.SessionMemory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, mem.LastMessages)

	pending, err := storage.PopPendingFeedback(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, pending)
}
