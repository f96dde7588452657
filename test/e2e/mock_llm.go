package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/pce-project/pce/pkg/llm"
)

// ReplyScript is one scripted assistant turn.
type ReplyScript struct {
	Text string
	Err  error
}

// ScriptedReplier stands in for the OpenRouter client in e2e tests.
// Replies are served in script order; an exhausted script fails the call,
// which the assistant converts into its fallback reply.
type ScriptedReplier struct {
	mu        sync.Mutex
	script    []ReplyScript
	calls     int
	prompts   [][]llm.Message
	decodings []llm.Decoding
}

// NewScriptedReplier creates an empty replier. Add turns with AddReply
// and AddError before driving the assistant.
func NewScriptedReplier() *ScriptedReplier {
	return &ScriptedReplier{}
}

// AddReply appends a successful scripted turn.
func (r *ScriptedReplier) AddReply(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script = append(r.script, ReplyScript{Text: text})
}

// AddError appends a failing scripted turn.
func (r *ScriptedReplier) AddError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script = append(r.script, ReplyScript{Err: err})
}

// Generate implements assistant.Replier, popping the next scripted turn.
func (r *ScriptedReplier) Generate(_ context.Context, messages []llm.Message, dec llm.Decoding) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	r.prompts = append(r.prompts, messages)
	r.decodings = append(r.decodings, dec)

	if len(r.script) == 0 {
		return "", fmt.Errorf("reply script exhausted after %d calls", r.calls)
	}
	entry := r.script[0]
	r.script = r.script[1:]
	if entry.Err != nil {
		return "", entry.Err
	}
	return entry.Text, nil
}

// Model implements assistant.Replier.
func (r *ScriptedReplier) Model() string { return "test/scripted" }

// CallCount returns how many times Generate was invoked.
func (r *ScriptedReplier) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Prompt returns the messages the i-th call was given.
func (r *ScriptedReplier) Prompt(i int) []llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prompts[i]
}

// LastDecoding returns the decoding parameters of the most recent call.
func (r *ScriptedReplier) LastDecoding() llm.Decoding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decodings[len(r.decodings)-1]
}
