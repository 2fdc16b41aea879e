package llmagent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/owensanzas/vulnsentinel/pkg/models"
)

// fakeProvider replays a scripted sequence of Responses, one per call to
// Generate, and records the messages it was sent.
type fakeProvider struct {
	responses []Response
	calls     int
	seen      [][]Message
}

func (f *fakeProvider) Generate(ctx context.Context, model string, temperature float64, messages []Message, tools []ToolDefinition) (Response, error) {
	f.seen = append(f.seen, append([]Message(nil), messages...))
	if f.calls >= len(f.responses) {
		return Response{}, errors.New("fakeProvider: no more scripted responses")
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func baseSpec() Spec {
	return Spec{
		AgentType:    models.AgentTypeEventClassifier,
		EngineName:   "test-engine",
		SystemPrompt: "system",
		MaxTurns:     5,
		Model:        "gpt-4o-mini",
		Parse: func(content string) (any, error) {
			return content, nil
		},
	}
}

// TestRun_DispatchesToolCallsAndReturnsFinalContent: a tool-call turn
// dispatches every call, appends truncated results, and loops; a
// plain-content turn with a terminal stop reason ends the run.
func TestRun_DispatchesToolCallsAndReturnsFinalContent(t *testing.T) {
	var dispatched []string
	spec := baseSpec()
	spec.Tools = map[string]Tool{
		"fetch_commit": {
			Definition: ToolDefinition{Name: "fetch_commit"},
			Fn: func(ctx context.Context, args map[string]any) (string, bool) {
				dispatched = append(dispatched, args["sha"].(string))
				return "diff contents", false
			},
		},
	}

	provider := &fakeProvider{responses: []Response{
		{ToolCalls: []ToolCall{{ID: "call-1", Name: "fetch_commit", Arguments: `{"sha":"abc123"}`}}, InputTokens: 10, OutputTokens: 5},
		{Content: `{"label":"security_bugfix"}`, StopReason: "stop", InputTokens: 8, OutputTokens: 20},
	}}

	c := &Controller{Provider: provider}
	result, run, err := c.Run(context.Background(), spec, "classify this event", "event", "ev-1")
	require.NoError(t, err)
	require.Equal(t, []string{"abc123"}, dispatched)
	require.Equal(t, `{"label":"security_bugfix"}`, result)
	require.Equal(t, models.AgentRunCompleted, run.Status)
	require.Equal(t, 2, run.TotalTurns)
	require.Equal(t, 1, run.TotalToolCalls)
	require.Equal(t, 18, run.InputTokens)
	require.Equal(t, 25, run.OutputTokens)
}

// TestRun_UnknownToolIsErrorResultNotPanic covers the "model's mistake, not
// the caller's" dispatch behavior.
func TestRun_UnknownToolIsErrorResultNotPanic(t *testing.T) {
	spec := baseSpec()
	spec.Tools = map[string]Tool{}

	provider := &fakeProvider{responses: []Response{
		{ToolCalls: []ToolCall{{ID: "call-1", Name: "nonexistent", Arguments: `{}`}}},
		{Content: "done", StopReason: "stop"},
	}}

	c := &Controller{Provider: provider}
	_, run, err := c.Run(context.Background(), spec, "prompt", "event", "ev-1")
	require.NoError(t, err)
	require.Equal(t, models.AgentRunCompleted, run.Status)
}

// TestRun_UrgencyMessageInjectedWithTwoTurnsRemaining checks the push
// toward a final answer as the turn budget runs out.
func TestRun_UrgencyMessageInjectedWithTwoTurnsRemaining(t *testing.T) {
	spec := baseSpec()
	spec.MaxTurns = 3
	spec.UrgencyMessage = "Please provide a final answer now."

	provider := &fakeProvider{responses: []Response{
		{Content: "still thinking", StopReason: "length"},
		{Content: "final answer", StopReason: "stop"},
	}}

	c := &Controller{Provider: provider}
	_, _, err := c.Run(context.Background(), spec, "prompt", "event", "ev-1")
	require.NoError(t, err)

	// The second call (turn index 1, remaining = MaxTurns-1 = 2) must have
	// the urgency message appended as the last message sent.
	require.Len(t, provider.seen, 2)
	last := provider.seen[1]
	require.Equal(t, spec.UrgencyMessage, last[len(last)-1].Content)
}

// TestRun_UnparseableContentMarksTimeout: turn exhaustion with
// unparseable content marks the run timeout rather than completed or
// failed.
func TestRun_UnparseableContentMarksTimeout(t *testing.T) {
	spec := baseSpec()
	spec.MaxTurns = 1
	spec.Parse = func(content string) (any, error) {
		return nil, errors.New("not valid json")
	}

	provider := &fakeProvider{responses: []Response{
		{Content: "garbage", StopReason: "stop"},
	}}

	c := &Controller{Provider: provider}
	_, run, err := c.Run(context.Background(), spec, "prompt", "event", "ev-1")
	require.NoError(t, err)
	require.Equal(t, models.AgentRunTimeout, run.Status)
	require.NotNil(t, run.Error)
}

// TestRun_ProviderErrorMarksFailedAndReturnsError: a provider error marks
// the run failed and propagates.
func TestRun_ProviderErrorMarksFailedAndReturnsError(t *testing.T) {
	spec := baseSpec()
	provider := &fakeProvider{responses: nil}

	c := &Controller{Provider: provider}
	_, run, err := c.Run(context.Background(), spec, "prompt", "event", "ev-1")
	require.Error(t, err)
	require.Equal(t, models.AgentRunFailed, run.Status)
}

// TestTruncate_AppendsNoticeBeyondLimit checks the tool-result bound.
func TestTruncate_AppendsNoticeBeyondLimit(t *testing.T) {
	short := "hello"
	require.Equal(t, short, truncate(short))

	long := make([]byte, toolResultMaxChars+100)
	for i := range long {
		long[i] = 'x'
	}
	out := truncate(string(long))
	require.Contains(t, out, "truncated")
	require.True(t, len(out) > toolResultMaxChars)
}
