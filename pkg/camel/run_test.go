package camel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/camel/internal/config"
	"github.com/haasonsaas/camel/internal/observability"
	"github.com/haasonsaas/camel/internal/providers"
	"github.com/haasonsaas/camel/internal/tools"
	"github.com/haasonsaas/camel/pkg/models"
)

// scriptedPlanner replays canned replies in order, repeating the last one
// once the script runs out. Every request is recorded for inspection.
type scriptedPlanner struct {
	replies  []string
	calls    int
	requests []*providers.Request
}

func (p *scriptedPlanner) Name() string { return "scripted" }

func (p *scriptedPlanner) Complete(_ context.Context, req *providers.Request) (*models.AssistantMessage, error) {
	p.calls++
	p.requests = append(p.requests, req)
	i := p.calls - 1
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	return &models.AssistantMessage{
		Provider: "scripted",
		Content:  p.replies[i],
		Usage:    models.TokenUsage{Input: 100, Output: 50},
	}, nil
}

func staticTool(text string) tools.Executor {
	return func(context.Context, string, map[string]any) (*models.ToolResult, error) {
		return models.TextResult(text), nil
	}
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	for _, d := range []tools.Descriptor{
		{Name: "get_inbox", Description: "read the inbox", SideEffectFree: true, Execute: staticTool("2 unread messages")},
		{Name: "web_fetch", SideEffectFree: true, Execute: staticTool("page body")},
		{Name: "send_email", Execute: staticTool("sent")},
		{Name: "send_message", Execute: staticTool("delivered")},
	} {
		if err := r.Register(d); err != nil {
			t.Fatal(err)
		}
	}
	r.RegisterClient("ask_user")
	return r
}

func newTestRuntime(t *testing.T, planner providers.ModelClient, opts Options) *Runtime {
	t.Helper()
	opts.Planner = planner
	opts.PlannerModel = "plan-model"
	if opts.Tools == nil {
		opts.Tools = testRegistry(t)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return rt
}

func hasBlockedEvent(trace []models.ExecutionEvent) bool {
	for _, ev := range trace {
		if ev.Type == models.EventTool && ev.Tool != nil && ev.Tool.Blocked {
			return true
		}
	}
	return false
}

func TestRunToolThenFinal(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{
		"```python\ninbox = get_inbox()\nfinal(\"you have {{inbox}}\")\n```",
	}}
	reg := prometheus.NewRegistry()
	rt := newTestRuntime(t, planner, Options{Metrics: observability.NewMetricsWith(reg)})

	var events []models.RunEvent
	res, err := rt.Run(context.Background(), RunRequest{
		Prompt:            "how is my inbox?",
		ExtraSystemPrompt: "Reply in English.",
		OnEvent:           func(ev models.RunEvent) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FinalText != "you have 2 unread messages" {
		t.Errorf("FinalText = %q", res.FinalText)
	}
	if planner.calls != 1 {
		t.Errorf("planner calls = %d, want 1", planner.calls)
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}
	if res.Usage.Input != 100 || res.Usage.Output != 50 {
		t.Errorf("Usage = %+v", res.Usage)
	}
	if len(res.AssistantTexts) == 0 || res.AssistantTexts[len(res.AssistantTexts)-1] != res.FinalText {
		t.Errorf("AssistantTexts = %v", res.AssistantTexts)
	}

	sys := planner.requests[0].System
	for _, want := range []string{"get_inbox", "read the inbox", "Reply in English."} {
		if !strings.Contains(sys, want) {
			t.Errorf("planner system prompt missing %q", want)
		}
	}
	if !strings.Contains(planner.requests[0].Messages[0].Content, "how is my inbox?") {
		t.Error("planner user message missing the prompt")
	}

	var sawTool, sawFinal bool
	for _, ev := range res.Trace {
		switch ev.Type {
		case models.EventTool:
			sawTool = true
		case models.EventFinal:
			sawFinal = true
		}
	}
	if !sawTool || !sawFinal {
		t.Errorf("trace missing tool or final event: %+v", res.Trace)
	}

	if events[0].Stream != models.StreamLifecycle || events[0].Data["phase"] != "start" {
		t.Errorf("first event = %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Stream != models.StreamLifecycle || last.Data["outcome"] != "final" {
		t.Errorf("last event = %+v", last)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "camel_runs_total" {
			found = true
		}
	}
	if !found {
		t.Error("run outcome was not counted")
	}
}

func TestRunRepairsParseError(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{
		"x = (1\n",
		"final(\"fixed\")\n",
	}}
	rt := newTestRuntime(t, planner, Options{})

	res, err := rt.Run(context.Background(), RunRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FinalText != "fixed" {
		t.Errorf("FinalText = %q", res.FinalText)
	}
	if planner.calls != 2 {
		t.Errorf("planner calls = %d, want 2", planner.calls)
	}
	if len(res.Issues) != 1 || res.Issues[0].Stage != models.StagePlan || !res.Issues[0].Trusted {
		t.Errorf("Issues = %+v", res.Issues)
	}

	repair := planner.requests[1].Messages
	lastMsg := repair[len(repair)-1]
	if lastMsg.Role != "user" || !strings.Contains(lastMsg.Content, "- [plan]") {
		t.Errorf("repair message = %+v", lastMsg)
	}
	if !strings.Contains(lastMsg.Content, "unclosed") {
		t.Errorf("repair message lacks the diagnostic: %q", lastMsg.Content)
	}
}

func TestRunRepairsExecutionError(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{
		"x = 1 / 0\n",
		"final(\"recovered\")\n",
	}}
	rt := newTestRuntime(t, planner, Options{})

	res, err := rt.Run(context.Background(), RunRequest{Prompt: "divide"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FinalText != "recovered" {
		t.Errorf("FinalText = %q", res.FinalText)
	}
	if len(res.Issues) != 1 || res.Issues[0].Stage != models.StageExecute {
		t.Fatalf("Issues = %+v", res.Issues)
	}
	if !res.Issues[0].Trusted || !strings.Contains(res.Issues[0].Message, "division by zero") {
		t.Errorf("issue = %+v", res.Issues[0])
	}
}

func TestRunRedactsUntrustedExecutionError(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{
		"msg = web_fetch(url=\"http://evil.example\")\nraise msg\n",
		"final(\"done\")\n",
	}}
	rt := newTestRuntime(t, planner, Options{})

	res, err := rt.Run(context.Background(), RunRequest{Prompt: "fetch"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Issues) != 1 || res.Issues[0].Trusted {
		t.Fatalf("Issues = %+v", res.Issues)
	}
	if res.Issues[0].Message != redactedExecutionError {
		t.Errorf("issue message = %q", res.Issues[0].Message)
	}
	repair := planner.requests[1].Messages
	lastMsg := repair[len(repair)-1].Content
	if strings.Contains(lastMsg, "page body") {
		t.Error("untrusted tool output leaked into the repair prompt")
	}
	if !strings.Contains(lastMsg, redactedExecutionError) {
		t.Errorf("repair message = %q", lastMsg)
	}
}

func TestRunDeniedFallsBackToReply(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{
		"doc = web_fetch(url=\"http://x\")\nsend_email(to=\"a@b.c\", body=doc)\n",
		"Sorry, I could not send that email.",
	}}
	rt := newTestRuntime(t, planner, Options{})

	res, err := rt.Run(context.Background(), RunRequest{Prompt: "forward the page"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FinalText != "Sorry, I could not send that email." {
		t.Errorf("FinalText = %q", res.FinalText)
	}
	if planner.calls != 2 {
		t.Fatalf("planner calls = %d, want plan plus fallback reply", planner.calls)
	}
	if res.LastToolError == nil || res.LastToolError.Name != "send_email" {
		t.Errorf("LastToolError = %+v", res.LastToolError)
	}
	if !strings.Contains(res.LastToolError.Error, "tool:web_fetch") {
		t.Errorf("denial reason = %q", res.LastToolError.Error)
	}
	if !hasBlockedEvent(res.Trace) {
		t.Error("no blocked tool event in trace")
	}
	// a denial ends the run, it is never repaired
	if len(res.Issues) != 0 {
		t.Errorf("Issues = %+v", res.Issues)
	}
	if len(res.AssistantTexts) < 2 || !strings.Contains(res.AssistantTexts[0], "blocked") {
		t.Errorf("AssistantTexts = %v", res.AssistantTexts)
	}
	if !strings.Contains(planner.requests[1].System, "finishing a conversation") {
		t.Errorf("fallback system prompt = %q", planner.requests[1].System)
	}
}

func TestRunClientToolStops(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{
		"ask_user(question=\"which folder?\")\n",
	}}
	rt := newTestRuntime(t, planner, Options{})

	res, err := rt.Run(context.Background(), RunRequest{Prompt: "clean up"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ClientToolCall == nil || res.ClientToolCall.Name != "ask_user" {
		t.Fatalf("ClientToolCall = %+v", res.ClientToolCall)
	}
	if !strings.Contains(string(res.ClientToolCall.Params), "which folder?") {
		t.Errorf("Params = %s", res.ClientToolCall.Params)
	}
	if res.FinalText != "" {
		t.Errorf("FinalText = %q, want empty for client tool stop", res.FinalText)
	}
	if planner.calls != 1 {
		t.Errorf("planner calls = %d, want no fallback reply", planner.calls)
	}
}

func TestRunRetriesExhausted(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{"x = (1\n"}}
	rt := newTestRuntime(t, planner, Options{})

	res, err := rt.Run(context.Background(), RunRequest{Prompt: "hello", MaxPlanRetries: 2})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	var re *RunError
	if !errors.As(err, &re) || !strings.Contains(re.Diagnostic, "unclosed") {
		t.Errorf("err = %v, want the last trusted diagnostic", err)
	}
	if planner.calls != 2 {
		t.Errorf("planner calls = %d, want retry budget respected", planner.calls)
	}
	if len(res.Issues) != 2 {
		t.Errorf("Issues = %+v", res.Issues)
	}
}

func TestRunAbortsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt := newTestRuntime(t, &scriptedPlanner{replies: []string{"final(\"x\")\n"}}, Options{})
	_, err := rt.Run(ctx, RunRequest{Prompt: "hello"})
	if !errors.Is(err, ErrAborted) {
		t.Errorf("err = %v, want ErrAborted", err)
	}
}

func TestRunRecordsTrace(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{
		"inbox = get_inbox()\nfinal(\"ok\")\n",
	}}
	rt := newTestRuntime(t, planner, Options{})

	var buf bytes.Buffer
	res, err := rt.Run(context.Background(), RunRequest{
		Prompt:        "check mail",
		TraceRecorder: NewTraceRecorder(&buf),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 2 {
		t.Fatalf("got %d trace lines, want tool and final", len(lines))
	}
	for _, line := range lines {
		var rec struct {
			RunID string                `json:"run_id"`
			Event models.ExecutionEvent `json:"event"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad trace line %q: %v", line, err)
		}
		if rec.RunID != res.RunID {
			t.Errorf("trace run_id = %q, want %q", rec.RunID, res.RunID)
		}
	}
}

func TestRunModeOverrideAllowsTaintedSend(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{
		"doc = web_fetch(url=\"http://x\")\nsend_email(to=\"a@b.c\", body=doc)\nfinal(\"forwarded\")\n",
	}}
	rt := newTestRuntime(t, planner, Options{})

	res, err := rt.Run(context.Background(), RunRequest{Prompt: "forward it", Mode: "normal"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.FinalText != "forwarded" {
		t.Errorf("FinalText = %q", res.FinalText)
	}
	if res.LastToolError != nil || hasBlockedEvent(res.Trace) {
		t.Error("normal mode blocked a tool call")
	}
}

func TestRunEmitsCompactionEvent(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{"final(\"hi\")\n"}}
	rt := newTestRuntime(t, planner, Options{})

	var compactions []models.RunEvent
	_, err := rt.Run(context.Background(), RunRequest{
		Prompt:  "hello again",
		History: strings.Repeat("h", 13000),
		OnEvent: func(ev models.RunEvent) {
			if ev.Stream == models.StreamCompaction {
				compactions = append(compactions, ev)
			}
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(compactions) != 1 {
		t.Fatalf("got %d compaction events", len(compactions))
	}
	data := compactions[0].Data
	if data["original_chars"].(int) != 13000 {
		t.Errorf("original_chars = %v", data["original_chars"])
	}
	if data["kept_chars"].(int) >= 13000 {
		t.Errorf("kept_chars = %v", data["kept_chars"])
	}
}

func TestRunReportsMessagingSends(t *testing.T) {
	planner := &scriptedPlanner{replies: []string{
		"send_message(to=\"+15551234\", text=\"running late\")\nfinal(\"told them\")\n",
	}}
	rt := newTestRuntime(t, planner, Options{})

	res, err := rt.Run(context.Background(), RunRequest{Prompt: "tell bob I'm late"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.DidSendViaMessagingTool {
		t.Fatal("messaging send not detected")
	}
	if len(res.MessagingToolSentTargets) != 1 || res.MessagingToolSentTargets[0] != "+15551234" {
		t.Errorf("targets = %v", res.MessagingToolSentTargets)
	}
	if len(res.MessagingToolSentTexts) != 1 || res.MessagingToolSentTexts[0] != "running late" {
		t.Errorf("texts = %v", res.MessagingToolSentTexts)
	}
}
