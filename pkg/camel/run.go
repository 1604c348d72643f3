package camel

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/camel/internal/config"
	"github.com/haasonsaas/camel/internal/extract"
	"github.com/haasonsaas/camel/internal/interp"
	"github.com/haasonsaas/camel/internal/parser"
	"github.com/haasonsaas/camel/internal/policy"
	"github.com/haasonsaas/camel/internal/prompts"
	"github.com/haasonsaas/camel/internal/providers"
	"github.com/haasonsaas/camel/pkg/models"
)

// redactedExecutionError replaces untrusted error text before it reaches
// the next planner prompt. Model-authored strings never echo back into a
// prompt verbatim.
const redactedExecutionError = "untrusted execution error (redacted)"

// Run executes one user turn: plan, parse, execute, repair until a final
// reply, a client tool, a policy denial, or the retry budget runs out.
func (rt *Runtime) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	runID := uuid.NewString()
	mode := policy.ParseMode(rt.cfg.Mode)
	if req.Mode != "" {
		mode = policy.ParseMode(req.Mode)
	}
	retries := rt.cfg.MaxPlanRetries
	if req.MaxPlanRetries > 0 {
		retries = req.MaxPlanRetries
		if retries > config.MaxPlanRetriesCeiling {
			retries = config.MaxPlanRetriesCeiling
		}
	}

	log := rt.log.With("run_id", runID, "mode", mode.String())
	res := &RunResult{RunID: runID}
	emit := func(ev models.RunEvent) {
		if req.OnEvent != nil {
			req.OnEvent(ev)
		}
	}
	fail := func(err *RunError) (*RunResult, error) {
		if rt.metrics != nil {
			rt.metrics.RunsTotal.WithLabelValues(mode.String(), "error").Inc()
		}
		emit(models.RunEvent{Stream: models.StreamLifecycle, Data: map[string]any{"phase": "error", "run_id": runID, "error": err.Error()}})
		return res, err
	}
	emit(models.RunEvent{Stream: models.StreamLifecycle, Data: map[string]any{"phase": "start", "run_id": runID}})

	truncated := prompts.TruncateHistory(req.History)
	if truncated != req.History {
		emit(models.RunEvent{Stream: models.StreamCompaction, Data: map[string]any{
			"original_chars": len(req.History), "kept_chars": len(truncated),
		}})
	}

	allow := parser.NewAllowSet(rt.registry.Names()...)
	system := prompts.PlannerSystem(rt.toolSummaries(), joinPrompts(rt.cfg.ExtraSystemPrompt, req.ExtraSystemPrompt))
	messages := []models.ChatMessage{{Role: "user", Content: prompts.PlannerUser(req.Prompt, req.History)}}

	extractor := extract.New(extract.Options{
		Client: rt.extractClient,
		Model:  rt.extractModel,
		Logger: log,
		OnUsage: func(u models.TokenUsage) {
			res.Usage.Add(u)
			rt.recordTokens("extraction", u)
		},
	})

	var strictDeps []string
	var lastTrusted string

	for attempt := 1; attempt <= retries; attempt++ {
		if ctx.Err() != nil {
			return fail(&RunError{Kind: ErrAborted})
		}

		// S0: plan.
		msg, err := rt.modelCall(ctx, "planner", rt.planner, &providers.Request{
			Model:     rt.plannerModel,
			System:    system,
			Messages:  messages,
			MaxTokens: prompts.PlannerMaxTokens,
		}, &res.Usage)
		if err != nil {
			if ctx.Err() != nil {
				return fail(&RunError{Kind: ErrAborted})
			}
			return fail(&RunError{Kind: ErrRetriesExhausted, Diagnostic: err.Error()})
		}
		res.LastAssistant = msg
		messages = append(messages, models.ChatMessage{Role: "assistant", Content: msg.Content})

		// S1: parse.
		prog, perr := parser.Parse(msg.Content, allow)
		if perr != nil {
			issue := models.Issue{Stage: models.StagePlan, Message: prompts.TruncateIssue(perr.Error()), Trusted: true}
			res.Issues = append(res.Issues, issue)
			lastTrusted = issue.Message
			rt.countRepair("plan")
			log.Debug("plan rejected", "attempt", attempt, "error", issue.Message)
			if attempt < retries {
				messages = append(messages, models.ChatMessage{Role: "user", Content: prompts.RepairMessage(res.Issues[len(res.Issues)-1:])})
				continue
			}
			return fail(&RunError{Kind: ErrRetriesExhausted, Diagnostic: lastTrusted})
		}

		// S2: execute.
		it := interp.New(interp.Options{
			Mode:       mode,
			Tools:      rt.registry,
			Extractor:  extractor,
			StrictDeps: strictDeps,
		})
		execErr := it.Execute(ctx, prog)
		rt.harvest(res, it, req.TraceRecorder, emit)
		strictDeps = it.StrictDeps()

		if execErr != nil {
			if ctx.Err() != nil {
				return fail(&RunError{Kind: ErrAborted})
			}
			issue := models.Issue{Stage: models.StageExecute, Trusted: execErr.Trusted}
			if execErr.Trusted {
				issue.Message = prompts.TruncateIssue(execErr.Error())
				lastTrusted = issue.Message
			} else {
				issue.Message = redactedExecutionError
			}
			res.Issues = append(res.Issues, issue)
			rt.countRepair("execute")
			log.Debug("execution failed", "attempt", attempt, "trusted", execErr.Trusted, "error", issue.Message)
			if attempt < retries {
				messages = append(messages, models.ChatMessage{Role: "user", Content: prompts.RepairMessage(res.Issues[len(res.Issues)-1:])})
				continue
			}
			return fail(&RunError{Kind: ErrRetriesExhausted, Diagnostic: lastTrusted})
		}

		// S3/S5: terminal handling per stop reason.
		switch it.Stop() {
		case interp.StopClientTool:
			rt.finish(res, emit, mode, "client_tool")
			return res, nil

		case interp.StopFinal:
			res.FinalText = it.FinalText()
			rt.finish(res, emit, mode, "final")
			return res, nil

		default:
			// StopNone and StopDenied: the program completed without a
			// final step; issue the bounded fallback reply.
			outcome := "final"
			if it.Stop() == interp.StopDenied {
				outcome = "denied"
			}
			reply, rerr := rt.modelCall(ctx, "reply", rt.planner, &providers.Request{
				Model:  rt.plannerModel,
				System: prompts.FinalReplySystem(),
				Messages: []models.ChatMessage{{
					Role:    "user",
					Content: prompts.FinalReplyUser(req.Prompt, it.AssistantTexts(), prompts.TraceSummary(res.Trace)),
				}},
				MaxTokens: prompts.FinalReplyMaxTokens,
			}, &res.Usage)
			if rerr != nil {
				if ctx.Err() != nil {
					return fail(&RunError{Kind: ErrAborted})
				}
				log.Warn("fallback reply failed", "error", rerr)
			} else {
				res.LastAssistant = reply
				res.FinalText = reply.Content
				res.AssistantTexts = append(res.AssistantTexts, reply.Content)
				emit(models.RunEvent{Stream: models.StreamAssistant, Data: map[string]any{"text": reply.Content}})
			}
			rt.finish(res, emit, mode, outcome)
			return res, nil
		}
	}

	return fail(&RunError{Kind: ErrRetriesExhausted, Diagnostic: lastTrusted})
}

// harvest folds one attempt's interpreter outputs into the result.
func (rt *Runtime) harvest(res *RunResult, it *interp.Interp, rec *TraceRecorder, emit func(models.RunEvent)) {
	for _, ev := range it.Trace() {
		res.Trace = append(res.Trace, ev)
		if rec != nil {
			if err := rec.Record(res.RunID, ev); err != nil {
				rt.log.Warn("trace recording failed", "error", err)
			}
		}
		if ev.Type == models.EventTool && ev.Tool != nil {
			rt.countTool(ev.Tool)
		}
	}
	for _, text := range it.AssistantTexts() {
		res.AssistantTexts = append(res.AssistantTexts, text)
		emit(models.RunEvent{Stream: models.StreamAssistant, Data: map[string]any{"text": text}})
	}
	res.ToolMetas = append(res.ToolMetas, it.ToolMetas()...)
	if lastErr := it.LastToolError(); lastErr != nil {
		res.LastToolError = lastErr
	}
	if call := it.ClientCall(); call != nil {
		res.ClientToolCall = call
	}
	for _, meta := range it.ToolMetas() {
		target, okT := meta.Meta["messaging_target"].(string)
		text, okX := meta.Meta["messaging_text"].(string)
		if okT && okX {
			res.DidSendViaMessagingTool = true
			res.MessagingToolSentTargets = append(res.MessagingToolSentTargets, target)
			res.MessagingToolSentTexts = append(res.MessagingToolSentTexts, text)
		}
	}
}

func (rt *Runtime) finish(res *RunResult, emit func(models.RunEvent), mode policy.Mode, outcome string) {
	if rt.metrics != nil {
		rt.metrics.RunsTotal.WithLabelValues(mode.String(), outcome).Inc()
	}
	emit(models.RunEvent{Stream: models.StreamLifecycle, Data: map[string]any{"phase": "end", "run_id": res.RunID, "outcome": outcome}})
}

// modelCall issues one bounded model call, folding usage and metrics.
func (rt *Runtime) modelCall(ctx context.Context, surface string, client providers.ModelClient, preq *providers.Request, usage *models.TokenUsage) (*models.AssistantMessage, error) {
	start := time.Now()
	msg, err := client.Complete(ctx, preq)
	if rt.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		rt.metrics.ModelRequests.WithLabelValues(surface, client.Name(), status).Inc()
		rt.metrics.ModelRequestDuration.WithLabelValues(surface, client.Name()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	usage.Add(msg.Usage)
	rt.recordTokens(surface, msg.Usage)
	return msg, nil
}

func (rt *Runtime) recordTokens(surface string, u models.TokenUsage) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.ModelTokens.WithLabelValues(surface, "input").Add(float64(u.Input))
	rt.metrics.ModelTokens.WithLabelValues(surface, "output").Add(float64(u.Output))
}

func (rt *Runtime) countRepair(stage string) {
	if rt.metrics != nil {
		rt.metrics.PlanRepairs.WithLabelValues(stage).Inc()
	}
}

func (rt *Runtime) countTool(ev *models.ToolEventPayload) {
	if rt.metrics == nil {
		return
	}
	switch {
	case ev.Blocked:
		rt.metrics.ToolExecutions.WithLabelValues(ev.Name, "blocked").Inc()
		rt.metrics.PolicyDenials.WithLabelValues(ev.Name).Inc()
	case ev.Reason != "":
		rt.metrics.ToolExecutions.WithLabelValues(ev.Name, "error").Inc()
	default:
		rt.metrics.ToolExecutions.WithLabelValues(ev.Name, "success").Inc()
	}
}

// toolSummaries renders registered tools for the planner prompt, sorted
// for a stable prompt across runs.
func (rt *Runtime) toolSummaries() []prompts.ToolSummary {
	descs := rt.registry.Descriptors()
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	out := make([]prompts.ToolSummary, 0, len(descs))
	for _, d := range descs {
		params := ""
		if d.Parameters != nil {
			if b, err := json.Marshal(d.Parameters); err == nil {
				params = string(b)
			}
		}
		out = append(out, prompts.ToolSummary{
			Name:        d.Name,
			Label:       d.Label,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return out
}

func joinPrompts(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}
