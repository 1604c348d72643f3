// Package camel is the public surface of the runtime: a planner/executor
// loop that turns a natural-language request into a small sandboxed
// program, executes it under capability tracking, and gates every
// side-effecting tool call behind the policy engine.
package camel

import (
	"fmt"
	"log/slog"

	"github.com/haasonsaas/camel/internal/config"
	"github.com/haasonsaas/camel/internal/observability"
	"github.com/haasonsaas/camel/internal/providers"
	"github.com/haasonsaas/camel/internal/tools"
	"github.com/haasonsaas/camel/pkg/models"
)

// Options configures a Runtime.
type Options struct {
	// Planner writes programs. Required.
	Planner providers.ModelClient

	// PlannerModel is the model identifier passed to the planner client.
	PlannerModel string

	// Extractor runs quarantined extraction calls. Defaults to Planner.
	Extractor providers.ModelClient

	// ExtractorModel defaults to PlannerModel.
	ExtractorModel string

	// Tools is the tool registry. A nil registry means no tools beyond
	// the virtual ones.
	Tools *tools.Registry

	// Config carries mode, retry bounds, and the extra system prompt.
	// Nil uses defaults (strict mode, 10 retries).
	Config *config.Config

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics is optional; nil disables metric recording.
	Metrics *observability.Metrics
}

// Runtime is a long-lived handle shared by concurrent runs. Each run owns
// its environment and trace; the runtime itself is read-only after New.
type Runtime struct {
	planner        providers.ModelClient
	plannerModel   string
	extractClient  providers.ModelClient
	extractModel   string
	registry       *tools.Registry
	cfg            *config.Config
	log            *slog.Logger
	metrics        *observability.Metrics
}

// New creates a Runtime.
func New(opts Options) (*Runtime, error) {
	if opts.Planner == nil {
		return nil, fmt.Errorf("camel: a planner model client is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("camel: %w", err)
	}

	extractClient := opts.Extractor
	if extractClient == nil {
		extractClient = opts.Planner
	}
	extractModel := opts.ExtractorModel
	if extractModel == "" {
		extractModel = opts.PlannerModel
	}
	registry := opts.Tools
	if registry == nil {
		registry = tools.NewRegistry()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Runtime{
		planner:       opts.Planner,
		plannerModel:  opts.PlannerModel,
		extractClient: extractClient,
		extractModel:  extractModel,
		registry:      registry,
		cfg:           cfg,
		log:           log,
		metrics:       opts.Metrics,
	}, nil
}

// RunRequest describes one user turn.
type RunRequest struct {
	// Prompt is the user's request. Required.
	Prompt string

	// History is the prior conversation, free-form. Long histories are
	// truncated before reaching the planner.
	History string

	// Mode overrides the configured evaluation mode for this run:
	// "normal" or "strict". Empty uses the configuration.
	Mode string

	// MaxPlanRetries overrides the configured retry budget, clamped to
	// [1, 10]. Zero uses the configuration.
	MaxPlanRetries int

	// ExtraSystemPrompt appends to the planner system prompt for this
	// run, after any configured extra prompt.
	ExtraSystemPrompt string

	// OnEvent receives lifecycle, tool, assistant, and compaction events.
	OnEvent models.EventSink

	// TraceRecorder persists execution events as they are recorded.
	TraceRecorder *TraceRecorder
}

// RunResult is the outcome of one run.
type RunResult struct {
	// RunID identifies the run in logs and traces.
	RunID string

	// AssistantTexts are the ordered texts emitted by print steps, final
	// steps, policy denials, and the fallback reply.
	AssistantTexts []string

	// FinalText is the rendered final reply, empty when the run stopped
	// for a client tool.
	FinalText string

	// LastAssistant is the last model message of the run.
	LastAssistant *models.AssistantMessage

	// ToolMetas holds one entry per executed tool invocation.
	ToolMetas []models.ToolMeta

	// LastToolError describes the last failed or denied tool call.
	LastToolError *models.ToolErrorInfo

	// DidSendViaMessagingTool reports whether a messaging-send tool
	// delivered text out-of-band during the run.
	DidSendViaMessagingTool bool

	// MessagingToolSentTexts and MessagingToolSentTargets list what the
	// messaging sends delivered, in call order.
	MessagingToolSentTexts   []string
	MessagingToolSentTargets []string

	// ClientToolCall is set when the run stopped for a client-owned tool.
	ClientToolCall *models.ClientToolCall

	// Usage aggregates token usage across every model call of the run.
	Usage models.TokenUsage

	// Trace is the full execution trace across all attempts.
	Trace []models.ExecutionEvent

	// Issues are the diagnostics accumulated across attempts.
	Issues []models.Issue
}
