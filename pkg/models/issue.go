package models

// IssueStage identifies which phase of a run produced an issue.
type IssueStage string

const (
	// StagePlan covers planner output problems: syntax errors, unknown
	// tools, malformed structured steps.
	StagePlan IssueStage = "plan"

	// StageExecute covers interpreter failures: unknown variables, bad
	// indexes, schema coercion failures, step budget overruns.
	StageExecute IssueStage = "execute"
)

// Issue is a diagnostic accumulated across plan/execute attempts. Issues
// feed the repair prompt for the next planner attempt.
type Issue struct {
	// Stage is the phase that produced the issue.
	Stage IssueStage `json:"stage"`

	// Message is the diagnostic text, truncated to 400 characters.
	// For trusted issues it includes the 1-based line/column when known.
	Message string `json:"message"`

	// Trusted is true when the diagnostic was produced by the parser or
	// interpreter itself. Untrusted issues (text authored by the model,
	// e.g. a raised error value) are redacted before reaching the next
	// planner prompt.
	Trusted bool `json:"trusted"`
}
