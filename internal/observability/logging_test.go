package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLoggerRedactsSecrets(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		secret string
	}{
		{"api key assignment", "loaded api_key=sk_live_abcdefghijklmnop from env", "sk_live_abcdefghijklmnop"},
		{"bearer token", "header was Bearer abcdefghijklmnop1234", "abcdefghijklmnop1234"},
		{"password", "password: hunter2hunter2", "hunter2hunter2"},
		{"openai key shape", "sk-" + strings.Repeat("a", 48), "sk-" + strings.Repeat("a", 48)},
		{"jwt", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.abc123", "eyJzdWIiOiIxIn0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewLogger(LoggerOptions{Output: &buf})
			log.Info(tt.msg)
			out := buf.String()
			if strings.Contains(out, tt.secret) {
				t.Errorf("secret leaked into log output: %s", out)
			}
			if !strings.Contains(out, "[REDACTED]") {
				t.Errorf("no redaction marker in output: %s", out)
			}
		})
	}
}

func TestLoggerRedactsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LoggerOptions{Output: &buf})
	log.Info("tool call", "args", `api_key: "abcdefghijklmnopqrst"`)
	if strings.Contains(buf.String(), "abcdefghijklmnopqrst") {
		t.Errorf("attribute secret leaked: %s", buf.String())
	}
}

func TestLoggerRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LoggerOptions{Level: "warn", Output: &buf})
	log.Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("info record emitted at warn level: %s", buf.String())
	}
	log.Warn("loud")
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("default format is not JSON: %v", err)
	}
	if record["msg"] != "loud" {
		t.Errorf("record = %v", record)
	}

	buf.Reset()
	text := NewLogger(LoggerOptions{Format: "text", Output: &buf})
	text.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text format output = %s", buf.String())
	}
}

func TestLoggerExtraPatterns(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LoggerOptions{Output: &buf, ExtraRedactPatterns: []string{`cust-[0-9]{6}`}})
	log.Info("customer cust-123456 called")
	if strings.Contains(buf.String(), "cust-123456") {
		t.Errorf("extra pattern not applied: %s", buf.String())
	}
}

func TestNewMetricsWithRegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RunsTotal.WithLabelValues("strict", "final").Inc()
	m.ModelRequests.WithLabelValues("planner", "anthropic", "success").Inc()
	m.ModelRequestDuration.WithLabelValues("planner", "anthropic").Observe(0.3)
	m.ModelTokens.WithLabelValues("extraction", "input").Add(120)
	m.ToolExecutions.WithLabelValues("send_email", "blocked").Inc()
	m.PolicyDenials.WithLabelValues("send_email").Inc()
	m.PlanRepairs.WithLabelValues("plan").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	got := map[string]bool{}
	for _, f := range families {
		got[f.GetName()] = true
	}
	for _, want := range []string{
		"camel_runs_total",
		"camel_model_requests_total",
		"camel_model_request_duration_seconds",
		"camel_model_tokens_total",
		"camel_tool_executions_total",
		"camel_policy_denials_total",
		"camel_plan_repairs_total",
	} {
		if !got[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}
