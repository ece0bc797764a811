package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/hookguard/pkg/hookerr"
)

func newTestTelemetry(t *testing.T) *Telemetry {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Logging.Level = "disabled"
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}
	return string(body)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"disabled level", func(c *Config) { c.Logging.Level = "disabled" }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"no service", func(c *Config) { c.ServiceName = "" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"async without buffer", func(c *Config) { c.Events.EnableAsync = true; c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstrumentRecordsMetrics(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	if err := tel.Instrument(ctx, "execute", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantErr := hookerr.ErrDestinationNotAllowed
	err := tel.Instrument(ctx, "execute", func(context.Context) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected instrument to return fn's error, got %v", err)
	}

	tel.Metrics.RecordHookExecuted(ResultApproved)
	tel.Metrics.RecordPolicyRejection(string(hookerr.CodeDestinationNotAllowed))
	tel.Metrics.ObserveAllowListSize(3)

	body := scrape(t, tel.Metrics)
	for _, want := range []string{
		`hookguard_instructions_total{instruction="execute",status="ok"} 1`,
		`hookguard_instructions_total{instruction="execute",status="error"} 1`,
		`hookguard_errors_total{class="policy_violation",code="DESTINATION_NOT_ALLOWED"} 1`,
		`hookguard_hooks_executed_total{result="approved"} 1`,
		`hookguard_policy_rejections_total{code="DESTINATION_NOT_ALLOWED"} 1`,
		`hookguard_allow_list_size_count 1`,
		`hookguard_instruction_duration_seconds_count{instruction="execute"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestDisabledMetricsAreNoops(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	m.RecordHookExecuted(ResultRejected)
	m.RecordInstruction("execute", "ok", time.Millisecond)
	m.RecordError("", "")
	m.ObserveAllowListSize(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("expected disabled metrics handler to 404, got %d", rec.Code)
	}
}

func TestEventPublisherSync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, FilterByMint("mint-a"))
	ep.AddFilter(FilterByLevel(EventLevelInfo))

	_ = ep.PublishHookExecuted("mint-a", "owner", "dest", 5, 1)
	_ = ep.PublishHookExecuted("mint-b", "owner", "dest", 5, 2)
	_ = ep.PublishDescriptorInitialized("mint-a", "desc", "payer", 1)

	if len(got) != 2 {
		t.Fatalf("expected 2 events for mint-a, got %d", len(got))
	}
	if got[0].Type != EventTypeHookExecuted || got[1].Type != EventTypeDescriptorInitialized {
		t.Errorf("unexpected event order: %s, %s", got[0].Type, got[1].Type)
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Error("expected unique event ids")
	}
	if got[0].Data["transfer_count"] != uint64(1) {
		t.Errorf("expected transfer_count 1, got %v", got[0].Data["transfer_count"])
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:       true,
		EnableAsync:   true,
		BufferSize:    10,
		MaxBatchSize:  100,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}

	delivered := make(chan Event, 10)
	ep.Subscribe(func(e Event) { delivered <- e }, FilterByOwner("authority"))

	_ = ep.PublishAllowListUpdated("authority", "policy", "dest", 1)
	_ = ep.PublishAllowListUpdated("someone-else", "policy", "dest", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if len(delivered) != 1 {
		t.Fatalf("expected 1 delivered event, got %d", len(delivered))
	}
	if e := <-delivered; e.Data["size"] != 1 {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.NewComponentLogger("hook").
		WithInstruction("execute").
		WithTransfer("mint-a", "owner-a").
		Info("transfer approved")

	out := buf.String()
	for _, want := range []string{`"component":"hook"`, `"instruction":"execute"`, `"mint":"mint-a"`, `"owner":"owner-a"`, `"message":"transfer approved"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}

	buf.Reset()
	NewWriterLogger(&buf, LoggingConfig{Level: "disabled", Format: "json"}).Error("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected disabled logger to stay silent, got %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	tel := NewNop()
	ctx := tel.WithContext(context.Background())

	if FromTelemetryContext(ctx) != tel {
		t.Error("expected telemetry from context")
	}
	if FromContext(ctx) != tel.Logger {
		t.Error("expected logger from context")
	}
	if FromTelemetryContext(context.Background()) != nil {
		t.Error("expected nil telemetry for empty context")
	}

	op := StartOperation(ctx, "resolve")
	op.End(nil)
	if op.Span == nil {
		t.Error("expected a span when telemetry is present")
	}
}
