package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"sheltercore/internal/blob"
	"sheltercore/pkg/domain"
)

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func TestRunFeedsMetricsAndAudit(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	metrics := &captureMetricsRecorder{}
	audit := NewMemoryAuditLog()
	svc := NewInMemoryService(nil,
		WithMetricsRecorder(metrics),
		WithAuditLog(audit),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)
	ctx := context.Background()

	if _, _, err := svc.CreateWard(ctx, domain.Ward{Name: "North", Active: true}); err != nil {
		t.Fatalf("create ward: %v", err)
	}
	if !metrics.has("create_ward", true) {
		t.Fatalf("missing success observation: %+v", metrics.calls)
	}
	entries := audit.Entries()
	if len(entries) != 1 || entries[0].Operation != "create_ward" || entries[0].Status != AuditStatusSuccess {
		t.Fatalf("audit entries = %+v", entries)
	}
	if !entries[0].At.Equal(fixed) {
		t.Fatalf("audit timestamp = %v, want the injected clock", entries[0].At)
	}
}

func TestRunRecordsErrorOutcome(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	audit := NewMemoryAuditLog()
	svc := NewInMemoryService(nil, WithMetricsRecorder(metrics), WithAuditLog(audit))

	_, _, err := svc.Assign(context.Background(), "missing", "nobody")
	if err == nil {
		t.Fatalf("expected assign to fail")
	}
	if !metrics.has("assign", false) {
		t.Fatalf("missing failure observation: %+v", metrics.calls)
	}
	entries := audit.Entries()
	if len(entries) != 1 || entries[0].Status != AuditStatusError || entries[0].Detail == "" {
		t.Fatalf("audit entries = %+v", entries)
	}
	if entries[0].BedID != "missing" {
		t.Fatalf("bed id not carried into audit: %+v", entries[0])
	}
}

// failingRule always blocks so the audit path for rule violations can be
// exercised without corrupting state.
type failingRule struct{}

func (failingRule) Name() string { return "always_block" }

func (failingRule) Evaluate(_ context.Context, _ domain.RuleView, _ []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{
		Rule:     "always_block",
		Severity: domain.SeverityBlock,
		Message:  "blocked for testing",
	}}}, nil
}

func TestRunClassifiesRuleViolationsAsBlocked(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(failingRule{})
	audit := NewMemoryAuditLog()
	svc := NewInMemoryService(engine, WithAuditLog(audit))

	_, _, err := svc.CreateWard(context.Background(), domain.Ward{Name: "North", Active: true})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("err = %v, want RuleViolationError", err)
	}
	entries := audit.Entries()
	if len(entries) != 1 || entries[0].Status != AuditStatusBlocked {
		t.Fatalf("audit entries = %+v, want blocked", entries)
	}
}

func TestExpvarRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()
	rec.Observe(ctx, "assign", true, 20*time.Millisecond)
	rec.Observe(ctx, "assign", true, 10*time.Millisecond)
	rec.Observe(ctx, "assign", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snapshot := rec.Snapshot()
	if got := snapshot.DurationsMS["assign"]; got != 35 {
		t.Fatalf("durations = %v, want 35ms total", got)
	}
	if snapshot.Results["assign"]["success"] != 2 || snapshot.Results["assign"]["error"] != 1 {
		t.Fatalf("results = %+v", snapshot.Results)
	}
	if len(snapshot.Results) != 1 {
		t.Fatalf("empty operation must be ignored: %+v", snapshot.Results)
	}
	if rec.Name() == "" {
		t.Fatalf("expected generated expvar name")
	}
}

func findMetric(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func TestPrometheusRecorderCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("build recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "assign", true, 12*time.Millisecond)
	rec.Observe(ctx, "assign", false, 7*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counters := findMetric(t, families, "shelter_service_operations_total")
	if counters == nil || len(counters.GetMetric()) != 2 {
		t.Fatalf("operations family = %+v", counters)
	}
	latency := findMetric(t, families, "shelter_service_operation_duration_seconds")
	if latency == nil || latency.GetMetric()[0].GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("latency family = %+v", latency)
	}
}

func TestOccupancyCollectorExportsStats(t *testing.T) {
	svc := NewInMemoryService(nil)
	ctx := context.Background()
	if _, _, err := svc.CreateProject(ctx, domain.Project{Code: "ES", Title: "Shelter"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	bed, _, err := svc.CreateBed(ctx, domain.Bed{Number: "01", Status: domain.BedAvailable, Active: true})
	if err != nil {
		t.Fatalf("create bed: %v", err)
	}
	client, _, err := svc.CreateClient(ctx, domain.Client{FirstName: "Ada", LastName: "Cole", Active: true})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if _, _, err := svc.Assign(ctx, bed.ID, client.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewOccupancyCollector(svc)); err != nil {
		t.Fatalf("register collector: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	occupied := findMetric(t, families, "shelter_beds_occupied")
	if occupied == nil || occupied.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Fatalf("occupied gauge = %+v", occupied)
	}
	rate := findMetric(t, families, "shelter_occupancy_rate_percent")
	if rate == nil || rate.GetMetric()[0].GetGauge().GetValue() != 100 {
		t.Fatalf("rate gauge = %+v", rate)
	}
}

func TestBlobAuditArchiverWritesEntries(t *testing.T) {
	store := blob.NewMemory()
	archiver := NewBlobAuditArchiver(store, zap.NewNop())
	ctx := context.Background()

	archiver.Record(ctx, AuditEntry{
		Operation: "assign",
		BedID:     "bed-1",
		Status:    AuditStatusSuccess,
		At:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	infos, err := store.List(ctx, "audit/2026-03-01/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("archived entries = %d, want 1", len(infos))
	}
}

func TestBlobAuditArchiverToleratesStoreFailure(t *testing.T) {
	store := blob.NewMemory()
	archiver := NewBlobAuditArchiver(store, nil)
	ctx := context.Background()

	entry := AuditEntry{Operation: "assign", Status: AuditStatusSuccess, At: time.Now().UTC()}
	archiver.Record(ctx, entry)
	// Same sequence counter never repeats, but a duplicate key write must
	// still be swallowed rather than panic.
	archiver.seq.Store(0)
	archiver.Record(ctx, entry)
}
