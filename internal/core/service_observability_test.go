package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pharmacore/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureLogger struct {
	records []string
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.records = append(l.records, "debug:"+msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.records = append(l.records, "info:"+msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.records = append(l.records, "warn:"+msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.records = append(l.records, "error:"+msg) }

func (l *captureLogger) has(record string) bool {
	for _, r := range l.records {
		if r == record {
			return true
		}
	}
	return false
}

func TestServiceObservesEveryOperation(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 10, 1, 8, 30, 0, 0, time.UTC)
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}
	svc := NewInMemoryService(nil,
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	mustAddDoctor(t, svc, doctorA, "Dr. Adams")
	mustAddPatient(t, svc, patient1, "Ann", doctorA)
	_, err := svc.DeletePatient(ctx, patient1)
	expectKind(t, err, domain.KindIntegrityViolation)

	if !audit.has("create_doctor", AuditStatusSuccess, func(e AuditEntry) bool {
		return e.Entity == domain.EntityDoctor && e.Action == domain.ActionCreate && e.EntityID == doctorA && e.Timestamp.Equal(fixed)
	}) {
		t.Fatalf("missing create_doctor audit entry: %+v", audit.entries)
	}
	if !audit.has("delete_patient", AuditStatusError, func(e AuditEntry) bool {
		return e.ErrorKind == domain.KindIntegrityViolation && e.EntityID == patient1 && e.Error != ""
	}) {
		t.Fatalf("missing delete_patient error entry: %+v", audit.entries)
	}
	if !metrics.has("create_patient", true) || !metrics.has("delete_patient", false) {
		t.Fatalf("unexpected metrics calls: %+v", metrics.calls)
	}
	if len(tracer.started) != 3 || len(tracer.ended) != 3 || tracer.ended[2].err == nil {
		t.Fatalf("unexpected spans: started=%v ended=%+v", tracer.started, tracer.ended)
	}
	if !logger.has("debug:operation committed") || !logger.has("error:operation failed") {
		t.Fatalf("unexpected log records: %v", logger.records)
	}
}

func TestValidationFailuresSkipTheStore(t *testing.T) {
	audit := &captureAuditRecorder{}
	tracer := &captureTracer{}
	svc := NewInMemoryService(nil, WithAuditRecorder(audit), WithTracer(tracer))

	_, _, err := svc.AddDoctor(context.Background(), domain.Doctor{NationalID: "1"})
	expectKind(t, err, domain.KindInvalidArgument)
	if len(audit.entries) != 0 || len(tracer.started) != 0 {
		t.Fatalf("argument errors should not open a transaction: %+v %v", audit.entries, tracer.started)
	}
}

func TestFailedContractReferenceIsAuditedWithKey(t *testing.T) {
	audit := &captureAuditRecorder{}
	svc := NewInMemoryService(nil, WithAuditRecorder(audit))
	pharmacy := mustAddPharmacy(t, svc, "Central")

	_, _, err := svc.AddContract(context.Background(), domain.Contract{
		PharmacyID:   pharmacy.ID,
		Manufacturer: "Nobody",
		StartDate:    day(2024, 1, 1),
		EndDate:      day(2024, 2, 1),
	})
	expectKind(t, err, domain.KindNotFound)
	if !audit.has("create_contract", AuditStatusError, func(e AuditEntry) bool { return e.EntityID == "Nobody" }) {
		t.Fatalf("expected failure audited under the manufacturer key: %+v", audit.entries)
	}
}

func TestWarningsReachLoggerAndAudit(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	logger := &captureLogger{}
	svc := NewInMemoryService(nil, WithAuditRecorder(audit), WithLogger(logger))
	mustAddManufacturer(t, svc, "M")
	x := mustAddDrug(t, svc, "X", "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")

	if _, _, err := svc.AssignInventory(ctx, domain.InventoryItem{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: 1, Stock: 0}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !logger.has("warn:rule violation") {
		t.Fatalf("expected warning log, got %v", logger.records)
	}
	if !audit.has("assign_inventory", AuditStatusSuccess, func(e AuditEntry) bool { return len(e.Violations) == 1 }) {
		t.Fatalf("expected warning on audit entry: %+v", audit.entries)
	}
}

func TestRecordAuditFillsOperationMetadata(t *testing.T) {
	fixed := time.Date(2024, 10, 1, 8, 30, 0, 0, time.UTC)
	recorder := &captureAuditRecorder{}
	svc := NewInMemoryService(nil,
		WithAuditRecorder(recorder),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	svc.recordAudit(context.Background(), AuditEntry{Operation: "rename_manufacturer", EntityID: "Acme", Status: AuditStatusSuccess, Duration: 42 * time.Millisecond})
	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Entity != domain.EntityManufacturer || entry.Action != domain.ActionUpdate {
		t.Fatalf("unexpected metadata: %+v", entry)
	}
	if entry.Duration != 42*time.Millisecond || !entry.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected timing: %+v", entry)
	}

	svc.recordAudit(context.Background(), AuditEntry{Operation: "unknown_operation", EntityID: "x", Status: AuditStatusSuccess, Duration: time.Millisecond})
	if len(recorder.entries) != 1 {
		t.Fatalf("expected unknown operation to be ignored")
	}
}

func TestEveryMutationHasAuditMetadata(t *testing.T) {
	for op, meta := range operations {
		if meta.entity == "" || meta.action == "" {
			t.Fatalf("operation %s lacks metadata", op)
		}
	}
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	svc := NewInMemoryService(nil, WithLogger(nil), WithClock(nil), WithAuditRecorder(nil), WithMetricsRecorder(nil), WithTracer(nil))
	if _, ok := svc.logger.(noopLogger); !ok {
		t.Fatalf("expected noop logger, got %T", svc.logger)
	}
	if _, ok := svc.tracer.(noopTracer); !ok {
		t.Fatalf("expected noop tracer, got %T", svc.tracer)
	}
	if svc.clock.Now().Location() != time.UTC {
		t.Fatalf("expected UTC default clock")
	}
	mustAddDoctor(t, svc, doctorA, "Dr. Adams")
}

func TestZapLoggerWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc := NewInMemoryService(nil, WithLogger(NewZapLogger(zap.New(core))))
	mustAddDoctor(t, svc, doctorA, "Dr. Adams")
	_, err := svc.DeleteDoctor(context.Background(), doctorB)
	expectKind(t, err, domain.KindNotFound)

	committed := logs.FilterMessage("operation committed").All()
	if len(committed) != 1 || committed[0].ContextMap()["operation"] != "create_doctor" {
		t.Fatalf("unexpected committed logs: %+v", committed)
	}
	failed := logs.FilterMessage("operation failed").All()
	if len(failed) != 1 || failed[0].Level != zapcore.ErrorLevel || failed[0].ContextMap()["kind"] != string(domain.KindNotFound) {
		t.Fatalf("unexpected failure logs: %+v", failed)
	}

	NewZapLogger(nil).Info("discarded")
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder("pharmacore", reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := NewInMemoryService(nil, WithMetricsRecorder(rec))
	mustAddManufacturer(t, svc, "M")
	_, _, err = svc.AddManufacturer(context.Background(), domain.Manufacturer{Name: "M"})
	expectKind(t, err, domain.KindDuplicateKey)
	rec.Observe(context.Background(), "", true, time.Second)

	if got := promtest.ToFloat64(rec.operations.WithLabelValues("create_manufacturer", "success")); got != 1 {
		t.Fatalf("expected one success, got %v", got)
	}
	if got := promtest.ToFloat64(rec.operations.WithLabelValues("create_manufacturer", "error")); got != 1 {
		t.Fatalf("expected one error, got %v", got)
	}
	if n := promtest.CollectAndCount(rec.durations); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}

	if _, err := NewPrometheusMetricsRecorder("pharmacore", reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestOTelTracerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	svc := NewInMemoryService(nil, WithTracer(NewOTelTracer(provider)))
	mustAddManufacturer(t, svc, "M")
	_, err := svc.DeleteManufacturer(context.Background(), "Missing")
	expectKind(t, err, domain.KindNotFound)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected two spans, got %d", len(spans))
	}
	if spans[0].Name() != "create_manufacturer" || spans[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected first span: %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "delete_manufacturer" || spans[1].Status().Code != codes.Error {
		t.Fatalf("unexpected second span: %s %v", spans[1].Name(), spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Fatalf("expected the error to be recorded as an event")
	}
}

func TestLogAuditRecorder(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	recorder := NewLogAuditRecorder(zap.New(core))
	recorder.newID = func() string { return "fixed-id" }

	recorder.Record(context.Background(), AuditEntry{Operation: "create_doctor", Status: AuditStatusSuccess, EntityID: doctorA})
	recorder.Record(context.Background(), AuditEntry{Operation: "delete_doctor", Status: AuditStatusError, Error: "boom", ErrorKind: domain.KindInternal})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two audit records, got %d", len(entries))
	}
	if entries[0].LoggerName != "audit" || entries[0].ContextMap()["audit_id"] != "fixed-id" {
		t.Fatalf("unexpected success record: %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["error"] != "boom" {
		t.Fatalf("unexpected error record: %+v", entries[1])
	}
}
