package core

import (
	"context"
	"time"

	"pharmacore/internal/infra/persistence/memory"
	"pharmacore/pkg/domain"
)

// Service is the integrity-enforcing mutation layer. Every mutation runs as a
// single store transaction: arguments are validated first, then references,
// keys and guards, and only then are rows written.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
}

// WithClock overrides the clock used for audit timestamps.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		store:   store,
		clock:   options.clock,
		logger:  options.logger,
		audit:   options.audit,
		metrics: options.metrics,
		tracer:  options.tracer,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects NewDefaultRulesEngine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

// operations maps audited operation names to the entity and action they touch.
var operations = map[string]operationMeta{
	"create_doctor":            {domain.EntityDoctor, domain.ActionCreate},
	"update_doctor":            {domain.EntityDoctor, domain.ActionUpdate},
	"delete_doctor":            {domain.EntityDoctor, domain.ActionDelete},
	"create_patient":           {domain.EntityPatient, domain.ActionCreate},
	"update_patient":           {domain.EntityPatient, domain.ActionUpdate},
	"delete_patient":           {domain.EntityPatient, domain.ActionDelete},
	"create_manufacturer":      {domain.EntityManufacturer, domain.ActionCreate},
	"update_manufacturer":      {domain.EntityManufacturer, domain.ActionUpdate},
	"rename_manufacturer":      {domain.EntityManufacturer, domain.ActionUpdate},
	"delete_manufacturer":      {domain.EntityManufacturer, domain.ActionDelete},
	"create_drug":              {domain.EntityDrug, domain.ActionCreate},
	"update_drug":              {domain.EntityDrug, domain.ActionUpdate},
	"delete_drug":              {domain.EntityDrug, domain.ActionDelete},
	"create_pharmacy":          {domain.EntityPharmacy, domain.ActionCreate},
	"update_pharmacy":          {domain.EntityPharmacy, domain.ActionUpdate},
	"delete_pharmacy":          {domain.EntityPharmacy, domain.ActionDelete},
	"create_contract":          {domain.EntityContract, domain.ActionCreate},
	"update_contract":          {domain.EntityContract, domain.ActionUpdate},
	"delete_contract":          {domain.EntityContract, domain.ActionDelete},
	"assign_inventory":         {domain.EntityInventory, domain.ActionUpdate},
	"remove_inventory":         {domain.EntityInventory, domain.ActionDelete},
	"add_prescription":         {domain.EntityPrescription, domain.ActionCreate},
	"update_prescription":      {domain.EntityPrescription, domain.ActionUpdate},
	"delete_prescription":      {domain.EntityPrescription, domain.ActionDelete},
	"add_prescription_line":    {domain.EntityPrescriptionLine, domain.ActionUpdate},
	"remove_prescription_line": {domain.EntityPrescriptionLine, domain.ActionDelete},
}

// run executes fn in one store transaction and reports the outcome to the
// tracer, metrics, logger and audit sinks. fn returns the key of the record it
// acted on; it may return the key alongside an error.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	var key string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var fnErr error
		key, fnErr = fn(tx)
		return fnErr
	})
	duration := time.Since(started)
	s.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)

	if err != nil {
		s.logger.Error("operation failed", "operation", op, "key", key, "kind", string(domain.KindOf(err)), "error", err)
		s.recordAudit(ctx, AuditEntry{Operation: op, EntityID: key, Status: AuditStatusError, Error: err.Error(), ErrorKind: domain.KindOf(err), Duration: duration, Violations: res.Violations})
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "entity", string(v.Entity), "entity_id", v.EntityID, "message", v.Message)
	}
	s.logger.Debug("operation committed", "operation", op, "key", key, "duration", duration)
	s.recordAudit(ctx, AuditEntry{Operation: op, EntityID: key, Status: AuditStatusSuccess, Duration: duration, Violations: res.Violations})
	return res, nil
}

// view runs a read-only operation with tracing and metrics.
func (s *Service) view(ctx context.Context, op string, fn func(view TransactionView) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := s.store.View(ctx, fn)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	span.End(err)
	if err != nil {
		s.logger.Warn("read failed", "operation", op, "error", err)
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, entry AuditEntry) {
	meta, ok := operations[entry.Operation]
	if !ok {
		return
	}
	entry.Entity = meta.entity
	entry.Action = meta.action
	entry.Timestamp = s.clock.Now()
	s.audit.Record(ctx, entry)
}
