// Package reports renders read-only report results and entity graph snapshots
// into the configured object store.
package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pharmacore/internal/blob"
	"pharmacore/internal/core"
	"pharmacore/pkg/domain"
)

// Format selects the rendering of an export.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts json or csv (case insensitive); empty means json.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

func (f Format) contentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Source is the read side of the service used by the exporter.
type Source interface {
	PatientPrescriptionsInPeriod(ctx context.Context, patientID string, from, to time.Time) ([]core.PatientPrescription, error)
	PrescriptionDetailForDate(ctx context.Context, patientID string, date time.Time) ([]core.PrescriptionDetail, error)
	CompanyDrugCatalog(ctx context.Context, manufacturer string) ([]core.CatalogEntry, error)
	PharmacyStockPosition(ctx context.Context, pharmacyID int64) ([]core.StockPosition, error)
	ContractsFor(ctx context.Context, pharmacyID int64, manufacturer string) ([]domain.Contract, error)
	DoctorPatients(ctx context.Context, doctorID string) ([]core.DoctorPatient, error)
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	Verify(ctx context.Context, engine *core.RulesEngine) ([]domain.Violation, error)
}

// Request names a report, its positional arguments and the output format.
type Request struct {
	Report string
	Args   []string
	Format Format
}

// Artifact describes a stored export.
type Artifact struct {
	Key    string    `json:"key"`
	Report string    `json:"report"`
	Format Format    `json:"format"`
	Rows   int       `json:"rows"`
	Info   blob.Info `json:"info"`
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithClock overrides the time source used for object key partitions.
func WithClock(clock core.Clock) Option {
	return func(e *Exporter) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger core.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIDGenerator overrides the object key suffix generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Exporter) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// Exporter runs reports against a Source and writes them to a blob.Store.
type Exporter struct {
	source Source
	store  blob.Store
	clock  core.Clock
	logger core.Logger
	newID  func() string
}

// NewExporter wires an exporter.
func NewExporter(source Source, store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{
		source: source,
		store:  store,
		clock:  core.ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger: nopLogger{},
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reports lists the report names Export understands, sorted.
func Reports() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Usage returns the argument synopsis of a report.
func Usage(report string) (string, bool) {
	def, ok := catalog[report]
	if !ok {
		return "", false
	}
	return def.usage, true
}

// Export runs the requested report and stores its rendering under
// reports/<name>/<date>/<id>.<format>.
func (e *Exporter) Export(ctx context.Context, req Request) (Artifact, error) {
	def, ok := catalog[req.Report]
	if !ok {
		return Artifact{}, fmt.Errorf("unknown report %q (known: %s)", req.Report, strings.Join(Reports(), ", "))
	}
	if len(req.Args) != def.arity {
		return Artifact{}, fmt.Errorf("report %s expects %d argument(s): %s", req.Report, def.arity, def.usage)
	}
	format := req.Format
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCSV {
		return Artifact{}, fmt.Errorf("unsupported export format %q", format)
	}

	tbl, err := def.run(ctx, e.source, req.Args)
	if err != nil {
		return Artifact{}, fmt.Errorf("run report %s: %w", req.Report, err)
	}
	payload, err := render(format, tbl)
	if err != nil {
		return Artifact{}, fmt.Errorf("render report %s: %w", req.Report, err)
	}

	key := fmt.Sprintf("reports/%s/%s/%s.%s", req.Report, domain.FormatDate(e.clock.Now()), e.newID(), format)
	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: format.contentType(),
		Metadata: map[string]string{
			"report": req.Report,
			"args":   strings.Join(req.Args, ","),
			"rows":   strconv.Itoa(len(tbl.rows)),
		},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store report %s: %w", req.Report, err)
	}
	e.logger.Info("report exported", "report", req.Report, "key", key, "rows", len(tbl.rows), "driver", string(e.store.Driver()))
	return Artifact{Key: key, Report: req.Report, Format: format, Rows: len(tbl.rows), Info: info}, nil
}

// ExportSnapshot stores the whole entity graph as JSON under snapshots/.
func (e *Exporter) ExportSnapshot(ctx context.Context) (Artifact, error) {
	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("snapshot: %w", err)
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("encode snapshot: %w", err)
	}
	now := e.clock.Now().UTC()
	key := fmt.Sprintf("snapshots/%s-%s.json", now.Format("20060102T150405Z"), e.newID())
	rows := snapshotSize(snap)
	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: FormatJSON.contentType(),
		Metadata:    map[string]string{"entities": strconv.Itoa(rows)},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store snapshot: %w", err)
	}
	e.logger.Info("snapshot exported", "key", key, "entities", rows)
	return Artifact{Key: key, Report: "snapshot", Format: FormatJSON, Rows: rows, Info: info}, nil
}

func snapshotSize(s domain.Snapshot) int {
	return len(s.Doctors) + len(s.Patients) + len(s.Manufacturers) + len(s.Pharmacies) +
		len(s.Drugs) + len(s.Contracts) + len(s.Inventory) + len(s.Prescriptions) + len(s.PrescriptionLines)
}

// table is the tabular form shared by both renderings. data is what the JSON
// rendering encodes.
type table struct {
	columns []string
	rows    [][]string
	data    any
}

func render(format Format, tbl table) ([]byte, error) {
	if format == FormatJSON {
		return json.MarshalIndent(tbl.data, "", "  ")
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(tbl.columns); err != nil {
		return nil, err
	}
	if err := w.WriteAll(tbl.rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
