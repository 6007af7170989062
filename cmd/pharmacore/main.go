// Command pharmacore is the operations tool for a pharmacore store: it prints
// and applies the schema, verifies the stored graph and exports reports and
// snapshots to the object store. It never mutates entities.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pharmacore/internal/adapters/reports"
	"pharmacore/internal/blob"
	"pharmacore/internal/config"
	"pharmacore/internal/core"
	"pharmacore/internal/entitymodel"
	"pharmacore/internal/entitymodel/sqlbundle"
	"pharmacore/pkg/domain"
)

var exitFunc = os.Exit

// errBlocking marks a verify run that found blocking violations.
var errBlocking = errors.New("blocking violations found")

func main() {
	exitFunc(cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "pharmacore: %v\n", err)
		if errors.Is(err, errBlocking) {
			return 3
		}
		return 1
	}
	return 0
}

// app carries what the subcommands share once configuration is loaded.
type app struct {
	configPath  string
	dumpMetrics bool

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "pharmacore",
		Short:         "Operations tool for the pharmacore integrity layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "yaml config file (default ./pharmacore.yaml when present)")
	root.PersistentFlags().BoolVar(&a.dumpMetrics, "metrics", false, "print collected Prometheus metrics to stderr on exit")

	root.AddCommand(schemaCmd(), migrateCmd(a), verifyCmd(a), exportCmd(a), snapshotCmd(a))
	return root
}

func schemaCmd() *cobra.Command {
	var driver string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the embedded DDL for a SQL dialect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ddl, err := sqlbundle.ForDialect(driver)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ddl)
			return err
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "sqlite", "sqlite or postgres")
	return cmd
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open the configured store, applying the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd, func(_ *core.Service) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s) version %s\n", a.cfg.StorageDriver, entitymodel.Version())
				return err
			})
		},
	}
}

func verifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every stored row against the integrity rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd, func(svc *core.Service) error {
				found, err := svc.Verify(cmd.Context(), nil)
				if err != nil {
					return err
				}
				blocking, err := printViolations(cmd.OutOrStdout(), found)
				if err != nil {
					return err
				}
				if blocking > 0 {
					return fmt.Errorf("%d of %d finding(s): %w", blocking, len(found), errBlocking)
				}
				return nil
			})
		},
	}
}

func exportCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <report> [args...]",
		Short: "Render a report into the object store and print its key",
		Long:  "Reports:\n" + reportHelp(),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := reports.ParseFormat(format)
			if err != nil {
				return err
			}
			return a.withExporter(cmd, func(exp *reports.Exporter) error {
				art, err := exp.Export(cmd.Context(), reports.Request{Report: args[0], Args: args[1:], Format: f})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), art.Key)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or csv")
	return cmd
}

func snapshotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Write the whole entity graph as JSON into the object store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withExporter(cmd, func(exp *reports.Exporter) error {
				art, err := exp.ExportSnapshot(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), art.Key)
				return err
			})
		},
	}
}

func reportHelp() string {
	var out string
	for _, name := range reports.Reports() {
		usage, _ := reports.Usage(name)
		out += fmt.Sprintf("  %-20s %s\n", name, usage)
	}
	return out
}

func (a *app) load() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.registry = cfg, logger, prometheus.NewRegistry()
	return nil
}

// withService loads configuration, opens the store and runs fn with a fully
// instrumented service.
func (a *app) withService(cmd *cobra.Command, fn func(*core.Service) error) (err error) {
	if err := a.load(); err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	metrics, err := core.NewPrometheusMetricsRecorder(a.cfg.MetricsNamespace, a.registry)
	if err != nil {
		return err
	}
	store, err := core.OpenPersistentStore(a.cfg.Storage(), nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	a.logger.Debug("store opened", zap.String("driver", a.cfg.StorageDriver))

	svc := core.NewService(store,
		core.WithLogger(core.NewZapLogger(a.logger)),
		core.WithAuditRecorder(core.NewLogAuditRecorder(a.logger)),
		core.WithMetricsRecorder(metrics),
		core.WithTracer(core.NewOTelTracer(nil)),
	)
	err = fn(svc)
	if a.dumpMetrics {
		if derr := writeMetrics(cmd.ErrOrStderr(), a.registry); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}

func (a *app) withExporter(cmd *cobra.Command, fn func(*reports.Exporter) error) error {
	return a.withService(cmd, func(svc *core.Service) error {
		store, err := blob.Open(cmd.Context(), a.cfg.Blob())
		if err != nil {
			return fmt.Errorf("open object store: %w", err)
		}
		return fn(reports.NewExporter(svc, store, reports.WithLogger(core.NewZapLogger(a.logger))))
	})
}

// printViolations writes one line per finding and returns how many block.
func printViolations(w io.Writer, found []domain.Violation) (int, error) {
	if len(found) == 0 {
		_, err := fmt.Fprintln(w, "no violations")
		return 0, err
	}
	blocking := 0
	for _, v := range found {
		if v.Severity == domain.SeverityBlock {
			blocking++
		}
		if _, err := fmt.Fprintf(w, "%-5s %-22s %s %s: %s\n", v.Severity, v.Rule, v.Entity, v.EntityID, v.Message); err != nil {
			return blocking, err
		}
	}
	return blocking, nil
}

func writeMetrics(w io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}
