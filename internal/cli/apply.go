package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danpasecinic/podfleet/internal/journal"
	"github.com/danpasecinic/podfleet/internal/manifest"
	"github.com/danpasecinic/podfleet/internal/scheduler"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrScheduleFailed is returned when at least one resource was not scheduled
var ErrScheduleFailed = errors.New("some resources failed to schedule")

var (
	applyFile string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Schedule pods and deployments",
	Long: `Schedule every pod and deployment of a manifest onto the cluster.

Each resource is removed from the nodes it currently runs on and applied to the
least loaded node. One line per resource is printed with the outcome.`,
	Example: `  podfleet apply -f app.yaml
  cat app.yaml | podfleet apply -f -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resources, err := readManifest(cmd, applyFile)
		if err != nil {
			return err
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		started := time.Now()
		snapshot, err := s.refresh(cmd.Context())
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		dispatcher := scheduler.NewDispatcher(
			s.logger,
			scheduler.WithTimeout(s.cfg.DispatchTimeout),
			scheduler.WithMetrics(scheduler.NewMetrics(reg)),
		)
		results, schedErr := scheduler.NewDefaultScheduler(dispatcher).Schedule(
			cmd.Context(), s.fleet, snapshot, resources,
		)

		_, _ = fmt.Fprint(cmd.OutOrStdout(), scheduler.FormatSummary(results))

		recordBatch(s, applyFile, started, results)

		if s.cfg.MetricsFile != "" {
			if err := prometheus.WriteToTextfile(s.cfg.MetricsFile, reg); err != nil {
				s.logger.Warn("failed to write metrics file", zap.String("path", s.cfg.MetricsFile), zap.Error(err))
			}
		}

		if schedErr != nil {
			return schedErr
		}
		if failed := scheduler.CountFailed(results); failed > 0 {
			return fmt.Errorf("%w: %d of %d", ErrScheduleFailed, failed, len(results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringVarP(&applyFile, "filename", "f", "", "manifest file to apply, or - for stdin (required)")
	_ = applyCmd.MarkFlagRequired("filename")
}

// readManifest parses the manifest at path, reading stdin for "-"
func readManifest(cmd *cobra.Command, path string) ([]types.Resource, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	resources, err := manifest.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("no resources found in %s", path)
	}
	return resources, nil
}

// recordBatch journals the results. Journal failures are logged, not returned.
func recordBatch(s *session, source string, started time.Time, results []types.ScheduleResult) {
	j, err := journal.Open(s.cfg)
	if err != nil {
		s.logger.Warn("failed to open journal", zap.Error(err))
		return
	}
	defer func() { _ = j.Close() }()

	batch := journal.NewBatch(s.cluster.Name, source, started, results)
	if err := j.Record(batch); err != nil {
		s.logger.Warn("failed to record batch", zap.String("batch", batch.ID), zap.Error(err))
		return
	}
	s.logger.Debug("batch recorded", zap.String("batch", batch.ID), zap.Int("failed", batch.Failed()))
}
