package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geobatch/internal/geocoding"
	"github.com/sells-group/geobatch/internal/input"
	"github.com/sells-group/geobatch/internal/jobs"
	"github.com/sells-group/geobatch/internal/output"
)

var (
	runInput       string
	runOutput      string
	runColumns     []string
	runSheet       string
	runDelimiter   string
	runLatColumn   string
	runLonColumn   string
	runSavePartial bool
	runNoProgress  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Geocode one address file",
	Long:  "Reads addresses from a CSV or XLSX file, geocodes them in order and writes the matches as CSV or GeoJSON. Ctrl-C stops the run after the current record.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initGeoEnv(ctx, cfg, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := input.Options{Columns: runColumns, SheetName: runSheet}
		if runDelimiter != "" {
			opts.Delimiter = []rune(runDelimiter)[0]
		}
		batch, err := input.ReadFile(runInput, opts)
		if err != nil {
			return err
		}

		sink := &fileSink{path: runOutput, header: batch.Header}
		mgr := jobs.NewManager(env.Engine, append(env.ManagerOptions(cfg), jobs.WithResultSink(sink))...)

		id, err := mgr.Start(ctx, jobs.Params{
			Records: batch.Records,
			Destination: jobs.Destination{
				Table:        runOutput,
				MatchColumns: batch.Header,
				LatColumn:    runLatColumn,
				LonColumn:    runLonColumn,
			},
			SaveOnErrorOrInterrupt: runSavePartial,
		})
		if err != nil {
			return err
		}

		report, err := awaitWithProgress(ctx, mgr, id, len(batch.Records), !runNoProgress && isatty.IsTerminal(os.Stderr.Fd()))
		if report == nil {
			return eris.Wrap(err, "run")
		}

		fmt.Fprintln(os.Stderr, report.Summary())
		if err != nil {
			return err
		}
		switch report.Status {
		case geocoding.StatusAborted:
			return eris.Errorf("run aborted: %s", report.Message)
		case geocoding.StatusInterrupted:
			zap.L().Warn("run interrupted", zap.String("job_id", id), zap.Int("rows", len(report.Rows)))
		}
		return nil
	},
}

// awaitWithProgress waits for the job while drawing a progress bar fed from
// its tracker snapshots.
func awaitWithProgress(ctx context.Context, mgr *jobs.Manager, id string, total int, showBar bool) (*geocoding.Report, error) {
	var bar *progressbar.ProgressBar
	if showBar {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Geocoding"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	// The job observes ctx itself, so waiting uses a context that outlives it.
	waitCtx := context.WithoutCancel(ctx)
	done := make(chan struct{})
	var report *geocoding.Report
	var awaitErr error

	g, gctx := errgroup.WithContext(waitCtx)
	g.Go(func() error {
		defer close(done)
		report, awaitErr = mgr.Await(gctx, id)
		return nil
	})
	g.Go(func() error {
		if bar == nil {
			return nil
		}
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				_ = bar.Finish()
				return nil
			case <-ticker.C:
				if p, err := mgr.Progress(id); err == nil {
					_ = bar.Set(p.Processed + p.Errors)
				}
			}
		}
	})
	_ = g.Wait()
	return report, awaitErr
}

// fileSink writes job rows to a CSV or GeoJSON file.
type fileSink struct {
	path   string
	header []string
}

func (s *fileSink) SaveResults(_ context.Context, jobID string, dest jobs.Destination, rows []geocoding.GeocodedRow) error {
	if s.path == "" {
		return output.WriteCSV(os.Stdout, s.header, rows, output.Columns{Lat: dest.LatColumn, Lon: dest.LonColumn})
	}
	zap.L().Info("writing results", zap.String("job_id", jobID), zap.String("path", s.path), zap.Int("rows", len(rows)))
	return output.WriteFile(s.path, s.header, rows, output.Columns{Lat: dest.LatColumn, Lon: dest.LonColumn})
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "CSV or XLSX file with a header row")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output file (.csv or .geojson); stdout when empty")
	runCmd.Flags().StringSliceVarP(&runColumns, "columns", "c", nil, "header columns forming the address, in order (default: all)")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	runCmd.Flags().StringVar(&runDelimiter, "delimiter", "", "CSV delimiter (default ',')")
	runCmd.Flags().StringVar(&runLatColumn, "lat-column", jobs.DefaultLatColumn, "name of the latitude output column")
	runCmd.Flags().StringVar(&runLonColumn, "lon-column", jobs.DefaultLonColumn, "name of the longitude output column")
	runCmd.Flags().BoolVar(&runSavePartial, "save-partial", true, "write rows of an interrupted or aborted run")
	runCmd.Flags().BoolVar(&runNoProgress, "no-progress", false, "disable the progress bar")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
