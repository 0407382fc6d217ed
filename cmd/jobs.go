package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geobatch/internal/geocoding"
	"github.com/sells-group/geobatch/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect geocoding job history",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List finished jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := st.ListJobs(ctx, store.JobFilter{Status: geocoding.Status(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, recs)
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show full details of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate job statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		recs, err := st.ListJobs(ctx, store.JobFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "jobs stats")
		}
		if since > 0 {
			cutoff := time.Now().Add(-since)
			recs = slices.DeleteFunc(recs, func(r store.JobRecord) bool { return r.CreatedAt.Before(cutoff) })
		}

		formatJobStats(os.Stdout, computeJobStats(recs))
		return nil
	},
}

func init() {
	jobsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 168h); 0 for all")
	jobsCmd.AddCommand(jobsStatsCmd)

	jobsListCmd.Flags().String("status", "", "filter by status (completed, interrupted, aborted)")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobsList writes a tabular list of jobs to out.
func formatJobsList(out io.Writer, recs []store.JobRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPROVIDER\tSTATUS\tPROCESSED\tERRORS\tROWS\tCREATED\tDURATION")
	for _, r := range recs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\t%s\n",
			id,
			r.Provider,
			r.Status,
			r.Progress.Processed, r.Progress.Total,
			r.Progress.Errors,
			r.RowCount,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.FinishedAt.Sub(r.CreatedAt).Round(time.Second),
		)
	}
	_ = w.Flush()
}

// jobStats holds aggregate statistics over a set of jobs.
type jobStats struct {
	Total       int
	Completed   int
	Interrupted int
	Aborted     int
	Records     int
	Errors      int
	AvgDurSecs  float64
}

// computeJobStats aggregates job history. Average duration covers completed jobs only.
func computeJobStats(recs []store.JobRecord) jobStats {
	var s jobStats
	s.Total = len(recs)

	var totalDur time.Duration
	for _, r := range recs {
		switch r.Status {
		case geocoding.StatusCompleted:
			s.Completed++
			totalDur += r.FinishedAt.Sub(r.CreatedAt)
		case geocoding.StatusInterrupted:
			s.Interrupted++
		case geocoding.StatusAborted:
			s.Aborted++
		}
		s.Records += r.Progress.Total
		s.Errors += r.Progress.Errors
	}
	if s.Completed > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(s.Completed)
	}
	return s
}

// formatJobStats writes job statistics to out.
func formatJobStats(out io.Writer, s jobStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total jobs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Completed:\t%d\n", s.Completed)
	_, _ = fmt.Fprintf(w, "Interrupted:\t%d\n", s.Interrupted)
	_, _ = fmt.Fprintf(w, "Aborted:\t%d\n", s.Aborted)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", s.Records)
	_, _ = fmt.Fprintf(w, "Provider errors:\t%d\n", s.Errors)
	if s.Total > 0 {
		_, _ = fmt.Fprintf(w, "Abort rate:\t%.1f%%\n", float64(s.Aborted)/float64(s.Total)*100)
	}
	_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	_ = w.Flush()
}
