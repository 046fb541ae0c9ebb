package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/apireplay/cmd/apireplay/config"
	"github.com/loykin/apireplay/internal/sink"
	"github.com/loykin/apireplay/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs recorded in the run store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns(cmd, viper.GetViper())
	},
}

var MeasurementsCmd = &cobra.Command{
	Use:   "measurements",
	Short: "List the measurements of one stored run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listMeasurements(cmd, viper.GetViper())
	},
}

func openStore(doc *config.ConfigDoc) (*store.Store, error) {
	cfg, enabled := doc.Store.StoreConfig()
	if !enabled {
		return nil, errors.New("run store is disabled in the config")
	}
	return store.Open(cfg)
}

func listRuns(cmd *cobra.Command, v *viper.Viper) error {
	doc, err := loadConfig(v)
	if err != nil {
		return err
	}
	st, err := openStore(doc)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runs, err := st.ListRuns(cmdContext(cmd))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCRIPT\tWORKERS\tSTARTED\tELAPSED\tCOMPLETED\tABORTED\tCANCELLED\tREQUESTS\tFAILURES\tEXIT")
	for _, r := range runs {
		elapsed := "running"
		if r.FinishedAt != nil {
			elapsed = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.ID, dash(r.Name), dash(r.Script), r.Workers,
			r.StartedAt.Local().Format(time.DateTime), elapsed,
			r.Summary.Completed, r.Summary.Aborted, r.Summary.Cancelled,
			r.Summary.Requests, r.Summary.Failures, r.Summary.ExitCode)
	}
	return tw.Flush()
}

func listMeasurements(cmd *cobra.Command, v *viper.Viper) error {
	runID := strings.TrimSpace(v.GetString(KeyRunID))
	if runID == "" {
		return errors.New("--run is required")
	}
	doc, err := loadConfig(v)
	if err != nil {
		return err
	}
	st, err := openStore(doc)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ms, err := st.ListMeasurements(cmdContext(cmd), runID)
	if err != nil {
		return err
	}
	return printMeasurements(cmd.OutOrStdout(), ms)
}

func printMeasurements(w io.Writer, ms []sink.Measurement) error {
	if len(ms) == 0 {
		fmt.Fprintln(w, "no measurements")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tITER\tTEST\tLABEL\tSTATUS\tMS\tBYTES\tATTEMPTS\tOUTCOME")
	for _, m := range ms {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%d\t%.1f\t%d\t%d\t%s\n",
			m.Worker, m.Iteration, m.TestID, m.Label, m.Status,
			float64(m.Elapsed)/float64(time.Millisecond), m.Bytes, m.Attempts, m.Outcome())
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
