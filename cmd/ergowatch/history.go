package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ayusman/ergowatch/internal/eventlog"
)

func runLog(args []string) error {
	if len(args) == 0 || args[0] != "export" {
		return fmt.Errorf("%w: log export -out FILE", errUsage)
	}

	fs, c := newFlagSet("log export")
	out := fs.String("out", "", "Destination file (.csv or .xlsx)")
	fs.Parse(args[1:])

	if *out == "" {
		return fmt.Errorf("%w: log export requires -out", errUsage)
	}

	cfg, err := c.setup()
	if err != nil {
		return err
	}

	n, err := eventlog.Export(cfg.Paths().EventLog, *out)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d events to %s\n", n, *out)
	return nil
}

func runRuns(args []string) error {
	fs, c := newFlagSet("runs")
	limit := fs.Int("limit", 20, "Number of runs to show (0 for all)")
	fs.Parse(args)

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	cfg.Store.Enabled = true

	st, err := openStore(cfg, cfg.Paths())
	if err != nil {
		return err
	}
	defer closeStore(st)

	runs, err := st.Runs().List(*limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tLABEL\tSTARTED\tDURATION\tFRAMES\tALERTS")
	for _, r := range runs {
		duration := "running"
		if r.EndedAt != nil {
			duration = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.ID, r.Mode, r.Label, r.StartedAt.Local().Format(time.DateTime), duration, r.Frames, r.Alerts)
	}
	return w.Flush()
}

func runSessions(args []string) error {
	fs, c := newFlagSet("sessions")
	fs.Parse(args)

	cfg, err := c.setup()
	if err != nil {
		return err
	}
	cfg.Store.Enabled = true

	st, err := openStore(cfg, cfg.Paths())
	if err != nil {
		return err
	}
	defer closeStore(st)

	sessions, err := st.Sessions().List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tLABEL\tROWS\tMERGED\tPATH")
	for _, s := range sessions {
		merged := "no"
		if s.MergedAt != nil {
			merged = s.MergedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", s.SessionID, s.Label, s.Rows, merged, s.Path)
	}
	return w.Flush()
}
