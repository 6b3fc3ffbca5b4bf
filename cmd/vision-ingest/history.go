package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fpang/vision-archiver/internal/store"
)

var limitFlag int

var historyCmd = &cobra.Command{
	Use:   "history <object>",
	Short: "List recent pipeline runs for an object from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&limitFlag, "limit", 10, "Maximum runs to list (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := loadEnvironment(ctx, backendFlag, rootFlag)
	if err != nil {
		return err
	}
	if env.dynamo == nil || env.cfg.LedgerTable == "" {
		return errors.New("history needs --backend s3 and ANNOTATION_LEDGER_TABLE")
	}

	runs, err := store.NewLedger(env.dynamo, env.cfg.LedgerTable).ListRuns(ctx, args[0], limitFlag)
	if err != nil {
		return err
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(w io.Writer, runs []store.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tSTATE\tKIND\tSTEP\tATTEMPTS\tMS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.RunID, r.State, r.Kind, r.Step, r.Attempts, r.DurationMs)
	}
	tw.Flush()
}
