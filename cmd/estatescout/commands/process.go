package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"estatescout-backend/lib/serviceutil"
	"estatescout-backend/lib/sqliteutil"
	"estatescout-backend/services/pipeline/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var processDb *string

func init() {
	processDb = processCmd.Flags().String("db", "results.db", "The database to write outcomes to.")
	rootCmd.AddCommand(processCmd)
}

var processCmd = &cobra.Command{
	Use:   "process --county <name> --from <date> --to <date> [--db <path/to/output.db>]",
	Short: "Searches, downloads and parses petition documents, and reports qualifying estates.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		out, err := sqliteutil.OpenDB(db.Schema, *processDb)
		if err != nil {
			serviceutil.Fatal("failed to open results db", err)
		}
		defer out.Close()

		ctx := serviceutil.SignalContext()
		service, session, err := connect(ctx, cfg, db.NewSink(out))
		if err != nil {
			serviceutil.Fatal("failed to connect to the portal", err)
		}
		defer session.Close()

		query := queryFromFlags(cfg)
		stubs, err := service.Search(ctx, query)
		if err != nil {
			serviceutil.Fatal("search failed", err)
		}
		slog.Info("search complete", "filings", len(stubs))

		t1 := time.Now()
		outcomes, counts, err := service.Process(ctx, query, stubs)
		if err != nil {
			slog.Warn("processing stopped early", "err", err)
		}
		slog.Info("processing time", "seconds", time.Since(t1).Seconds())

		runID := time.Now().Format("20060102-150405")
		store := db.NewStore(out)
		if err := store.SaveOutcomes(cmd.Context(), runID, outcomes); err != nil {
			serviceutil.Fatal("failed to save outcomes", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"File Number", "Outcome", "Decedent", "Value Upper", "Attorney", "Reason"})
		for _, o := range outcomes {
			upper := ""
			if o.Record.EstateValueUpper != nil {
				upper = fmt.Sprintf("%.0f", *o.Record.EstateValueUpper)
			}
			t.AppendRow(table.Row{
				o.FileNumber, o.Kind.String(), o.Record.DecedentName, upper, o.Attorney, o.Reason,
			})
		}
		t.AppendFooter(table.Row{
			"", "", "", "", "",
			fmt.Sprintf("%d included, %d skipped, %d errors",
				counts.Included, counts.Skipped, counts.Errors),
		})
		t.SetStyle(table.StyleRounded)
		t.Render()

		slog.Info("run recorded", "run_id", runID, "db", *processDb)
	},
}
