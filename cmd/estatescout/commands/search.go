package commands

import (
	"os"

	"estatescout-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search --county <name> --from <date> --to <date>",
	Short: "Lists filings matching a query without processing their documents.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		ctx := serviceutil.SignalContext()
		service, session, err := connect(ctx, cfg, nil)
		if err != nil {
			serviceutil.Fatal("failed to connect to the portal", err)
		}
		defer session.Close()

		stubs, err := service.Search(ctx, queryFromFlags(cfg))
		if err != nil {
			serviceutil.Fatal("search failed", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"File Number", "Filed", "Name", "Proceeding", "Date of Death"})
		for _, s := range stubs {
			t.AppendRow(table.Row{s.FileNumber, s.FileDate, s.FileName, s.Proceeding, s.DateOfDeath})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
