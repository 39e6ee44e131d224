package cmd

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sarchlab/gvt/gtt/record"
)

var tablesCmd = &cobra.Command{
	Use:   "tables [database]",
	Short: "List the event tables of a trace database.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reader := record.NewReader(args[0])
		defer reader.Close()

		names := make([]string, 0, len(record.EventTables))
		for name, sample := range record.EventTables {
			reader.MapTable(name, sample)
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			_, total, err := reader.Query(context.Background(), name,
				record.QueryParams{Limit: 1})
			if err != nil {
				log.Fatalf("Error reading table %s: %v", name, err)
			}

			fmt.Printf("%-20s %d events\n", name, total)
		}
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump [database] [table]",
	Short: "Dump the events of one table of a trace database.",
	Long: "`dump trace.sqlite3 page_events` prints the recorded shadow " +
		"page events in order. The --where flag filters with a SQL " +
		"condition, for example --where \"VGPU = 'vgpu-1'\".",
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		table := args[1]
		sample, ok := record.EventTables[table]
		if !ok {
			log.Fatalf("Error: unknown table %s", table)
		}

		reader := record.NewReader(args[0])
		defer reader.Close()
		reader.MapTable(table, sample)

		where, _ := cmd.Flags().GetString("where")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		results, total, err := reader.Query(context.Background(), table,
			record.QueryParams{
				Where:   where,
				Limit:   limit,
				Offset:  offset,
				OrderBy: "Serial",
			})
		if err != nil {
			log.Fatalf("Error reading table %s: %v", table, err)
		}

		for _, r := range results {
			fmt.Printf("%+v\n", r)
		}
		fmt.Printf("%d of %d events\n", len(results), total)
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().String("where", "", "Filter events with a SQL condition")
	dumpCmd.Flags().Int("limit", 0, "Maximum number of events to print")
	dumpCmd.Flags().Int("offset", 0, "Number of events to skip")
}
