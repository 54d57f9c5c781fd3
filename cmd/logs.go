package cmd

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/wemarka/wmai/internal/audit"
	"github.com/wemarka/wmai/internal/db"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect the local execution log",
	Long:  `Commands for reading execution log entries written by the sqlite audit backend.`,
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent executions",
	Long: `Show the most recent entries of the local execution log, newest first.

Examples:
  wmai logs list
  wmai logs list --limit 5 --db state.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		limit, _ := cmd.Flags().GetInt("limit")

		database, err := db.New(dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		store, err := audit.NewSQLStore(database.SQLX(), audit.DefaultTable)
		if err != nil {
			return err
		}
		entries, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			pterm.Info.Println("No executions logged")
			return nil
		}

		data := pterm.TableData{{"Time", "Operation", "Status", "Method", "ms", "SQL"}}
		for _, e := range entries {
			data = append(data, []string{
				e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				e.OperationID,
				statusColor(e.Status),
				e.MethodUsed,
				strconv.FormatInt(e.ExecutionTimeMs, 10),
				e.SQLPreview,
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func statusColor(s audit.Status) string {
	switch s {
	case audit.StatusSuccess:
		return pterm.Green(string(s))
	case audit.StatusFailed:
		return pterm.Red(string(s))
	default:
		return pterm.Yellow(string(s))
	}
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsListCmd)
	logsListCmd.Flags().String("db", defaultStateDB(), "Local state database")
	logsListCmd.Flags().Int("limit", 20, "Maximum number of entries")
}
