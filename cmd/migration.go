package cmd

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/wemarka/wmai/internal/db"
	"github.com/wemarka/wmai/internal/migration"
)

var migrationCmd = &cobra.Command{
	Use:   "migration",
	Short: "Manage database migrations",
	Long:  `Commands for creating, listing and applying SQL migrations through the proxy.`,
}

var migrationNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new migration file",
	Long: `Create a new migration file with a timestamp prefix.

The name should be a short description using snake_case.

Examples:
  wmai migration new create_posts
  wmai migration new add_user_id_to_posts`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("migrations-dir")

		_, path, err := migration.Create(dir, args[0])
		if err != nil {
			return err
		}
		pterm.Success.Printf("Created migration: %s\n", path)
		return nil
	},
}

var migrationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all migrations and their status",
	Long: `Show all migrations from the migrations directory and whether they've been applied.

Examples:
  wmai migration list
  wmai migration list --db state.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		dir, _ := cmd.Flags().GetString("migrations-dir")

		runner, closeDB, err := openRunner(dbPath)
		if err != nil {
			return err
		}
		defer closeDB()

		all, err := migration.ReadFromDir(dir)
		if err != nil {
			return err
		}
		applied, err := runner.GetApplied()
		if err != nil {
			return fmt.Errorf("failed to get applied migrations: %w", err)
		}

		appliedAt := make(map[string]string, len(applied))
		for _, m := range applied {
			appliedAt[m.Version] = m.AppliedAt.Format("2006-01-02 15:04:05")
		}

		if len(all) == 0 && len(applied) == 0 {
			pterm.Info.Println("No migrations found in " + dir)
			return nil
		}

		data := pterm.TableData{{"Version", "Name", "Status", "Applied At"}}
		pending := 0
		seen := make(map[string]bool, len(all))
		for _, m := range all {
			seen[m.Version] = true
			if at, ok := appliedAt[m.Version]; ok {
				data = append(data, []string{m.Version, m.Name, pterm.Green("applied"), at})
				continue
			}
			pending++
			data = append(data, []string{m.Version, m.Name, pterm.Yellow("pending"), ""})
		}
		// applied migrations whose file is gone
		for _, m := range applied {
			if !seen[m.Version] {
				data = append(data, []string{m.Version, m.Name, pterm.Red("missing file"), appliedAt[m.Version]})
			}
		}

		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
		pterm.Printf("\n%d migration(s), %d pending\n", len(all), pending)
		return nil
	},
}

var migrationApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending migrations",
	Long: `Send every pending migration to the SQL proxy in version order and record
the ones that succeed. Stops at the first failure.

Examples:
  wmai migration apply --url https://xyz.supabase.co/functions/v1/execute-sql
  wmai migration apply --direct`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, projectFlags); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		dbPath, _ := cmd.Flags().GetString("db")
		dir, _ := cmd.Flags().GetString("migrations-dir")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		all, err := migration.ReadFromDir(dir)
		if err != nil {
			return err
		}

		runner, closeDB, err := openRunner(dbPath)
		if err != nil {
			return err
		}
		defer closeDB()

		pending, err := runner.Pending(all)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			pterm.Info.Println("No pending migrations")
			return nil
		}
		if dryRun {
			for _, m := range pending {
				pterm.Println("  would apply " + m.Filename())
			}
			return nil
		}

		executor, cleanup, err := newExecutor(cmd, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		applied, err := runner.ApplyPending(cmd.Context(), all, executor)
		for _, m := range applied {
			pterm.Success.Println("Applied " + m.Filename())
		}
		if err != nil {
			pterm.Error.Println(err.Error())
			return fmt.Errorf("%d of %d migration(s) applied", len(applied), len(pending))
		}
		pterm.Info.Printf("%d migration(s) applied\n", len(applied))
		return nil
	},
}

// openRunner opens the local state database and returns a migration runner on it.
func openRunner(path string) (*migration.Runner, func(), error) {
	database, err := db.New(path)
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return migration.NewRunner(database.DB), func() { database.Close() }, nil
}

func init() {
	rootCmd.AddCommand(migrationCmd)
	migrationCmd.AddCommand(migrationNewCmd)
	migrationCmd.AddCommand(migrationListCmd)
	migrationCmd.AddCommand(migrationApplyCmd)

	for _, c := range []*cobra.Command{migrationNewCmd, migrationListCmd, migrationApplyCmd} {
		c.Flags().String("migrations-dir", "./migrations", "Directory for migration files")
	}
	migrationListCmd.Flags().String("db", defaultStateDB(), "Local state database")
	migrationApplyCmd.Flags().String("db", defaultStateDB(), "Local state database")

	migrationApplyCmd.Flags().String("url", "", "Proxy endpoint (default: <project-url>/functions/v1/execute-sql)")
	migrationApplyCmd.Flags().Bool("direct", false, "Run the strategy cascade in-process instead of calling a proxy")
	migrationApplyCmd.Flags().Bool("dry-run", false, "List pending migrations without applying them")
	addProjectFlags(migrationApplyCmd)
}

// defaultStateDB is the local state database, overridable with WMAI_AUDIT_DB.
func defaultStateDB() string {
	if p := os.Getenv("WMAI_AUDIT_DB"); p != "" {
		return p
	}
	return "wmai.db"
}
