package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wemarka/wmai/internal/config"
	"github.com/wemarka/wmai/internal/migration"
	"github.com/wemarka/wmai/internal/server"
	"github.com/wemarka/wmai/internal/sqlexec"
)

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Execute SQL through the proxy",
	Long: `Sends SQL to a running proxy (or, with --direct, runs the strategy cascade
in-process) and prints the result.

SQL is taken from --sql, --file or standard input.

Examples:
  wmai exec --sql "SELECT now()"
  wmai exec --file schema.sql --url https://xyz.supabase.co/functions/v1/execute-sql
  echo "SELECT 1" | wmai exec --direct`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, projectFlags); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sql, err := readSQL(cmd)
		if err != nil {
			return err
		}
		opID, _ := cmd.Flags().GetString("operation-id")
		asJSON, _ := cmd.Flags().GetBool("json")

		executor, cleanup, err := newExecutor(cmd, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		res := executor.Execute(cmd.Context(), sqlexec.Request{SQL: sql, OperationID: opID})
		if asJSON {
			return printJSON(res)
		}
		return printResult(res)
	},
}

// newExecutor returns the in-process service with --direct, or a proxy client.
func newExecutor(cmd *cobra.Command, cfg *config.Config) (migration.Executor, func(), error) {
	direct, _ := cmd.Flags().GetBool("direct")
	if direct {
		if !cfg.Configured() {
			return nil, nil, errors.New("missing Supabase configuration: set SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return nil, nil, err
		}
		return a.service, a.Close, nil
	}

	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		if cfg.SupabaseURL == "" {
			return nil, nil, errors.New("proxy URL required: pass --url or set SUPABASE_URL")
		}
		url = cfg.SupabaseURL + server.ExecuteSQLPath
	}

	key := cfg.ServiceKey
	if key == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Enter API key (leave empty for none): ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read key: %w", err)
		}
		key = strings.TrimSpace(string(b))
	}

	return sqlexec.NewClient(url, key, nil), func() {}, nil
}

func readSQL(cmd *cobra.Command) (string, error) {
	sql, _ := cmd.Flags().GetString("sql")
	file, _ := cmd.Flags().GetString("file")

	switch {
	case sql != "" && file != "":
		return "", errors.New("use either --sql or --file, not both")
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		sql = string(b)
	case sql == "" && !term.IsTerminal(int(os.Stdin.Fd())):
		b, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		sql = string(b)
	}

	if strings.TrimSpace(sql) == "" {
		return "", errors.New(sqlexec.ErrMsgSQLRequired)
	}
	return sql, nil
}

func printJSON(res *sqlexec.Result) error {
	out := map[string]any{
		"success":         res.Success,
		"method":          res.Method,
		"executionTimeMs": res.ExecutionTimeMs,
	}
	if res.Success {
		out["data"] = res.Data
	} else if res.Error != nil {
		out["error"] = res.Error
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !res.Success {
		return errors.New("SQL execution failed")
	}
	return nil
}

func printResult(res *sqlexec.Result) error {
	if !res.Success {
		msg := "unknown error"
		if res.Error != nil {
			msg = res.Error.Message
		}
		pterm.Error.Printf("SQL execution failed via %s after %dms\n", orDash(res.Method), res.ExecutionTimeMs)
		pterm.Println("  " + msg)
		return errors.New("SQL execution failed")
	}

	pterm.Success.Printf("Executed via %s in %dms\n", res.Method, res.ExecutionTimeMs)
	if len(res.Data) > 0 && string(res.Data) != "null" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, res.Data, "", "  "); err != nil {
			pterm.Println(string(res.Data))
			return nil
		}
		pterm.Println(buf.String())
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().String("sql", "", "SQL to execute")
	execCmd.Flags().StringP("file", "f", "", "File containing SQL to execute")
	execCmd.Flags().String("url", "", "Proxy endpoint (default: <project-url>/functions/v1/execute-sql)")
	execCmd.Flags().Bool("direct", false, "Run the strategy cascade in-process instead of calling a proxy")
	execCmd.Flags().String("operation-id", "", "Operation id recorded in the audit log")
	execCmd.Flags().Bool("json", false, "Print the result as JSON")
	addProjectFlags(execCmd)
}

