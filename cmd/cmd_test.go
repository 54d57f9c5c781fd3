package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemarka/wmai/internal/config"
	"github.com/wemarka/wmai/internal/sqlexec"
)

func newSQLCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	c.Flags().String("sql", "", "")
	c.Flags().StringP("file", "f", "", "")
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestReadSQL(t *testing.T) {
	sql, err := readSQL(newSQLCmd(t, "--sql", "SELECT 1"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", sql)

	path := filepath.Join(t.TempDir(), "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 2;\n"), 0644))
	sql, err = readSQL(newSQLCmd(t, "--file", path))
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2;\n", sql)

	_, err = readSQL(newSQLCmd(t, "--sql", "SELECT 1", "--file", path))
	assert.ErrorContains(t, err, "not both")

	_, err = readSQL(newSQLCmd(t, "--file", filepath.Join(t.TempDir(), "missing.sql")))
	assert.ErrorContains(t, err, "failed to read")

	blank := filepath.Join(t.TempDir(), "blank.sql")
	require.NoError(t, os.WriteFile(blank, []byte("  \n"), 0644))
	_, err = readSQL(newSQLCmd(t, "--file", blank))
	assert.EqualError(t, err, sqlexec.ErrMsgSQLRequired)
}

func TestGenerateAPIKey(t *testing.T) {
	const secret = "test-secret-key-min-32-characters"

	key, err := generateAPIKey(secret, "service_role", time.Hour)
	require.NoError(t, err)

	role, err := config.KeyRole(key)
	require.NoError(t, err)
	assert.Equal(t, "service_role", role)

	token, err := jwt.Parse(key, func(*jwt.Token) (any, error) { return []byte(secret), nil })
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "supabase", claims["iss"])
	assert.Contains(t, claims, "exp")

	key, err = generateAPIKey(secret, "anon", 0)
	require.NoError(t, err)
	token, err = jwt.Parse(key, func(*jwt.Token) (any, error) { return []byte(secret), nil })
	require.NoError(t, err)
	assert.NotContains(t, token.Claims.(jwt.MapClaims), "exp")
}

func TestPrintResult(t *testing.T) {
	assert.NoError(t, printResult(&sqlexec.Result{
		Success: true,
		Method:  sqlexec.MethodPgQuery,
		Data:    json.RawMessage(`[{"x":1}]`),
	}))
	assert.NoError(t, printResult(&sqlexec.Result{Success: true, Method: sqlexec.MethodExecSQL, Data: json.RawMessage(`null`)}))

	err := printResult(&sqlexec.Result{Error: &sqlexec.ErrorInfo{Message: "boom"}})
	assert.EqualError(t, err, "SQL execution failed")
}

func TestProjectFlagsBindToKnownFlags(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	addProjectFlags(c)
	for name := range projectFlags {
		assert.NotNil(t, c.Flags().Lookup(name), name)
	}
	assert.NoError(t, bindFlags(c, projectFlags))
	assert.Error(t, bindFlags(c, map[string]string{"nope": "nope"}))
}
