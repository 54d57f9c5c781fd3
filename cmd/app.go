package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wemarka/wmai/internal/audit"
	"github.com/wemarka/wmai/internal/config"
	"github.com/wemarka/wmai/internal/db"
	"github.com/wemarka/wmai/internal/log"
	"github.com/wemarka/wmai/internal/observability"
	"github.com/wemarka/wmai/internal/pgrpc"
	"github.com/wemarka/wmai/internal/sqlexec"
	"github.com/wemarka/wmai/internal/supabase"
)

// bindFlag binds a flag into viper. Only flags the user actually set override
// environment values.
func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: no such flag", key)
	}
	return v.BindPFlag(key, flag)
}

// bindFlags binds cmd's flags (flag name -> config key). Several commands share
// keys and viper keeps one flag per key, so this runs when the command runs.
func bindFlags(cmd *cobra.Command, flags map[string]string) error {
	for name, key := range flags {
		if err := bindFlag(v, key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// projectFlags are the connection flags shared by commands that run SQL directly.
var projectFlags = map[string]string{
	"project-url":  config.KeySupabaseURL,
	"key":          config.KeyServiceKey,
	"database-url": config.KeyDatabaseURL,
	"audit":        config.KeyAuditBackend,
	"audit-db":     config.KeyAuditDB,
	"auto-create":  config.KeyAutoCreate,
	"timeout":      config.KeyTimeout,
}

func addProjectFlags(cmd *cobra.Command) {
	cmd.Flags().String("project-url", "", "Supabase project URL")
	cmd.Flags().String("key", "", "Service role key")
	cmd.Flags().String("database-url", "", "Postgres URL for calling SQL functions directly")
	cmd.Flags().String("audit", "", "Audit backend: rest, sqlite, postgres, s3 or none")
	cmd.Flags().String("audit-db", "", "SQLite database for the sqlite audit backend")
	cmd.Flags().Bool("auto-create", true, "Create missing SQL functions and retry once")
	cmd.Flags().Duration("timeout", 0, "Bound on a whole execution (default 60s)")
}

// app is the wired proxy: the service plus everything that must be closed.
type app struct {
	service *sqlexec.Service
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("failed to close resource", "error", err.Error())
		}
	}
}

// newApp builds the execution service for cfg. cfg must be configured. tel may
// be nil.
func newApp(ctx context.Context, cfg *config.Config, tel *observability.Telemetry) (*app, error) {
	a := &app{}
	client := supabase.NewClient(cfg.SupabaseURL, cfg.ServiceKey)

	var caller sqlexec.RPCCaller = client
	if cfg.DatabaseURL != "" {
		pg, err := pgrpc.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		caller = pg
		log.Info("calling sql functions over a direct database connection")
	}

	executor := sqlexec.NewExecutor([]sqlexec.Strategy{
		sqlexec.NewPgQueryStrategy(caller),
		sqlexec.NewExecSQLStrategy(caller),
		sqlexec.NewRESTStrategy(cfg.SupabaseURL, cfg.ServiceKey, nil),
	}, sqlexec.WithAutoCreate(cfg.AutoCreate))

	store, err := a.openAuditStore(ctx, cfg, client)
	if err != nil {
		a.Close()
		return nil, err
	}

	var opts []sqlexec.ServiceOption
	if tel != nil {
		opts = append(opts, sqlexec.WithObserver(tel))
	}
	a.service = sqlexec.NewService(executor, audit.NewRecorder(store), cfg.Timeout, opts...)
	warnKeyRole(cfg.ServiceKey)
	return a, nil
}

func (a *app) openAuditStore(ctx context.Context, cfg *config.Config, client *supabase.Client) (audit.Store, error) {
	switch cfg.AuditBackend {
	case config.AuditNone:
		return nil, nil
	case config.AuditSQLite:
		database, err := db.New(cfg.AuditDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, database.Close)
		if err := database.RunMigrations(); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return audit.NewSQLStore(database.SQLX(), audit.DefaultTable)
	case config.AuditS3:
		return audit.NewS3Store(ctx, audit.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3PathStyle,
			Prefix:       cfg.S3Prefix,
		})
	case config.AuditPostgres:
		store, err := audit.OpenSQLStore("postgres", cfg.DatabaseURL, cfg.AuditTable)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return audit.NewRESTStore(client, cfg.AuditTable), nil
	}
}

// warnKeyRole warns when the key is not a service role key.
func warnKeyRole(key string) {
	role, err := config.KeyRole(key)
	if err != nil {
		log.Debug("could not inspect key role", "error", err.Error())
		return
	}
	if role != "service_role" {
		log.Warn("configured key is not a service role key; DDL and audit writes may fail", "role", role)
	}
}
