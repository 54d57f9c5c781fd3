package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/wemarka/wmai/internal/config"
	"github.com/wemarka/wmai/internal/log"
	"github.com/wemarka/wmai/internal/observability"
	"github.com/wemarka/wmai/internal/pgwire"
	"github.com/wemarka/wmai/internal/server"
	"github.com/wemarka/wmai/internal/sqlexec"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SQL proxy server",
	Long: `Starts the HTTP server exposing the SQL proxy at /functions/v1/execute-sql.

Configuration is read from the environment (SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY, ...)
and may be overridden with flags. Without a project URL and key the server still
starts and answers every execution request with a configuration error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")
		https, _ := cmd.Flags().GetBool("https")

		if err := bindFlags(cmd, projectFlags); err != nil {
			return err
		}
		if err := bindFlags(cmd, map[string]string{
			"jwt-secret":    config.KeyJWTSecret,
			"otel-exporter": config.KeyOTelExporter,
			"otel-endpoint": config.KeyOTelEndpoint,
			"pg-password":   config.KeyPGPassword,
		}); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tel, cleanupTelemetry, err := observability.Init(ctx, &observability.Config{
			Exporter:       cfg.OTelExporter,
			Endpoint:       cfg.OTelEndpoint,
			ServiceName:    "wmai",
			ServiceVersion: Version,
			SampleRate:     cfg.OTelSampleRate,
			MetricsEnabled: true,
			TracesEnabled:  true,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer cleanupTelemetry()

		var service *sqlexec.Service
		if cfg.Configured() {
			a, err := newApp(ctx, cfg, tel)
			if err != nil {
				return err
			}
			defer a.Close()
			service = a.service
		} else {
			pterm.Warning.Println("Missing Supabase configuration: set SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}

		srv := server.NewWithConfig(sqlexec.NewHandler(service, cfg.Check), server.ServerConfig{
			JWTSecret: cfg.JWTSecret,
			Telemetry: tel,
		})

		addr := fmt.Sprintf("%s:%d", host, port)
		scheme := "http"
		if https {
			scheme = "https"
		}
		pterm.Info.Printf("Starting wmai on %s\n", addr)
		pterm.Printf("  SQL proxy: %s://%s%s\n", scheme, addr, server.ExecuteSQLPath)
		pterm.Printf("  Audit log: %s\n", cfg.AuditBackend)
		if cfg.JWTSecret != "" {
			pterm.Printf("  JWT verification: enabled\n")
		}
		if tel.Config().ShouldEnable() {
			pterm.Printf("  Telemetry: %s\n", cfg.OTelExporter)
		}

		errCh := make(chan error, 2)

		pgAddr, _ := cmd.Flags().GetString("pg-addr")
		var pgServer *pgwire.Server
		if pgAddr != "" {
			if service == nil {
				return fmt.Errorf("--pg-addr needs a configured project")
			}
			pgServer, err = pgwire.NewServer(service, pgwire.Config{
				Address:  pgAddr,
				Password: cfg.PGPassword,
				Logger:   log.Logger(),
			})
			if err != nil {
				return err
			}
			if cfg.PGPassword == "" {
				pterm.Warning.Println("No pgwire password set (WMAI_PGWIRE_PASSWORD); every Postgres login will be rejected")
			}
			pterm.Printf("  Postgres protocol: %s\n", pgAddr)
			go func() {
				errCh <- pgServer.ListenAndServe()
			}()
		}

		go func() {
			if https {
				domain, _ := cmd.Flags().GetString("domain")
				certDir, _ := cmd.Flags().GetString("cert-dir")
				email, _ := cmd.Flags().GetString("acme-email")
				httpPort, _ := cmd.Flags().GetInt("http-port")
				errCh <- srv.ListenAndServeTLS(addr, server.HTTPSConfig{
					Domain:   domain,
					Email:    email,
					CertDir:  certDir,
					HTTPAddr: fmt.Sprintf("%s:%d", host, httpPort),
				})
				return
			}
			errCh <- srv.ListenAndServe(addr)
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if pgServer != nil {
			if err := pgServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("pgwire shutdown failed", "error", err.Error())
			}
		}
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("https", false, "Serve HTTPS with a Let's Encrypt certificate")
	serveCmd.Flags().String("domain", "", "Public domain for the HTTPS certificate")
	serveCmd.Flags().String("cert-dir", "./certs", "Directory to cache certificates")
	serveCmd.Flags().String("acme-email", "", "Contact email for the Let's Encrypt account")
	serveCmd.Flags().Int("http-port", 80, "Port for ACME challenges and the HTTPS redirect")

	addProjectFlags(serveCmd)
	serveCmd.Flags().String("jwt-secret", "", "Require callers to present a JWT signed with this secret")
	serveCmd.Flags().String("pg-addr", "", "Also accept Postgres protocol clients on this address (e.g. :5432)")
	serveCmd.Flags().String("pg-password", "", "Password Postgres protocol clients must present")
	serveCmd.Flags().String("otel-exporter", "", "Telemetry exporter: none, stdout or otlp")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP collector address")
}
