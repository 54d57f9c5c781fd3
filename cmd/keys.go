package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/wemarka/wmai/internal/config"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long:  `Commands for managing API keys accepted by a proxy started with --jwt-secret.`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate anon and service_role API keys",
	Long: `Generates both anon and service_role API keys signed with the JWT secret
(--secret or WMAI_JWT_SECRET).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd, map[string]string{"secret": config.KeyJWTSecret}); err != nil {
			return err
		}
		secret := v.GetString(config.KeyJWTSecret)
		if secret == "" {
			return fmt.Errorf("JWT secret required: pass --secret or set WMAI_JWT_SECRET")
		}
		if len(secret) < 32 {
			pterm.Warning.Println("JWT secret is shorter than 32 characters")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		anonKey, err := generateAPIKey(secret, "anon", ttl)
		if err != nil {
			return fmt.Errorf("failed to generate anon key: %w", err)
		}
		serviceKey, err := generateAPIKey(secret, "service_role", ttl)
		if err != nil {
			return fmt.Errorf("failed to generate service key: %w", err)
		}

		fmt.Fprintf(os.Stdout, "SUPABASE_ANON_KEY=%s\n", anonKey)
		fmt.Fprintf(os.Stdout, "SUPABASE_SERVICE_ROLE_KEY=%s\n", serviceKey)
		return nil
	},
}

var keysInspectCmd = &cobra.Command{
	Use:   "inspect <key>",
	Short: "Show the role of an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := config.KeyRole(args[0])
		if err != nil {
			return err
		}
		pterm.Info.Printf("role: %s\n", role)
		if role != "service_role" {
			pterm.Warning.Println("DDL through the proxy needs a service_role key")
		}
		return nil
	},
}

func generateAPIKey(secret, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"role": role,
		"iss":  "supabase",
		"iat":  now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysInspectCmd)
	keysGenerateCmd.Flags().String("secret", "", "JWT secret used to sign the keys")
	keysGenerateCmd.Flags().Duration("ttl", 0, "Key lifetime (default: no expiry)")
}
