package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"market-tracker/internal/config"
	apperrors "market-tracker/internal/errors"
	"market-tracker/internal/security"
)

func newAuthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "API token management",
		Long: `Store the Finnhub API token in an encrypted vault under the config
directory. The token can also come from FINNHUB_API_KEY or a .env file,
which take precedence.`,
	}
	cmd.AddCommand(newSetTokenCmd(app))
	cmd.AddCommand(newAuthStatusCmd(app))
	cmd.AddCommand(newClearTokenCmd(app))
	return cmd
}

func newSetTokenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-token",
		Short: "Encrypt and store the API token",
		Long: `Encrypt the API token with a password and store it in credentials.enc.
The token and password are read from stdin, one per line, unless given
through --token and ` + config.VaultPasswordEnv + `.
Set ` + config.VaultPasswordEnv + ` when running the tracker so it can open the vault.`,
		Example: `  tracker auth set-token
  printf '%s\n%s\n' "$TOKEN" "$PASSWORD" | tracker auth set-token`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			in := bufio.NewReader(cmd.InOrStdin())

			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				output.Printf("API token: ")
				line, err := readLine(in)
				if err != nil {
					return err
				}
				token = line
			}
			if token == "" {
				return apperrors.NewValidationError("token", "", "token is required")
			}

			password := os.Getenv(config.VaultPasswordEnv)
			if password == "" {
				output.Printf("Vault password: ")
				line, err := readLine(in)
				if err != nil {
					return err
				}
				password = line
			}
			if len(password) < 8 {
				return apperrors.NewValidationError("password", "", "password must be at least 8 characters")
			}

			vault := security.NewTokenVault(app.Config.Dir)
			err := vault.Seal(password, token)
			_ = app.Audit.Log(context.Background(), security.AuditEvent{
				EventType: security.AuditCredentialSaved,
				Action:    "seal",
				Success:   err == nil,
				ErrorMsg:  errString(err),
			})
			if err != nil {
				output.Error("Failed to store token: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"path": vault.Path(), "token": security.MaskCredential(token)})
			}
			output.Success("✓ Token %s stored in %s", security.MaskCredential(token), vault.Path())
			output.Dim("Export %s so the tracker can open it.", config.VaultPasswordEnv)
			return nil
		},
	}
	cmd.Flags().String("token", "", "API token (read from stdin when omitted)")
	return cmd
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the API token comes from",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			vault := security.NewTokenVault(app.Config.Dir)

			source := app.TokenSource
			if source == "" {
				source = "none"
			}
			status := map[string]interface{}{
				"source":       source,
				"demo":         app.Config.UseDemo(),
				"vault_exists": vault.Exists(),
				"token":        security.MaskCredential(app.Config.API.Token),
			}
			if output.IsJSON() {
				return output.JSON(status)
			}

			output.Bold("API Token")
			output.Printf("  Source:  %s\n", source)
			if app.Config.API.Token != "" {
				output.Printf("  Token:   %s\n", security.MaskCredential(app.Config.API.Token))
			}
			output.Printf("  Vault:   %s (exists: %v)\n", vault.Path(), vault.Exists())
			if app.Config.UseDemo() {
				output.Warning("Running on demo data")
			}
			return nil
		},
	}
}

func newClearTokenCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored token vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			vault := security.NewTokenVault(app.Config.Dir)
			if !vault.Exists() {
				output.Dim("No stored token")
				return nil
			}
			if err := os.Remove(vault.Path()); err != nil {
				return fmt.Errorf("removing vault: %w", err)
			}
			output.Success("✓ Stored token removed")
			return nil
		},
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
