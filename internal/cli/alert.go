package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "market-tracker/internal/errors"
	"market-tracker/internal/models"
	"market-tracker/internal/security"
	"market-tracker/pkg/utils"
)

func newAlertCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Price alert management",
		Long:  "Create, list, delete and re-arm price alerts on tracked symbols.",
	}

	cmd.AddCommand(newAlertAddCmd(app))
	cmd.AddCommand(newAlertListCmd(app))
	cmd.AddCommand(newAlertDeleteCmd(app))
	cmd.AddCommand(newAlertResetCmd(app))
	return cmd
}

func newAlertAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name|symbol>",
		Short: "Create a price alert",
		Long: `Create an alert on a tracked symbol. The alert fires once when the price
reaches the threshold (inclusive) and stays triggered until reset.`,
		Example: `  tracker alert add Bitcoin --above 60000
  tracker alert add ^GSPC --below 4800`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			above, _ := cmd.Flags().GetFloat64("above")
			below, _ := cmd.Flags().GetFloat64("below")
			aboveSet := cmd.Flags().Changed("above")
			belowSet := cmd.Flags().Changed("below")
			if aboveSet == belowSet {
				return apperrors.NewValidationError("condition", "", "exactly one of --above or --below is required")
			}

			draft := models.AlertDraft{Type: models.AlertAbove, Price: above}
			if belowSet {
				draft.Type = models.AlertBelow
				draft.Price = below
			}

			entry, ok := app.Symbols.Resolve(args[0])
			if !ok {
				output.Error("Unknown symbol %q. Run 'tracker symbols' to list tracked symbols.", security.SanitizeText(args[0]))
				return apperrors.ErrSymbolNotFound
			}
			draft.Name = entry.Name
			draft.Symbol = entry.Symbol

			alerts, err := app.alertStore(ctx)
			if err != nil {
				return err
			}
			alert, err := alerts.Append(ctx, draft)
			_ = app.Audit.LogAlertChange(ctx, security.AuditAlertCreated, alert.ID, draft.Symbol, err)
			if err != nil {
				if apperrors.Is(err, apperrors.ErrInputValidation) {
					output.Error("Invalid alert: %v", err)
					return err
				}
				output.Warning("Alert created but not saved: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(alert)
			}
			output.Success("✓ Alert %s created: %s %s %s", alert.ID, alert.Name, alert.Type,
				utils.FormatPrice(alert.Price, models.IsCryptoSymbol(alert.Symbol)))
			return nil
		},
	}

	cmd.Flags().Float64("above", 0, "fire when the price is at or above this value")
	cmd.Flags().Float64("below", 0, "fire when the price is at or below this value")
	return cmd
}

func newAlertListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		Example: `  tracker alert list
  tracker alert list --symbol BINANCE:BTCUSDT`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			alerts, err := app.alertStore(ctx)
			if err != nil {
				return err
			}

			var list []models.Alert
			if ref, _ := cmd.Flags().GetString("symbol"); ref != "" {
				symbol := ref
				if entry, ok := app.Symbols.Resolve(ref); ok {
					symbol = entry.Symbol
				}
				list = alerts.ForSymbol(ctx, symbol)
			} else {
				list = alerts.List(ctx)
			}

			if output.IsJSON() {
				return output.JSON(list)
			}
			if len(list) == 0 {
				output.Dim("No alerts. Create one with 'tracker alert add <name> --above <price>'.")
				return nil
			}
			renderAlerts(output, list)
			return nil
		},
	}
	cmd.Flags().String("symbol", "", "only alerts on this name or symbol")
	return cmd
}

func renderAlerts(output *Output, list []models.Alert) {
	table := NewTable(output, "ID", "Name", "Symbol", "Condition", "Status", "Created")
	for _, a := range list {
		status := output.Green("armed")
		if a.Triggered {
			status = output.Yellow("triggered " + a.TriggeredAt.Local().Format("2006-01-02 15:04"))
		}
		table.AddRow(
			a.ID,
			a.Name,
			a.Symbol,
			fmt.Sprintf("%s %s", a.Type, utils.FormatPrice(a.Price, models.IsCryptoSymbol(a.Symbol))),
			status,
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	table.Render()
}

func newAlertDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an alert",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeAlert(cmd, app, args[0], security.AuditAlertDeleted, "deleted")
		},
	}
}

func newAlertResetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Re-arm a triggered alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeAlert(cmd, app, args[0], security.AuditAlertReset, "reset")
		},
	}
}

func changeAlert(cmd *cobra.Command, app *App, id string, event security.AuditEventType, verb string) error {
	output := NewOutput(cmd)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	alerts, err := app.alertStore(ctx)
	if err != nil {
		return err
	}
	existing, ok := alerts.Get(ctx, id)
	if !ok {
		output.Error("No alert with id %s", security.SanitizeText(id))
		return fmt.Errorf("%w: %s", apperrors.ErrAlertNotFound, security.SanitizeText(id))
	}

	if event == security.AuditAlertDeleted {
		err = alerts.Remove(ctx, id)
	} else {
		err = alerts.Reset(ctx, id)
	}
	_ = app.Audit.LogAlertChange(ctx, event, id, existing.Symbol, err)
	if err != nil {
		output.Error("Failed to save: %v", err)
		return err
	}

	if output.IsJSON() {
		return output.JSON(map[string]string{"id": id, "status": verb})
	}
	output.Success("✓ Alert %s %s", id, verb)
	return nil
}
