package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/arnavshah/ward-census-api/internal/app"
	"github.com/arnavshah/ward-census-api/internal/config"
	"github.com/arnavshah/ward-census-api/internal/logger"
	"github.com/arnavshah/ward-census-api/pkg/auth"
	"github.com/arnavshah/ward-census-api/pkg/census"
	"github.com/arnavshah/ward-census-api/pkg/dashboard"
	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/export"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "censusctl",
		Short:        "Ward census operations",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(rollupCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(wardCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openApp wires the application from cfg with console logging
func openApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	log, err := logger.NewLogger(cfg.Log.Level, "console", "censusctl")
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <client>",
		Short: "Print an HMAC API key for an ingestion client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.APIMasterSecret == "" {
				return errors.New("API_MASTER_SECRET is not set")
			}
			key := auth.New(cfg.JWTSecret, cfg.APIMasterSecret).GenerateHMACKey(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Generated Key for %s:\n%s\n", args[0], key)
			return nil
		},
	}
}

func rollupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Build daily summaries from final and approved ward forms",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			ctx := cmd.Context()

			a, err := openApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Store.RollupDailySummaries(ctx, date)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d daily summaries for %s\n", n, date)
			return nil
		},
	}
	cmd.Flags().String("date", "", "Date to roll up (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the ward summary table for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			ward, _ := cmd.Flags().GetString("ward")
			formatName, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")

			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if end == "" {
				end = start
			}
			if err := census.ValidateRange(start, end, 0); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, config.Load().Offline())
			if err != nil {
				return err
			}
			defer a.Close()

			q := dashboard.Query{
				User:      models.UserContext{Username: "censusctl", Role: models.RoleAdmin},
				Selection: models.AllWards(),
				Start:     start,
				End:       end,
			}
			if ward != "" && ward != "all" {
				q.Selection = models.SingleWard(ward)
			}

			summary, err := a.Service.Summary(ctx, q)
			if err != nil {
				return err
			}
			for _, id := range summary.Unavailable {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: ward %s could not be read and is reported as zero\n", id)
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return export.Write(w, summary, format)
		},
	}
	cmd.Flags().String("start", "", "First date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Last date (YYYY-MM-DD), defaults to start")
	cmd.Flags().String("ward", "all", "Ward id, or all")
	cmd.Flags().String("format", "csv", "Output format: csv or xlsx")
	cmd.Flags().String("out", "", "Output file, defaults to stdout")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func wardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ward",
		Short: "Manage wards",
	}

	addCmd := &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Create or rename a ward",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sortOrder, _ := cmd.Flags().GetInt("sort")
			archived, _ := cmd.Flags().GetBool("archived")
			ctx := cmd.Context()

			a, err := openApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Store.UpsertWard(ctx, database.Ward{ID: args[0], Name: args[1], SortOrder: sortOrder, Archived: archived})
		},
	}
	addCmd.Flags().Int("sort", 0, "Display position")
	addCmd.Flags().Bool("archived", false, "Hide the ward from dashboards")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active wards in display order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			wards, err := a.Store.ListWards(ctx)
			if err != nil {
				return err
			}
			for _, w := range wards {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", w.ID, w.Name)
			}
			return nil
		},
	})
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users",
	}

	addCmd := &cobra.Command{
		Use:   "add <username> <password>",
		Short: "Create a dashboard user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			ward, _ := cmd.Flags().GetString("ward")
			ctx := cmd.Context()

			a, err := openApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := auth.CreateUser(a.DB, args[0], args[1], models.Role(role), ward)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s user %s\n", user.Role, user.Username)
			return nil
		},
	}
	addCmd.Flags().String("role", string(models.RoleNurse), "admin, supervisor or nurse")
	addCmd.Flags().String("ward", "", "Ward id, required for nurses")
	cmd.AddCommand(addCmd)
	return cmd
}
