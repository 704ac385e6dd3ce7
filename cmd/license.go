package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"messageflow-backend/internal/config"
	"messageflow-backend/internal/service"
	"messageflow-backend/internal/store"
)

func runLicenseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Inspect and manage issued licenses",
	}

	cmd.AddCommand(runLicenseListCommand())
	cmd.AddCommand(runLicenseShowCommand())
	cmd.AddCommand(runLicenseSetActiveCommand("revoke", "Deactivate a license", false))
	cmd.AddCommand(runLicenseSetActiveCommand("restore", "Reactivate a revoked license", true))
	cmd.AddCommand(runLicenseVerifyCommand())
	cmd.AddCommand(runLicenseSyncSheetCommand())
	return cmd
}

// withRuntime loads config, opens the stores and runs fn against them.
func withRuntime(ctx context.Context, fn func(rt *runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close(false)
	return fn(rt)
}

func runLicenseListCommand() *cobra.Command {
	var inactiveOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List licenses, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				licenses, err := rt.licenses.List(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tPLAN\tEMAIL\tPURCHASED\tACTIVE")
				for _, l := range licenses {
					if inactiveOnly && l.Active {
						continue
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", l.Key, l.Plan, l.Email, l.PurchaseDate.Format("2006-01-02"), l.Active)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&inactiveOnly, "inactive", false, "Only show revoked licenses")
	return cmd
}

func runLicenseShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show KEY",
		Short: "Print one license as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				license, err := rt.licenses.Get(cmd.Context(), args[0])
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("license %s not found", args[0])
				}
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(license)
			})
		},
	}
}

func runLicenseSetActiveCommand(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " KEY",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				change := rt.licenses.Revoke
				if active {
					change = rt.licenses.Restore
				}
				license, err := change(cmd.Context(), args[0], service.ActorCLI)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("license %s not found", args[0])
				}
				if err != nil {
					return err
				}
				cmd.Printf("License %s active=%t\n", license.Key, license.Active)
				return nil
			})
		},
	}
}

func runLicenseVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify KEY",
		Short: "Run the same check the desktop client performs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				result := rt.licenses.Verify(cmd.Context(), args[0], service.RequestMeta{UserAgent: "messageflow-cli"})
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			})
		},
	}
}

func runLicenseSyncSheetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-sheet",
		Short: "Rewrite the license sheet from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if rt.ledger == nil {
					return errors.New("SHEETS_ENABLED is false")
				}
				licenses, err := rt.licenses.List(cmd.Context())
				if err != nil {
					return err
				}
				if err := rt.ledger.EnsureHeader(cmd.Context()); err != nil {
					return err
				}
				if err := rt.ledger.BatchSyncLicenses(cmd.Context(), licenses); err != nil {
					return err
				}
				cmd.Printf("Synced %d licenses\n", len(licenses))
				return nil
			})
		},
	}
}
