package main

import (
	"fmt"

	"authflow-go/internal/app"
	"authflow-go/internal/auth"
	"authflow-go/internal/config"
	"authflow-go/internal/navigate"

	"github.com/spf13/cobra"
)

func newAuthorizeCmd() *cobra.Command {
	var (
		configPath string
		noBrowser  bool
	)

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Start a flow and open the authorization URL",
		Long: `Generates the state, PKCE verifier and nonce for a new flow, persists them in
the configured store and opens the authorization URL in the default browser.
The callback is completed by a running 'authflow serve' sharing the same store,
so the sqlite driver is needed for the two processes to meet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			defer application.Close()

			if cfg.Store.Driver == "memory" {
				application.Logger.Warn("The memory store is discarded on exit; this flow cannot be completed")
			}

			var nav auth.Navigator = navigate.NewBrowser(cmd.OutOrStdout())
			if noBrowser {
				nav = navigate.Print{Out: cmd.OutOrStdout()}
			}

			redirect, err := application.Flows.Initiate(cmd.Context(), nav)
			if err != nil {
				return err
			}
			if redirect.FlowID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "flow_id: %s\n", redirect.FlowID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a JSON configuration file")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	return cmd
}
