package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. A fresh tree per call keeps flag state
// out of package globals.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authflow",
		Short: "OAuth2 authorization code flow with PKCE and OIDC nonce",
		Long: `authflow starts OAuth2 authorization code flows protected by PKCE (S256),
a state parameter and an OpenID Connect nonce, and completes them when the
authorization server redirects back.`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate(`{{printf "authflow version %s\n" .Version}}`)

	root.AddCommand(newServeCmd())
	root.AddCommand(newAuthorizeCmd())
	root.AddCommand(newVersionCmd())
	return root
}
