package main

import (
	"fmt"

	"github.com/rohankatakam/pipepilot/internal/auth"
	"github.com/rohankatakam/pipepilot/internal/config"
	"github.com/spf13/cobra"
)

var loginToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a backend token in the OS keychain",
	Long: `Verify a backend token and store it, with the user id it belongs to,
in the OS keychain.

The token is taken from --token, then PILOT_TOKEN, then the keychain, and
finally prompted for (hidden input) when running interactively.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored backend token",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show who the stored token belongs to",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "backend token")
}

func newAuthManager() *auth.Manager {
	return auth.NewManager(
		auth.NewIdentityClient(cfg.Backend.APIBase),
		config.NewCredentialManager(cfg.ResolvedMode()),
	)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if result := cfg.Validate(config.ValidationContextLogin); result.HasErrors() {
		return fmt.Errorf("%s", result.Error())
	}

	user, err := newAuthManager().Login(cmd.Context(), loginToken)
	if err != nil {
		return err
	}

	logger.WithField("user_id", user.ID).Debug("Token stored in keychain")
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as %s (%s)\n", user.Email, user.ID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := newAuthManager().Logout(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	source := config.NewKeyringManager().TokenSource(cfg)

	user, err := newAuthManager().Whoami(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "Not authenticated: %v\n", err)
		fmt.Fprintf(out, "Token source:    %s (%s)\n", source.Source, source.Recommended)
		return nil
	}

	fmt.Fprintf(out, "Email:           %s\n", user.Email)
	fmt.Fprintf(out, "User ID:         %s\n", user.ID)
	fmt.Fprintf(out, "Token:           %s\n", config.MaskToken(cfg.Backend.Token))
	fmt.Fprintf(out, "Token source:    %s (%s)\n", source.Source, source.Recommended)
	fmt.Fprintf(out, "Backend:         %s\n", cfg.Backend.URL)
	return nil
}
