package cli

import (
	"fmt"

	"aptitude-ace/internal/api"
	"aptitude-ace/internal/config"
	"github.com/spf13/cobra"
)

// NewLoginCmd signs in (or up) and stores the token for later runs.
func NewLoginCmd(configPath *string) *cobra.Command {
	var creds api.Credentials
	var signup bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the Aptitude Ace backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Email == "" || creds.Password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			login := rt.auth.Login
			if signup {
				login = rt.auth.Signup
			}
			profile, err := login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			name := profile.Name
			if name == "" {
				name = profile.Email
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (streak %d)\n", name, profile.Streak)
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "account password")
	cmd.Flags().StringVar(&creds.Name, "name", "", "display name (signup only)")
	cmd.Flags().BoolVar(&signup, "signup", false, "create the account first")
	return cmd
}

func NewLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.auth.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "backend logout failed: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}
