package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"copilot-chat/internal/auth"
	"copilot-chat/internal/config"
	"copilot-chat/internal/display"
)

// ─── login ───────────────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a device code",
	Long: `Signs in to Microsoft Entra ID with the device-code flow. Open the printed
URL in any browser, enter the code, and the token is saved to the profile.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(activeProfile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tok, err := auth.DeviceLogin(ctx, auth.ConfigFor(cfg), printDeviceCode)
	if err != nil {
		return err
	}
	auth.Store(cfg, tok)
	if err := cfg.Save(); err != nil {
		return err
	}

	who := cfg.Username
	if who == "" {
		who = "(unknown user)"
	}
	display.Success(fmt.Sprintf("Signed in as %s", who))
	if cfg.Profile != "" {
		display.Info("Profile:", cfg.Profile)
	}
	return nil
}

func printDeviceCode(da *oauth2.DeviceAuthResponse) {
	display.Header("Sign in to Copilot Studio")
	display.Info("Open:", da.VerificationURI)
	display.Info("Enter code:", display.Bold+da.UserCode+display.Reset)
	if !da.Expiry.IsZero() {
		display.Info("Expires:", display.FormatExpiry(da.Expiry, time.Now()))
	}
	fmt.Fprintln(display.Out)
	display.Spinner("Waiting for sign-in...")
	fmt.Fprintln(display.Out)
}

// ─── logout ──────────────────────────────────────────────────────────────────

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored sign-in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(activeProfile)
		if err != nil {
			return err
		}
		cfg.ClearToken()
		if err := cfg.Save(); err != nil {
			return err
		}
		display.Success("Signed out")
		return nil
	},
}

// ─── config ──────────────────────────────────────────────────────────────────

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Valid keys: environment_id, agent_identifier, tenant_id, app_client_id,\nbase_url, authority, listen_addr, turn_timeout, connect_timeout.",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(activeProfile)
	if err != nil {
		return err
	}
	showConfig(cfg, time.Now())
	return nil
}

func showConfig(cfg *config.Config, now time.Time) {
	notSet := display.Dim + "(not set)" + display.Reset
	orNotSet := func(s string) string {
		if s == "" {
			return notSet
		}
		return s
	}

	display.Header("Copilot Chat Configuration")
	display.Info("Profile:", config.ProfileName(activeProfile))
	display.Info("Environment:", orNotSet(cfg.EnvironmentID))
	display.Info("Agent:", orNotSet(cfg.AgentIdentifier))
	display.Info("Tenant:", orNotSet(cfg.TenantID))
	display.Info("App client:", orNotSet(cfg.AppClientID))
	if cfg.BaseURL != "" {
		display.Info("Endpoint:", cfg.BaseURL)
	}
	display.Info("Listen address:", cfg.ListenAddr)
	display.Info("Turn timeout:", cfg.TurnTimeout.String())
	display.Info("Connect timeout:", cfg.ConnectTimeout.String())
	fmt.Fprintln(display.Out)

	display.SubHeader("Sign-in")
	display.Info("User:", orNotSet(cfg.Username))
	display.Info("Token:", display.Mask(cfg.Token))
	if cfg.Token != "" {
		display.Info("Expires:", display.FormatExpiry(cfg.Expiry(), now))
	}
	fmt.Fprintln(display.Out)

	if err := cfg.Validate(); err != nil {
		display.Warn(err.Error())
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(activeProfile)
	if err != nil {
		return err
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	display.Success(fmt.Sprintf("%s updated", args[0]))
	return nil
}

// ─── profiles ────────────────────────────────────────────────────────────────

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List config profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := config.ListProfiles()
		if err != nil {
			return err
		}

		display.Header(fmt.Sprintf("Profiles (%d)", len(profiles)))

		if len(profiles) == 0 {
			display.Warn("No profiles found.")
			return nil
		}

		for _, p := range profiles {
			marker := " "
			if p == config.ProfileName(activeProfile) {
				marker = display.Green + "●" + display.Reset
			}
			fmt.Fprintf(display.Out, "  %s %s\n", marker, p)
		}
		fmt.Fprintln(display.Out)
		return nil
	},
}

// ─── version ─────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "copilot-chat %s\n", version)
	},
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
