package cli

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/syncapp/internal/auth"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long: `Manage Google Drive sessions. A session is the account segment of a
gdrive:// URL: gdrive://work/Documents uses the session "work".`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login <session>",
	Short: "Authenticate a Google Drive session",
	Long:  "Initiate the OAuth2 flow and store the resulting token for the session",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout <session>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status <session>",
	Short: "Show authentication status",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthStatus,
}

var authNoBrowser bool

func init() {
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Print the authorization URL and read the code from stdin")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	out := outputWriter(cmd)
	session := args[0]

	mgr, err := driveAuth()
	if err != nil {
		return err
	}
	if warning := mgr.StoreWarning(); warning != "" {
		out.Log("%s", warning)
	}

	tok, err := mgr.Authenticate(commandContext(cmd), session, openBrowser, auth.OAuthAuthOptions{
		NoBrowser: authNoBrowser,
		Prompt:    cmd.ErrOrStderr(),
		Input:     cmd.InOrStdin(),
	})
	if err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired, err.Error()).
			WithContext("session", session).
			Build(), err)
	}

	out.Log("Successfully authenticated!")
	return out.WriteSuccess("auth.login", map[string]interface{}{
		"session":        session,
		"expiry":         tok.Expiry.Format(time.RFC3339),
		"storageBackend": mgr.StoreName(),
	})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	out := outputWriter(cmd)
	session := args[0]

	mgr := authManager()
	if !mgr.HasToken(session) {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("No credentials found for session '%s'", session)).Build())
	}
	if err := mgr.DeleteToken(session); err != nil {
		return err
	}

	out.Log("Credentials removed for session: %s", session)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"session": session,
		"status":  "logged_out",
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	out := outputWriter(cmd)
	session := args[0]

	mgr := authManager()
	if warning := mgr.StoreWarning(); warning != "" && globalFlags.Verbose {
		out.Log("%s", warning)
	}

	tok, err := mgr.LoadToken(session)
	if err != nil {
		return out.WriteSuccess("auth.status", map[string]interface{}{
			"session":        session,
			"authenticated":  false,
			"storageBackend": mgr.StoreName(),
		})
	}

	return out.WriteSuccess("auth.status", map[string]interface{}{
		"session":        session,
		"authenticated":  true,
		"expiry":         tok.Expiry.Format(time.RFC3339),
		"needsRefresh":   auth.NeedsRefresh(tok),
		"refreshable":    tok.RefreshToken != "",
		"storageBackend": mgr.StoreName(),
	})
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
