package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"sharetok/pkg/auth"
	"sharetok/pkg/ui"
)

var showGuide bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage platform accounts",
	Long: `Manage the browser cookies sent with page and API requests.

Accounts are stored, in order of preference, in:
  - the system keychain
  - an AES-GCM encrypted file in the config directory
  - SHARETOK_SESSION_ID / SHARETOK_TTWID / SHARETOK_MS_TOKEN (read-only)`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store cookies for an account",
	Long: `Store cookies for an account. Paste either the whole Cookie header copied
from the browser's Network tab, or leave it empty to be asked for each cookie.
Input is not echoed.`,
	Example: `  sharetok auth login
  sharetok auth login work --guide`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <name>",
	Short: "Remove a stored account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := auth.NewManager()
		if err != nil {
			return fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		if err := manager.Delete(args[0]); err != nil {
			return err
		}
		ui.PrintSuccess("Account removed: " + args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts with masked cookie values",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd)
	loginCmd.Flags().BoolVar(&showGuide, "guide", false, "print how to copy the cookies from a browser first")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if showGuide {
		auth.WriteCookieGuide(os.Stdout)
	}

	reader := bufio.NewReader(os.Stdin)
	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Replace its cookies? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Cookie header (Enter to type cookies one by one): ")
	header, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read cookies: %w", err)
	}
	cookies := auth.ParseCookieHeader(header)
	if len(cookies) == 0 {
		cookies = make(map[string]string)
		for _, name := range []string{auth.CookieSessionID, auth.CookieTTWID, auth.CookieMsToken} {
			fmt.Printf("%s (Enter to skip): ", name)
			v, err := readSecret(reader)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", name, err)
			}
			if v != "" {
				cookies[name] = v
			}
		}
	}

	fmt.Print("User agent of that browser (Enter for the configured default): ")
	userAgent, _ := reader.ReadString('\n')

	account := &auth.Account{
		Name:      name,
		Cookies:   cookies,
		UserAgent: strings.TrimSpace(userAgent),
	}
	if err := manager.Store(account); err != nil {
		return err
	}

	ui.PrintSuccess("Account saved: " + name)
	if auth.IsKeyringAvailable() {
		ui.PrintDim("Stored in the system keychain, or the encrypted file if the keychain refused it.")
	} else {
		ui.PrintDim("Stored in the encrypted credentials file.")
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintWarning("No stored accounts. Run 'sharetok auth login' to add one.")
		return nil
	}

	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		masked := auth.SanitizeAccount(a)
		names := make([]string, 0, len(masked.Cookies))
		for n, v := range masked.Cookies {
			names = append(names, n+"="+v)
		}
		sort.Strings(names)
		rows = append(rows, []string{a.Name, strings.Join(names, " "), a.LastModified.Format("2006-01-02 15:04")})
	}
	ui.PrintTable([]string{"NAME", "COOKIES", "MODIFIED"}, rows)
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
