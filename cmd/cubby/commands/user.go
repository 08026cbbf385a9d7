package commands

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cubbyfs/cubby/pkg/config"
	"github.com/cubbyfs/cubby/pkg/identity"
)

// User management operates on the user database directly and must run while
// the server is stopped; concurrent edits from two processes would race on
// the database file.

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
	Long: `Manage cubby user accounts in the local user database.

Run these commands while the server is stopped.

Examples:
  cubby user add alice
  cubby user list
  cubby user passwd alice
  cubby user delete alice`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a new user (prompts for password)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openUserStore()
		if err != nil {
			return err
		}

		password, err := promptPassword("Password: ", true)
		if err != nil {
			return err
		}

		user, err := store.CreateUser(args[0], password, userEmail)
		if err != nil {
			return err
		}
		fmt.Printf("User %q created (id: %s)\n", user.Username, user.ID)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openUserStore()
		if err != nil {
			return err
		}

		users := store.ListUsers()
		sort.Slice(users, func(i, j int) bool {
			return identity.NormalizeUsername(users[i].Username) < identity.NormalizeUsername(users[j].Username)
		})

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-20s %-38s %-8s %s\n", "USERNAME", "ID", "ROLE", "LAST LOGIN")
		for _, u := range users {
			lastLogin := "never"
			if !u.LastLoginAt.IsZero() {
				lastLogin = u.LastLoginAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%-20s %-38s %-8s %s\n", u.Username, u.ID, u.Role, lastLogin)
		}
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:     "passwd <username>",
	Aliases: []string{"password"},
	Short:   "Change a user's password",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openUserStore()
		if err != nil {
			return err
		}

		password, err := promptPassword("New password: ", true)
		if err != nil {
			return err
		}

		if err := store.SetPassword(args[0], password); err != nil {
			return err
		}
		fmt.Printf("Password changed for %q\n", args[0])
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:     "delete <username>",
	Aliases: []string{"remove"},
	Short:   "Delete a user account",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openUserStore()
		if err != nil {
			return err
		}

		if err := store.DeleteUser(args[0]); err != nil {
			return err
		}
		fmt.Printf("User %q deleted\n", args[0])
		return nil
	},
}

var userEmail string

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address for the new user")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userPasswdCmd)
	userCmd.AddCommand(userDeleteCmd)
}

// openUserStore opens the user database at the configured data path. CLI
// user management stays quiet: store logs go to stderr at warn and above.
func openUserStore() (*identity.Store, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return identity.NewStore(cfg.Storage.DataPath, log)
}

// promptPassword reads a password without echo, optionally asking twice.
func promptPassword(prompt string, confirm bool) (string, error) {
	password, err := readSecret(prompt)
	if err != nil {
		return "", err
	}
	if err := identity.ValidatePassword(password); err != nil {
		return "", err
	}

	if confirm {
		again, err := readSecret("Confirm password: ")
		if err != nil {
			return "", err
		}
		if password != again {
			return "", fmt.Errorf("passwords do not match")
		}
	}
	return password, nil
}

func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(secret), nil
	}

	// Not a terminal (tests, pipes): read one line.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
