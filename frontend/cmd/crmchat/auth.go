package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wavoo-crm/crmchat/frontend/internal/render"
	"github.com/wavoo-crm/crmchat/shared/domain"
	internal_errors "github.com/wavoo-crm/crmchat/shared/errors"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, password, err := credentials(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		user, err := deps.Session.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %s", internal_errors.Message(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", userLabel(user))
		return nil
	},
}

var superLoginCmd = &cobra.Command{
	Use:   "super-login",
	Short: "Log in as super admin for /super routes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, password, err := credentials(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := deps.Session.SuperLogin(cmd.Context(), email, password); err != nil {
			return fmt.Errorf("super login failed: %s", internal_errors.Message(err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Super admin token stored")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		deps.Session.Logout()
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, superLoginCmd} {
		c.Flags().StringVarP(&loginEmail, "email", "e", "", "account email (prompted when empty)")
	}
}

// credentials takes the flag, then private.yaml, then prompts.
func credentials(in io.Reader, out io.Writer) (string, string, error) {
	email, password := cfg.Credentials()
	if loginEmail != "" && loginEmail != email {
		email, password = loginEmail, ""
	}

	reader := bufio.NewReader(in)
	if email == "" {
		fmt.Fprint(out, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("failed to read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Fprint(out, "Password: ")
		secret, err := readSecret(reader)
		fmt.Fprintln(out)
		if err != nil {
			return "", "", fmt.Errorf("failed to read password: %w", err)
		}
		password = secret
	}
	return email, password, nil
}

// readSecret reads without echo on a terminal and falls back to a plain
// line when stdin is piped.
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
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

// requireSession resumes the stored session or explains how to get one. The
// returned context ends when the server forces a logout.
func requireSession(cmd *cobra.Command) (context.Context, *domain.User, error) {
	user, err := deps.Session.Resume(cmd.Context())
	if err != nil {
		if errors.Is(err, internal_errors.ErrNotAuthenticated) {
			return nil, nil, fmt.Errorf("not logged in, run %q first", "crmchat login")
		}
		return nil, nil, fmt.Errorf("session expired: %s", internal_errors.Message(err))
	}
	ctx, cancel := context.WithCancelCause(cmd.Context())
	deps.Session.OnForcedLogout(func(reason string) {
		cancel(fmt.Errorf("logged out by server: %s", render.Text(reason)))
	})
	return ctx, user, nil
}

// sessionEnded reports why a long-running command stopped.
func sessionEnded(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func userLabel(u *domain.User) string {
	switch {
	case u.Name != "" && u.Email != "":
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	}
	return "user " + u.ID.String()
}
