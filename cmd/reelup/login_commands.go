package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"reelup/internal/session"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login [email]",
		Short: "Sign in and remember the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := ctx.openSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			input := bufio.NewReader(cmd.InOrStdin())

			email := ""
			if len(args) == 1 {
				email = strings.TrimSpace(args[0])
			} else {
				fmt.Fprint(cmd.ErrOrStderr(), "Email: ")
				if email, err = readLine(input); err != nil {
					return err
				}
			}

			provider, err := sess.Provider(email)
			if err != nil {
				return err
			}
			password := ""
			if provider == session.ProviderPassword {
				if password, err = promptPassword(cmd, input); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), "Opening the browser to sign in...")
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := sess.Login(signalCtx, email, password); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", sess.Email())
			if sess.ProjectID() == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Pick a destination with `reelup projects` and `reelup use --project ID`")
			}
			return nil
		},
	}
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, err := ctx.openSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			sess.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

// promptPassword reads without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func promptPassword(cmd *cobra.Command, input *bufio.Reader) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	if file, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		secret, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(secret), nil
	}
	return readLine(input)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
