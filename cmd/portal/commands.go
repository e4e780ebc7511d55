package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"pickup-portal/client/internal/logging"
	"pickup-portal/client/internal/session"
	userdomain "pickup-portal/client/internal/user/domain"
	"pickup-portal/client/internal/wizard"
	"pickup-portal/client/internal/wizard/tui"
)

func newLoginCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with an OTP and finish any missing profile steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// The callback may run on a command goroutine while the TUI owns the terminal,
			// so it only records completion.
			var completed atomic.Bool
			wiz := wizard.New(a.client, a.store,
				wizard.WithLogger(a.logger),
				wizard.WithOnComplete(func() { completed.Store(true) }),
			)
			model := tui.New(ctx, wiz)
			if _, err := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(cmd.OutOrStdout())).Run(); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if msg := loginMessage(completed.Load(), model.State().Outcome); msg != "" {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			return nil
		},
	}
}

// loginMessage is printed after the TUI exits.
func loginMessage(completed bool, outcome wizard.Outcome) string {
	switch {
	case completed:
		return "Your profile is complete."
	case outcome == wizard.OutcomeSessionExpired:
		return "Your session expired. Run `portal login` to sign in again."
	case outcome == wizard.OutcomeCancelled:
		return "Cancelled."
	default:
		return ""
	}
}

type statusView struct {
	Authenticated    bool       `json:"authenticated"`
	Status           string     `json:"status,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Name             string     `json:"name,omitempty"`
	RefreshExpiresAt *time.Time `json:"refreshExpiresAt,omitempty"`
}

func newStatusCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := a.store.Snapshot()
			v := statusView{Authenticated: snap.IsAuthenticated, Status: a.store.Status().String()}
			if snap.User != nil {
				if snap.User.PhoneNumber != "" {
					v.Phone = logging.MaskPhone(snap.User.PhoneNumber)
				}
				v.Name = snap.User.Name
			}
			if !snap.RefreshExpiresAt.IsZero() {
				t := snap.RefreshExpiresAt
				v.RefreshExpiresAt = &t
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			if !v.Authenticated {
				fmt.Fprintln(out, "Not signed in.")
			} else {
				fmt.Fprintf(out, "Signed in as %s %s\n", v.Name, v.Phone)
				fmt.Fprintf(out, "Profile status: %s\n", statusLabel(a.store.Status()))
			}
			if v.RefreshExpiresAt != nil {
				fmt.Fprintf(out, "Refresh token expires %s\n", v.RefreshExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func statusLabel(s userdomain.Status) string {
	if s == userdomain.StatusUnset {
		return "unknown"
	}
	return s.String()
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.store.Refresh(cmd.Context())
			switch {
			case errors.Is(err, session.ErrNoRefreshToken):
				return errors.New("no refresh token stored; run `portal login`")
			case err != nil:
				return fmt.Errorf("refresh failed, session cleared: %w", err)
			}
			out := cmd.OutOrStdout()
			if a.store.IsAuthenticated() {
				fmt.Fprintln(out, "Access token refreshed.")
			} else {
				fmt.Fprintln(out, "Access token refreshed; run `portal login` to load your profile.")
			}
			return nil
		},
	}
}
