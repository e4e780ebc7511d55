// portal is the customer portal client: OTP sign-in and progressive profile completion in
// the terminal, with the session kept between runs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	a := &app{}
	err := newRootCommand(a).Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:           "portal",
		Short:         "Sign in and complete your pickup profile",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return a.open(ctx, logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	cmd.AddCommand(newLoginCommand(a))
	cmd.AddCommand(newStatusCommand(a))
	cmd.AddCommand(newLogoutCommand(a))
	cmd.AddCommand(newRefreshCommand(a))
	return cmd
}
