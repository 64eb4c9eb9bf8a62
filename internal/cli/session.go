package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/ispwatch/internal/wire"
)

// SessionCmd returns the session command
func SessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the saved portal session",
	}

	cmd.AddCommand(sessionSaveCmd())
	cmd.AddCommand(sessionClearCmd())

	return cmd
}

func sessionSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Sign in interactively and save the session",
		Long: `Open a visible browser on the portal sign-in page. Clear the challenge and
sign in; the session is saved once the portal shows you as signed in, so
later unattended runs can reuse it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := wire.Orchestrator()
			if err != nil {
				return err
			}
			if err := orch.SaveSession(cmd.Context()); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Session saved")
			return nil
		},
	}
}

func sessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := wire.Orchestrator()
			if err != nil {
				return err
			}
			if err := orch.ClearSession(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Session cleared")
			return nil
		},
	}
}
