package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/ispwatch/internal/cli"
	"github.com/example/ispwatch/internal/version"
	"github.com/example/ispwatch/internal/wire"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "ispwatch",
		Short:   "ispwatch - measure your connection and file FCC complaints when it falls short",
		Version: version.String(),
		Long: `ispwatch runs a speed test, records it, and compares it with the speed you pay for.
When the connection is below threshold it files one FCC consumer complaint per day
through the complaint portal. A human clears the portal's challenge.`,
	}

	result := cli.BindRoot(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(cli.ExportCmd())
	rootCmd.AddCommand(cli.SessionCmd())
	rootCmd.AddCommand(cli.VersionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	wire.Close()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(result.Code)
}
