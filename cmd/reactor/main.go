package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reactor",
		Short: "Server-driven UI over a websocket",
		Long: `Reactor keeps server-side components in sync with the browser.

Each connection holds a tree of components. User events and topic
broadcasts change their state and only the changed markup is sent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		errorFormat string
		noColor     bool
	)
	root.PersistentFlags().StringVar(&errorFormat, "error-format", string(errors.StylePretty), "Error output: pretty, compact or json")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if noColor || os.Getenv("NO_COLOR") != "" {
			errors.DisableColors()
		}
		return errors.SetStyle(errors.Style(errorFormat))
	}

	root.AddCommand(serveCmd(), versionCmd())
	return root
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}
