package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
	rootCmd    = &cobra.Command{
		Use:   "orbit",
		Short: "Orbit - autonomous multi-cycle job orchestrator",
		Long: `Orbit runs long-lived jobs against repository branches. Each job loops
through work cycles: discover the next tasks from the plan, execute them
with bounded parallelism, converge the results, and update the plan, until
the work is done or a configured limit is reached.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "orbit server URL (defaults to the configured host and port)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
