package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tablekit",
	Short: "Session pool, retries and keyset pagination for transactional tables",
	Long: `tablekit runs statements against a transactional table service through a
bounded session pool, retrying transient failures, and walks tables page by
page with keyset pagination over compound primary keys.

The PostgreSQL backend is selected with a connection string:
  --connection, $TABLEKIT_CONNECTION, or 'connection' in tablekit.yaml.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or parameters
  11 - Connection failed
  12 - Statement or parameters rejected
  13 - Service unavailable through all retries
  14 - Non-idempotent statement with unknown outcome
  15 - Pagination protocol violation or page limit exceeded`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo()
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	rootCmd.PersistentFlags().String("log-format", "",
		"Log format: plain (default), console or json\n"+
			"Overrides log_format in tablekit.yaml")
	rootCmd.PersistentFlags().String("config-dir", ".",
		"Directory containing tablekit.yaml")
	rootCmd.PersistentFlags().String("connection", "",
		"PostgreSQL connection string (URI or key=value format)\n"+
			"Precedence: --connection > $TABLEKIT_CONNECTION > tablekit.yaml")
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}

func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}
	return v
}
