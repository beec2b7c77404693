package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RequireTable validates that exactly one table argument is provided.
// Returns a helpful error message with usage and examples if missing or too many.
func RequireTable(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf(`missing required argument: <table>

Usage: %s

Example:
  %s schools --key city:string,number:int32`, cmd.UseLine(), cmd.CommandPath())
	}
	if len(args) > 1 {
		return fmt.Errorf("accepts 1 arg(s), received %d", len(args))
	}
	return nil
}

// RequireStatement validates that exactly one statement argument is provided.
func RequireStatement(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf(`missing required argument: <statement>

Usage: %s

Example:
  %s 'SELECT * FROM schools WHERE city = @city' --param city=Moscow`, cmd.UseLine(), cmd.CommandPath())
	}
	if len(args) > 1 {
		return fmt.Errorf("accepts 1 arg(s), received %d (quote the statement)", len(args))
	}
	return nil
}
