// Command irsqlc is a golden-fixture dump harness for the compiler: it
// builds a small fixed set of representative IR trees in Go (rather than
// parsing an external IR format, which is out of scope — see dump.go)
// and prints their compiled SQL. Grounded on the teacher's
// cmd/melange/main.go + root.go cobra wiring, trimmed to the two
// subcommands this harness needs (dump and version).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "irsqlc",
		Short:         "IR-to-PostgreSQL-SQL compiler fixture harness",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(dumpCmd())
	root.AddCommand(versionCmd())
	return root
}
