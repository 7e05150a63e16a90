package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired memories",
		Long:  "Delete events whose TTL has elapsed, across every partition.",
		Run:   runCleanup,
	}
	RootCmd.AddCommand(cmd)
}

func runCleanup(cmd *cobra.Command, args []string) {
	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}

	removed, err := b.CleanupExpired(cmd.Context())
	if err != nil {
		exitErr("cleanup", err)
	}
	fmt.Printf("{\"removed\": %d}\n", removed)
}
