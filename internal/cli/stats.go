package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics",
		Run:   runStats,
	}
	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}

	s, err := b.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	out, _ := json.MarshalIndent(s, "", "  ")
	fmt.Println(string(out))
}
