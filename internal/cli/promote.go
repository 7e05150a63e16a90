package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote eligible memories to wider scopes",
		Long: "Copy reused or reliable session memories to the project partition,\n" +
			"and proven project memories to the global one. Originals stay put.",
		Run: runPromote,
	}
	RootCmd.AddCommand(cmd)
}

func runPromote(cmd *cobra.Command, args []string) {
	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}

	stats, err := b.PromoteEligible(cmd.Context())
	if err != nil {
		exitErr("promote", err)
	}

	out, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(out))
}
