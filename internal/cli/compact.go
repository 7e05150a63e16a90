package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/membroker/internal/compact"
)

func init() {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Compact memory partitions",
		Long: "Deduplicate and age memory partitions: recent events stay verbatim,\n" +
			"old ones collapse into summaries.",
		Run: runCompact,
	}

	cmd.Flags().String("only-session", "", "Compact a single session partition")

	RootCmd.AddCommand(cmd)
}

func runCompact(cmd *cobra.Command, args []string) {
	onlySession, _ := cmd.Flags().GetString("only-session")

	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}

	w := compact.NewWorker()
	if onlySession != "" {
		summary, err := w.CompactSession(b.SessionPartition(onlySession))
		if err != nil {
			exitErr("compact", err)
		}
		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(out))
		return
	}

	stats, err := w.CompactAll(b.PartitionFiles())
	if err != nil {
		exitErr("compact", err)
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(out))
}
