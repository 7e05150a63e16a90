package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/membroker/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent memories",
		Run:   runList,
	}

	cmd.Flags().String("scope", "", "Filter by scope")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	limit, _ := cmd.Flags().GetInt("limit")

	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}

	results, err := b.List(cmd.Context(), model.Scope(scope), limit)
	if err != nil {
		exitErr("list", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(out))
}
