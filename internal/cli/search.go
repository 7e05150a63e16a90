package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/membroker/internal/broker"
	"github.com/rcliao/membroker/internal/model"
	"github.com/rcliao/membroker/internal/scoring"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by keyword or similarity",
		Long:  "Search visible memories. Other sessions are never searched.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().String("scope", "", "Filter by scope")
	cmd.Flags().StringP("agent", "a", "", "Filter by source agent")
	cmd.Flags().StringP("type", "t", "", "Filter by memory type")
	cmd.Flags().IntP("limit", "l", 10, "Max results")
	cmd.Flags().String("tool", "", "Current tool name, for recall ranking")
	cmd.Flags().String("role", "", "Consuming agent role, for recall ranking")
	cmd.Flags().Bool("rank", false, "Rank by recall score instead of recency")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	agent, _ := cmd.Flags().GetString("agent")
	memType, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	tool, _ := cmd.Flags().GetString("tool")
	role, _ := cmd.Flags().GetString("role")
	rank, _ := cmd.Flags().GetBool("rank")

	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}

	params := broker.SearchParams{
		Query:       strings.Join(args, " "),
		Scope:       model.Scope(scope),
		Agent:       model.Agent(agent),
		Type:        model.Type(memType),
		Limit:       limit,
		UseSemantic: true, // no-op unless the broker has an index
	}
	if rank || tool != "" || role != "" {
		sctx := scoring.NewContext()
		sctx.ToolName = tool
		sctx.AgentRole = role
		sctx.SessionID = b.SessionID()
		params.ScoringCtx = sctx
	}

	results, err := b.Search(cmd.Context(), params)
	if err != nil {
		exitErr("search", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(out))
}
