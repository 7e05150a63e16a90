package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Assemble a context block under a token budget",
		Long: "Fill a token budget with the most important matching memories,\n" +
			"split across session, project, and user scopes by weight.",
		Run: runContext,
	}

	cmd.Flags().IntP("budget", "b", 2000, "Token budget")
	cmd.Flags().String("weights", "", "Scope weights, e.g. session=0.4,project=0.4,user=0.2")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	budget, _ := cmd.Flags().GetInt("budget")
	weightsStr, _ := cmd.Flags().GetString("weights")

	weights, err := parseWeights(weightsStr)
	if err != nil {
		exitErr("parse --weights", err)
	}

	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}

	results, err := b.SearchWithBudget(cmd.Context(), strings.Join(args, " "), budget, weights)
	if err != nil {
		exitErr("context", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(out))
}

// parseWeights turns "session=0.4,project=0.4,user=0.2" into a map.
// Empty input means defaults.
func parseWeights(s string) (map[string]float64, error) {
	if s == "" {
		return nil, nil
	}
	weights := map[string]float64{}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("bad weight %q, want scope=value", part)
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad weight value %q: %w", kv[1], err)
		}
		weights[kv[0]] = v
	}
	return weights, nil
}
