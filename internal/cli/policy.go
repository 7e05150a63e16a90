package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	policyCmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and tune recall policies",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current policies",
		Run:   runPolicyShow,
	}

	setThreshold := &cobra.Command{
		Use:   "set-threshold [value]",
		Short: "Set the minimum recall score",
		Args:  cobra.ExactArgs(1),
		Run:   runPolicySetThreshold,
	}

	setTopK := &cobra.Command{
		Use:   "set-topk [value]",
		Short: "Set the recall result limit",
		Args:  cobra.ExactArgs(1),
		Run:   runPolicySetTopK,
	}

	exclude := &cobra.Command{
		Use:   "exclude [pattern]",
		Short: "Exclude content matching a pattern from recall",
		Long:  "Pattern is a case-insensitive substring, or a regex wrapped in slashes.",
		Args:  cobra.ExactArgs(1),
		Run:   runPolicyExclude,
	}
	exclude.Flags().String("reason", "", "Why this pattern is excluded")

	include := &cobra.Command{
		Use:   "include [pattern]",
		Short: "Remove an exclusion rule",
		Args:  cobra.ExactArgs(1),
		Run:   runPolicyInclude,
	}

	policyCmd.AddCommand(show, setThreshold, setTopK, exclude, include)
	RootCmd.AddCommand(policyCmd)
}

func runPolicyShow(cmd *cobra.Command, args []string) {
	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}
	m := b.Policies()

	out, _ := json.MarshalIndent(map[string]any{
		"recall":     m.Recall(),
		"scoring":    m.Scoring(),
		"exclusions": m.Exclusions(),
	}, "", "  ")
	fmt.Println(string(out))
}

func runPolicySetThreshold(cmd *cobra.Command, args []string) {
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		exitErr("parse threshold", err)
	}
	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}
	if err := b.Policies().UpdateRecallThreshold(v); err != nil {
		exitErr("set threshold", err)
	}
	fmt.Printf("{\"min_score\": %g}\n", b.Policies().Recall().MinScore)
}

func runPolicySetTopK(cmd *cobra.Command, args []string) {
	k, err := strconv.Atoi(args[0])
	if err != nil {
		exitErr("parse top-k", err)
	}
	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}
	if err := b.Policies().UpdateTopK(k); err != nil {
		exitErr("set top-k", err)
	}
	fmt.Printf("{\"top_k\": %d}\n", b.Policies().Recall().TopK)
}

func runPolicyExclude(cmd *cobra.Command, args []string) {
	reason, _ := cmd.Flags().GetString("reason")
	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}
	if err := b.Policies().AddExclusionRule(args[0], reason); err != nil {
		exitErr("exclude", err)
	}
	fmt.Printf("{\"excluded\": %q}\n", args[0])
}

func runPolicyInclude(cmd *cobra.Command, args []string) {
	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}
	if err := b.Policies().RemoveExclusionRule(args[0]); err != nil {
		exitErr("include", err)
	}
	fmt.Printf("{\"included\": %q}\n", args[0])
}
