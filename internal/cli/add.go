package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/membroker/internal/broker"
	"github.com/rcliao/membroker/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "add [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runAdd,
	}

	cmd.Flags().StringP("type", "t", "preference", "Memory type: observation, decision, plan, artifact, preference, workflow, error, research")
	cmd.Flags().String("scope", "", "Scope: session, project, user, agent, public (default: by type)")
	cmd.Flags().StringP("agent", "a", "claude", "Source agent")
	cmd.Flags().StringP("context", "c", "", "Context or rationale")
	cmd.Flags().String("tags", "", "Comma-separated tags")
	cmd.Flags().Float64("confidence", 1.0, "Confidence in [0,1]")
	cmd.Flags().Int("ttl", 0, "Time to live in days (0 = forever)")
	cmd.Flags().String("meta", "", "JSON metadata object")

	RootCmd.AddCommand(cmd)
}

func runAdd(cmd *cobra.Command, args []string) {
	memType, _ := cmd.Flags().GetString("type")
	scope, _ := cmd.Flags().GetString("scope")
	agent, _ := cmd.Flags().GetString("agent")
	contextStr, _ := cmd.Flags().GetString("context")
	tagsStr, _ := cmd.Flags().GetString("tags")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	ttl, _ := cmd.Flags().GetInt("ttl")
	metaStr, _ := cmd.Flags().GetString("meta")

	// Content: positional arg first, then stdin.
	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("add", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	var metadata map[string]any
	if metaStr != "" {
		if err := json.Unmarshal([]byte(metaStr), &metadata); err != nil {
			exitErr("parse --meta", err)
		}
	}

	params := broker.AddParams{
		Content:    strings.TrimSpace(content),
		Type:       model.Type(memType),
		Scope:      model.Scope(scope),
		Agent:      model.Agent(agent),
		Context:    contextStr,
		Confidence: &confidence,
		Tags:       splitTags(tagsStr),
		Metadata:   metadata,
	}
	if ttl > 0 {
		params.TTLDays = &ttl
	}

	b, err := openBroker()
	if err != nil {
		exitErr("open broker", err)
	}
	e, err := b.Add(cmd.Context(), params, nil)
	if err != nil {
		exitErr("add", err)
	}

	out, _ := json.Marshal(e)
	fmt.Println(string(out))
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
