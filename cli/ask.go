package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/compozy/techrag/engine/agent"
	"github.com/compozy/techrag/pkg/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	cmd.Flags().Bool("json", false, "Print the full result as JSON")
	cmd.Flags().String("format", formatAuto, "Output format: auto, text or json (auto prints JSON when stdout is not a terminal)")
	cmd.Flags().StringSlice("seed", nil, "YAML document files to ingest before answering")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newAgentRuntime(ctx, config.FromContext(ctx))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()
	seeds, _ := cmd.Flags().GetStringSlice("seed")
	if err := rt.seed(ctx, seeds); err != nil {
		return err
	}
	answer, err := rt.orchestrator.Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if wantsJSON(cmd) {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}
	return printAnswer(cmd.OutOrStdout(), answer)
}

const (
	formatAuto = "auto"
	formatText = "text"
	formatJSON = "json"
)

func wantsJSON(cmd *cobra.Command) bool {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return true
	}
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case formatJSON:
		return true
	case formatText:
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

func printAnswer(w io.Writer, a *agent.Answer) error {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(a.Answer))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Confidence: %.0f%%\n", a.Confidence*100)
	if len(a.Sources) > 0 {
		b.WriteString("Sources:\n")
		for i, s := range a.Sources {
			label := s.Key
			if s.Title != "" {
				label = s.Title + " (" + s.Key + ")"
			}
			marker := " "
			if s.Cited {
				marker = "*"
			}
			fmt.Fprintf(&b, " %s %d. %s  relevance %.2f\n", marker, i+1, label, s.Relevance)
		}
	}
	m := a.Metrics
	fmt.Fprintf(&b, "Steps: %s (%d iterations, %.2fs)\n", joinSteps(m.NodesVisited), m.Iterations, m.ProcessingTime)
	_, err := io.WriteString(w, b.String())
	return err
}

func joinSteps(steps []agent.StepName) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, " -> ")
}
