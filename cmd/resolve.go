package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

var (
	resolveMode    string
	resolveContext []string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve \"question\"",
	Short: "Resolve a support question and create a ticket",
	Long: `Runs a resolution strategy against the knowledge base. The workflow mode
is a fixed analyze/retrieve/generate pipeline; the agent mode lets the
model search and classify iteratively with a bounded step budget.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runResolve(args[0]))
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveMode, "mode", string(ticket.ModeWorkflow), "resolution mode: workflow or agent")
	resolveCmd.Flags().StringArrayVar(&resolveContext, "context", nil, "context key=value pairs (repeatable)")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(question string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	userContext := make(map[string]string, len(resolveContext))
	for _, pair := range resolveContext {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid context pair %q, expected key=value", pair)
		}
		userContext[key] = value
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return err
	}
	provider, err := createProviderFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg, embedder, provider)
	if err != nil {
		return err
	}
	defer st.Close()

	tk, err := st.resolver.Resolve(ctx, question, userContext, resolveMode)
	if err != nil {
		return err
	}

	printTicket(tk)
	return nil
}

func printTicket(tk *ticket.Ticket) {
	fmt.Printf("Ticket %s (mode %s", tk.ID, tk.Mode)
	if tk.Category != "" {
		fmt.Printf(", category %s", tk.Category)
	}
	fmt.Println(")")

	if tk.Answer != "" {
		fmt.Printf("\n%s\n", tk.Answer)
	}
	if len(tk.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range tk.Sources {
			fmt.Printf("- %s (%s)\n", src.Title, src.Source)
		}
	}
	if len(tk.ToolLogs) > 0 {
		fmt.Println("\nTool calls:")
		for _, tl := range tk.ToolLogs {
			fmt.Printf("- step %d: %s(%s)\n", tl.Step, tl.ToolName, tl.Input)
		}
	}
}
