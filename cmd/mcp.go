package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Andasbek/ShkolaAI/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long: `Exposes kb_search, resolve_question and get_ticket as MCP tools so AI
agents can use the helpdesk directly. Protocol messages go over stdout;
logs go to stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runMCP())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return err
	}
	provider, err := createProviderFromConfig(cfg)
	if err != nil {
		return err
	}

	st, err := openStores(context.Background(), cfg, embedder, provider)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := mcp.NewServer(st.searcher, st.resolver, st.tickets, cfg.Search.TopK)
	return srv.Serve()
}
