package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var searchTopK int

var searchCmd = &cobra.Command{
	Use:   "search \"query\"",
	Short: "Search the knowledge base",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runSearch(args[0]))
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(query string) error {
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

	ctx := context.Background()
	st, err := openStores(ctx, cfg, embedder, provider)
	if err != nil {
		return err
	}
	defer st.Close()

	k := cfg.Search.TopK
	if searchTopK > 0 {
		k = searchTopK
	}

	results, err := st.searcher.Search(ctx, query, k)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "No results. Run `helpdesk ingest` to build the knowledge base.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (%s, distance %.4f)\n", i+1, r.Document.Title, r.Document.Source, r.Distance)
		fmt.Printf("   %s\n\n", r.Text)
	}
	return nil
}
