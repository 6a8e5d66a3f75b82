package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Andasbek/ShkolaAI/internal/db"
	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

var ticketLimit int

var ticketCmd = &cobra.Command{
	Use:   "ticket [id]",
	Short: "Show a ticket, or list recent tickets",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		exitOnError(runTicket(id))
	},
}

func init() {
	ticketCmd.Flags().IntVar(&ticketLimit, "limit", 20, "number of tickets to list")
	rootCmd.AddCommand(ticketCmd)
}

// runTicket only needs the database, so it skips provider construction and
// works without API keys.
func runTicket(id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.Open(filepath.Join(cfg.DataDir, "helpdesk.db"))
	if err != nil {
		return err
	}
	defer database.Close()

	store := ticket.NewStore(database)
	ctx := context.Background()

	if id != "" {
		tk, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		printTicket(tk)
		return nil
	}

	tickets, err := store.List(ctx, ticketLimit)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		fmt.Println("No tickets yet.")
		return nil
	}
	for _, tk := range tickets {
		category := tk.Category
		if category == "" {
			category = "-"
		}
		fmt.Printf("%s  %-8s  %-12s  %s\n", tk.ID, tk.Mode, category, tk.Question)
	}
	return nil
}
