package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	cardsync "github.com/conorfennell/flashstudy/internal/sync"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Import cards from every source",
		Long: `Clone or pull git sources, then reconcile the cards of every source
with its markdown files. Cards whose text changed get a new ID; cards that
disappeared are deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := setup(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			reports, err := cardsync.Run(cmd.Context(), db, cfg.ReposDir)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tPARSED\tINSERTED\tDELETED\tERRORS")
			for _, r := range reports {
				fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n", r.SourceID, r.Parsed, r.Inserted, r.Deleted, r.Errors)
			}
			return w.Flush()
		},
	}
}

func addSourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-source [path or git url]",
		Short: "Register a directory or git repository of decks",
		Example: `  flashstudy add-source ./decks
  flashstudy add-source https://github.com/user/decks.git`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := setup(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := cardsync.AddSource(db, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Added source %d: %s\n", id, args[0])
			return nil
		},
	}
}

func dueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "Show how many cards each deck has due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := setup(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			decks, err := db.Decks(time.Now())
			if err != nil {
				return err
			}
			if len(decks) == 0 {
				fmt.Println("No decks. Add a source and run sync.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DECK\tCARDS\tDUE")
			for _, d := range decks {
				fmt.Fprintf(w, "%s\t%d\t%d\n", d.Name, d.CardCount, d.DueCount)
			}
			return w.Flush()
		},
	}
}
