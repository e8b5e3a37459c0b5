package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// newDecksCmd creates the decks subcommand group.
func newDecksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decks",
		Short: "List, inspect, and delete flashcard decks",
	}

	cmd.AddCommand(newDecksListCmd())
	cmd.AddCommand(newDecksShowCmd())
	cmd.AddCommand(newDecksDeleteCmd())

	return cmd
}

// newDecksListCmd creates the decks list subcommand.
func newDecksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your decks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			decks, err := api.ListDecks(ctx)
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(decks)
			}

			if len(decks) == 0 {
				fmt.Println("No decks yet. Upload a document to create one.")
				return nil
			}

			for _, deck := range decks {
				statusColor := color.New(color.FgYellow)
				switch deck.Status {
				case "completed":
					statusColor = color.New(color.FgGreen)
				case "error":
					statusColor = color.New(color.FgRed)
				}
				fmt.Printf("%s  %s  ", deck.ID, deck.CreatedAt.Local().Format("2006-01-02 15:04"))
				statusColor.Printf("%-10s", deck.Status)
				fmt.Printf("  %3d cards  %s\n", deck.CardCount, deck.Title)
			}
			return nil
		},
	}
}

// newDecksShowCmd creates the decks show subcommand.
func newDecksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <deck-id>",
		Short: "Show a deck's cards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			deck, err := api.GetDeck(ctx, args[0])
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(deck)
			}

			fmt.Printf("%s (%s, %d cards)\n\n", deck.Title, deck.Status, len(deck.Cards))
			for _, card := range deck.Cards {
				color.New(color.FgCyan).Printf("%d. %s\n", card.Seq+1, card.Question)
				fmt.Printf("   %s\n", card.Answer)
			}
			return nil
		},
	}
}

// newDecksDeleteCmd creates the decks delete subcommand.
func newDecksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <deck-id>",
		Short: "Delete a deck, canceling its job if still running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := api.DeleteDeck(ctx, args[0]); err != nil {
				return err
			}

			if !outputJSON {
				color.New(color.FgGreen).Printf("✓ Deck %s deleted\n", args[0])
			}
			return nil
		},
	}
}

// newQuizCmd creates the quiz subcommand.
func newQuizCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "quiz <deck-id>",
		Short: "Synthesize a multiple-choice question from a deck",
		Long: `Quiz picks the first few cards of a deck and asks the server to turn
them into one multiple-choice question.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			deck, err := api.GetDeck(ctx, args[0])
			if err != nil {
				return err
			}
			if len(deck.Cards) == 0 {
				return fmt.Errorf("deck has no cards yet")
			}

			cards := deck.Cards
			if count > 0 && count < len(cards) {
				cards = cards[:count]
			}

			quiz, err := api.SynthesizeQuiz(ctx, cards)
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(quiz)
			}

			fmt.Printf("%s\n\n", quiz.Prompt)
			for _, label := range []string{"A", "B", "C", "D", "E", "F"} {
				if text, ok := quiz.Options[label]; ok {
					fmt.Printf("  %s. %s\n", label, text)
				}
			}
			fmt.Println()
			color.New(color.FgGreen).Printf("Answer: %s\n", quiz.Correct)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "cards", "n", 5, "number of cards to base the question on (max 5)")

	return cmd
}
