// Package main provides the card engine CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL  string
	principal  string
	outputJSON bool

	api *APIClient
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "card-engine-cli",
	Short: "Card engine CLI for uploading documents and browsing decks",
	Long: `Card engine CLI talks to a running card-engine-api server.

Use this tool to:
- Upload a document and watch cards being generated live
- List and inspect generated decks
- Delete decks
- Synthesize a quiz question from a deck's cards

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; flags and environment take precedence.
		_ = godotenv.Load()

		if serverURL == "" {
			serverURL = os.Getenv("CARD_ENGINE_URL")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8086"
		}
		if principal == "" {
			principal = os.Getenv("CARD_ENGINE_PRINCIPAL")
		}

		api = NewAPIClient(serverURL, principal)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "card-engine-api base URL (default: CARD_ENGINE_URL or http://localhost:8086)")
	rootCmd.PersistentFlags().StringVar(&principal, "principal", "", "principal name sent as X-Principal")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDecksCmd())
	rootCmd.AddCommand(newQuizCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("card-engine-cli v0.1.0")
		},
	}
}
