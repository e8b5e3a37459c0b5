package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// newUploadCmd creates the upload subcommand.
func newUploadCmd() *cobra.Command {
	var (
		follow bool
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document and generate a flashcard deck",
		Long: `Upload sends a text, markdown, or PDF document to the server and starts
card generation. With --follow (the default) the command stays attached
to the job's event stream and prints cards as they are generated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			accepted, err := api.Upload(ctx, args[0])
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			if outputJSON && !follow {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(accepted)
			}

			if !outputJSON {
				color.New(color.FgGreen).Printf("✓ Upload accepted\n")
				fmt.Printf("  Deck: %s\n", accepted.Title)
				fmt.Printf("  Job ID: %s\n", accepted.JobID)
			}

			if !follow {
				return nil
			}
			return followJob(ctx, accepted.JobID, quiet)
		},
	}

	cmd.Flags().BoolVar(&follow, "follow", true, "stay attached to the job's event stream")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-card output, show only progress")

	return cmd
}

// followJob attaches to the event stream and renders it until the job
// reaches a terminal state.
func followJob(ctx context.Context, jobID string, quiet bool) error {
	var (
		bar       *progressbar.ProgressBar
		cardCount int
		failed    error
	)

	if !outputJSON {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("generating"),
			progressbar.OptionSetWidth(32),
			progressbar.OptionClearOnFinish(),
		)
	}

	err := api.FollowEvents(ctx, jobID, func(event StreamEvent) error {
		if outputJSON {
			line, err := json.Marshal(map[string]any{"type": event.Type, "data": event.Data})
			if err != nil {
				return err
			}
			fmt.Println(string(line))
			if event.Type == "error" {
				failed = fmt.Errorf("generation failed")
			}
			return nil
		}

		switch event.Type {
		case "status":
			var status struct {
				Status   string `json:"status"`
				Progress int    `json:"progress"`
			}
			if err := json.Unmarshal(event.Data, &status); err != nil {
				return err
			}
			bar.Describe(status.Status)
			bar.Set(status.Progress)
		case "card":
			var payload struct {
				Card struct {
					Seq      int    `json:"seq"`
					Question string `json:"question"`
					Answer   string `json:"answer"`
				} `json:"card"`
			}
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				return err
			}
			cardCount++
			if !quiet {
				bar.Clear()
				color.New(color.FgCyan).Printf("  %d. %s\n", payload.Card.Seq+1, payload.Card.Question)
				fmt.Printf("     %s\n", payload.Card.Answer)
			}
		case "complete":
			var payload struct {
				TotalCards int `json:"total_cards"`
			}
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				return err
			}
			bar.Finish()
			color.New(color.FgGreen).Printf("✓ Deck completed with %d cards\n", payload.TotalCards)
		case "error":
			var payload struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				return err
			}
			bar.Clear()
			color.New(color.FgRed).Printf("✗ Generation failed [%s]: %s\n", payload.Kind, payload.Message)
			failed = fmt.Errorf("generation failed: %s", payload.Kind)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return failed
}
