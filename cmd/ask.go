package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/civicdata/budget-cli/internal/engine"
	"github.com/civicdata/budget-cli/internal/store"
	"github.com/civicdata/budget-cli/pkg/anthropic"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask \"<question>\"",
	Short: "Ask a natural-language question about the loaded budget data",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := strings.Join(args, " ")

		st, err := openStoreReadOnly(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := newEngineService(st)
		resp := svc.Ask(ctx, question)

		if askJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		printResponse(resp)
		return nil
	},
}

// newEngineService wires the query pipeline from config.
func newEngineService(st store.Store) *engine.Service {
	client := anthropic.NewClient(cfg.Anthropic.Key)
	translator := engine.NewTranslator(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens,
		time.Duration(cfg.Query.TranslateTimeoutSec)*time.Second, cfg.Anthropic.RatePerMin)
	narrator := engine.NewNarrator(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens,
		time.Duration(cfg.Query.NarrateTimeoutSecs)*time.Second, cfg.Query.MaxNarrativeRows)
	return engine.NewService(st, translator, narrator, cfg.Query.ConfidenceThreshold,
		time.Duration(cfg.Query.ContextTTLMinutes)*time.Minute)
}

func printResponse(resp *engine.Response) {
	if !resp.Success {
		fmt.Printf("Could not answer: %s\n", resp.Error)
		if resp.Suggestion != "" {
			fmt.Printf("\n%s\n", resp.Suggestion)
		}
		if len(resp.Examples) > 0 {
			fmt.Println("\nTry one of these:")
			for _, ex := range resp.Examples {
				fmt.Printf("  - %s\n", ex)
			}
		}
		return
	}

	fmt.Println(resp.Answer)
	if resp.Query != nil {
		fmt.Printf("\nSQL: %s\n(type=%s confidence=%.2f)\n",
			resp.Query.SQL, resp.Query.Type, resp.Query.Confidence)
	}
	if resp.Visualization != nil && resp.Visualization.ShouldVisualize {
		fmt.Printf("Suggested chart: %s (%s vs %s)\n",
			resp.Visualization.ChartType, resp.Visualization.XField, resp.Visualization.YField)
	}
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
	rootCmd.AddCommand(askCmd)
}
