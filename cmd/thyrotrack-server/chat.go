package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/thyrotrack/thyrotrack/internal/relay"
)

func chatCmd() *cobra.Command {
	var (
		relayURL     string
		noContext    bool
		systemPrompt string
	)
	cmd := &cobra.Command{
		Use:   "chat <question>",
		Short: "Ask the recipe assistant through a running relay",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			if relayURL == "" {
				relayURL = cfg.RelayURL
			}

			req := relay.ChatRequest{
				Messages: []relay.Message{{Role: "user", Content: strings.Join(args, " ")}},
			}
			if systemPrompt != "" {
				req.SystemPrompt = &systemPrompt
			}
			if !noContext {
				store, backend, err := openRecords(commandContext(cmd), cfg, logger, nil)
				if err != nil {
					return err
				}
				healthContext := store.HealthContext()
				backend.Close()
				req.HealthContext = &healthContext
			}

			client := relay.NewClient(relayURL, &http.Client{Timeout: cfg.LLMTimeout})
			return askRelay(commandContext(cmd), cmd.OutOrStdout(), client, req, logger)
		},
	}
	cmd.Flags().StringVar(&relayURL, "url", "", "Relay endpoint (default RELAY_URL)")
	cmd.Flags().BoolVar(&noContext, "no-context", false, "Do not attach the latest thyroid panel")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "Override the relay's system prompt")
	return cmd
}

// askRelay prints the assistant's reply. Relay failures still print the
// canned apology and are only logged.
func askRelay(ctx context.Context, w io.Writer, client *relay.Client, req relay.ChatRequest, logger zerolog.Logger) error {
	reply, err := client.Reply(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("relay request failed")
	}
	_, werr := fmt.Fprintln(w, reply)
	return werr
}
