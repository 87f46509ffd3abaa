package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/salescode-agent/server/internal/agent/graph"
	"github.com/salescode-agent/server/internal/agent/graph/conversations"
	"github.com/salescode-agent/server/internal/agent/graph/nodes"
	"github.com/salescode-agent/server/internal/agent/model"
	"github.com/salescode-agent/server/internal/agent/repo"
	"github.com/salescode-agent/server/internal/agent/tools"
	"github.com/salescode-agent/server/internal/catalog"
	logx "github.com/salescode-agent/server/pkg/logger"
)

const apologyMessage = "Sorry, something went wrong while handling that. Please try again."

var conversationID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the sales agent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appCfg
		if err := cfg.ValidateChat(); err != nil {
			return err
		}

		rdb, err := optionalRedis(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer rdb.Close()

		genaiClient, err := genaiClientFor(ctx, cfg, true)
		if err != nil {
			return err
		}

		store, err := openIndex(cfg, rdb, genaiClient)
		if err != nil {
			return err
		}
		defer store.Close()

		if n, err := store.Count(ctx); err == nil && n == 0 {
			logx.Warn().Str("collection", store.Collection()).Msg("Index is empty, run `salesagent index` first")
		}

		client, err := catalog.NewClient(cfg.Catalog)
		if err != nil {
			return err
		}

		registry, err := tools.NewRegistry(tools.Deps{
			Retriever: store,
			Catalog:   client,
			Ledger:    repo.NewRedisProductLedger(rdb, cfg.Conversation.TTL),
			Config:    cfg.Tools,
		})
		if err != nil {
			return err
		}

		chatModel, err := nodes.NewGeminiChatModel(ctx, genaiClient, cfg.ChatModel)
		if err != nil {
			return err
		}

		convRepo := repo.NewRedisConversationRepository(rdb, cfg.Conversation.TTL)
		runner, err := graph.BuildAgent(ctx, &graph.Config{
			ChatModel:         chatModel,
			Registry:          registry,
			MessagesManager:   conversations.NewMessagesManager(convRepo, cfg.Conversation),
			Prompt:            cfg.Prompt,
			LowStockThreshold: cfg.Tools.LowStockThreshold,
			ToolMaxCalls:      cfg.Conversation.Tools.MaxCalls,
		})
		if err != nil {
			return err
		}

		id := strings.TrimSpace(conversationID)
		if id == "" {
			id = uuid.NewString()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s sales assistant for %s\n", cfg.Prompt.AgentName, cfg.Prompt.BusinessName)
		fmt.Fprintf(out, "Model: %s | Catalog: %s | Conversation: %s\n", chatModel.ModelName, client.BaseURL(), id)
		fmt.Fprintln(out, "Type 'quit' or 'exit' to leave.")

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "\nYou: ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
				break
			}

			answer, err := runner.Invoke(ctx, model.QueryInput{ConversationID: id, Query: line})
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", id).Msg("Turn failed")
				answer = apologyMessage
			}
			fmt.Fprintf(out, "%s: %s\n", cfg.Prompt.AgentName, answer)
		}
		fmt.Fprintln(out, "Goodbye!")
		return scanner.Err()
	},
}

func init() {
	chatCmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id to resume (a new one when empty)")
}
