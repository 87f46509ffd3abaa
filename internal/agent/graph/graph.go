package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/salescode-agent/server/internal/agent/graph/conversations"
	"github.com/salescode-agent/server/internal/agent/graph/nodes"
	"github.com/salescode-agent/server/internal/agent/graph/observers"
	"github.com/salescode-agent/server/internal/agent/graph/prompts"
	"github.com/salescode-agent/server/internal/agent/model"
	"github.com/salescode-agent/server/internal/agent/tools"
	logx "github.com/salescode-agent/server/pkg/logger"
)

// FallbackAnswer is returned when a turn ends without assistant text, for
// example when the tool budget ran out mid-plan.
const FallbackAnswer = "Sorry, I could not finish that request. Could you rephrase it or ask about one item at a time?"

// Runner executes one conversation turn.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (string, error)
}

// Config holds everything needed to build the agent graph.
type Config struct {
	ChatModel         *nodes.ChatModel
	Registry          *tools.Registry
	MessagesManager   *conversations.MessagesManager
	Prompt            model.PromptConfig
	LowStockThreshold int
	ToolMaxCalls      int
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("graph config is nil")
	}
	if c.ChatModel == nil || c.ChatModel.Model == nil {
		return errors.New("chat model is not initialized")
	}
	if c.Registry == nil {
		return errors.New("tool registry is nil")
	}
	if c.MessagesManager == nil {
		return errors.New("messages manager is nil")
	}
	return nil
}

// GraphBuilder handles the construction of the agent conversation graph
type GraphBuilder struct {
	config *Config
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (string, error) {
	ctx = tools.WithConversationID(ctx, in.ConversationID)

	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		logx.Warn().Str("conversation_id", in.ConversationID).Msg("Turn ended without assistant text")
		return FallbackAnswer, nil
	}
	if total, ok := out.Extra["usage_cost_total_usd"].(float64); ok {
		logx.Info().
			Str("conversation_id", in.ConversationID).
			Float64("total_cost_usd", total).
			Msg("Turn completed")
	}
	return out.Content, nil
}

// BuildAgent binds the tool schemas to the chat model and returns a Runner.
func BuildAgent(ctx context.Context, cfg *Config) (Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	infos, err := cfg.Registry.Infos(ctx)
	if err != nil {
		return nil, err
	}
	if err := cfg.ChatModel.BindTools(ctx, infos); err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Agent graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled agent graph. Tools must
// already be bound to the chat model.
func BuildGraph(ctx context.Context, config *Config) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}
	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

func (b *GraphBuilder) setupTools(ctx context.Context) error {
	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               b.config.Registry.Tools(),
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"available\":%q}", name, toolNames()), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return tools.SanitizeArguments(name, arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	if err := b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
	); err != nil {
		return fmt.Errorf("error adding tools node: %w", err)
	}
	return nil
}

func (b *GraphBuilder) addNodes() error {
	systemPrompt := func(ctx context.Context) (string, error) {
		return prompts.RenderSystem(ctx, b.config.Prompt, b.config.LowStockThreshold)
	}

	if err := b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.MessagesManager, systemPrompt),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	); err != nil {
		return fmt.Errorf("error adding input converter: %w", err)
	}

	if err := b.graph.AddChatModelNode(nodes.NodeChatModel,
		b.config.ChatModel.Model,
		compose.WithStatePreHandler(nodes.NewChatModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewChatModelPostHandler(b.config.MessagesManager, b.config.ChatModel.ModelName)),
	); err != nil {
		return fmt.Errorf("error adding chat model: %w", err)
	}
	return nil
}

func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeChatModel},
		{nodes.NodeToolExecutor, nodes.NodeChatModel},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			compose.END:            true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Each tool round is two steps; leave room for the entry nodes and the wrap-up call.
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

func toolNames() string {
	names := make([]string, 0, len(tools.Names))
	for _, n := range tools.Names {
		names = append(names, string(n))
	}
	return strings.Join(names, ", ")
}
