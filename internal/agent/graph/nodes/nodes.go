package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/salescode-agent/server/internal/agent/graph/conversations"
	"github.com/salescode-agent/server/internal/agent/model"
	logx "github.com/salescode-agent/server/pkg/logger"
)

// Node names.
const (
	NodeInputConverter = "InputConverter"
	NodeChatModel      = "ChatModel"
	NodeToolExecutor   = "ToolExecutor"
)

// DefaultMaxToolCalls applies when no positive budget is configured.
const DefaultMaxToolCalls = 10

// toolBudget is the number of tool rounds a single turn may run.
type toolBudget int

func (b toolBudget) limit() int {
	if b <= 0 {
		return DefaultMaxToolCalls
	}
	return int(b)
}

// exhausted marks the state once the budget is spent. It reports true only on
// the call that marks it, so the wrap-up notice is added once.
func (b toolBudget) exhausted(state *model.AppState) bool {
	if state.ToolCallLimitReached || state.ToolCallCount < b.limit() {
		return false
	}
	state.ToolCallLimitReached = true
	return true
}

// consume counts one tool round and reports whether it went over the budget.
func (b toolBudget) consume(state *model.AppState) bool {
	state.ToolCallCount++
	if state.ToolCallCount <= b.limit() {
		return false
	}
	state.ToolCallLimitReached = true
	return true
}

// NewInputConverterPreHandler resets the per-turn counters.
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		s.ConversationID = in.ConversationID
		s.History = nil
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode persists the user query and assembles the model context.
// systemPrompt is rendered once per turn.
func NewInputConverterNode(
	mm *conversations.MessagesManager,
	systemPrompt func(ctx context.Context) (string, error),
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		if err := mm.SaveUserMessage(ctx, input.ConversationID, input.Query); err != nil {
			return nil, fmt.Errorf("save user message: %w", err)
		}

		prompt, err := systemPrompt(ctx)
		if err != nil {
			return nil, fmt.Errorf("render system prompt: %w", err)
		}

		messages, err := mm.BuildContext(ctx, input.ConversationID, prompt)
		if err != nil {
			return nil, fmt.Errorf("build conversation context: %w", err)
		}
		return messages, nil
	})
}

// NewChatModelPreHandler accumulates the turn history and appends a wrap-up
// notice once the tool call budget is spent.
func NewChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	budget := toolBudget(maxToolCalls)
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Some providers drop tool_call_id on tool results; recover it from the last assistant call.
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					if id := msg.ToolCalls[0].ID; strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if budget.exhausted(state) {
			state.History = append(state.History, schema.SystemMessage(fmt.Sprintf(
				"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
					"Answer with the information you already have and say what you could not check.",
				budget.limit(),
			)))
		}

		return state.History, nil
	}
}

// NewChatModelPostHandler records usage cost, fills missing tool call ids and
// persists final answers.
func NewChatModelPostHandler(
	mm *conversations.MessagesManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return out, nil
		}

		if out.ResponseMeta != nil {
			if cost := model.ComputeCost(modelName, out.ResponseMeta.Usage); cost != nil {
				state.TotalCostUSD += cost.TotalCost
				if out.Extra == nil {
					out.Extra = map[string]any{}
				}
				out.Extra["usage_cost"] = cost
				out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
				logx.Debug().
					Str("conversation_id", state.ConversationID).
					Str("model", modelName).
					Int("prompt_tokens", cost.PromptTokens).
					Int("completion_tokens", cost.CompletionTokens).
					Float64("total_cost_usd", cost.TotalCost).
					Msg("LLM usage")
			}
		}

		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)

		final := len(out.ToolCalls) == 0 || state.ToolCallLimitReached
		if out.Role == schema.Assistant && final && strings.TrimSpace(out.Content) != "" {
			if err := mm.SaveResponse(ctx, state.ConversationID, out.Content); err != nil {
				logx.Error().Err(err).Str("conversation_id", state.ConversationID).Msg("Error saving assistant response")
			}
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes to the tools node while the model asks for tools
// and the budget allows it.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached - routing to end")
			return compose.END, nil
		}
		if input != nil && len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}
		return compose.END, nil
	}
}

// NewToolExecutorPreHandler counts tool executions against the budget.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	budget := toolBudget(maxToolCalls)
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		if budget.consume(state) {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", budget.limit()).
				Str("conversation_id", state.ConversationID).
				Msg("Tool call limit exceeded")
		}
		return in, nil
	}
}
