package nodes

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salescode-agent/server/internal/agent/model"
)

func TestToolBudget(t *testing.T) {
	budget := toolBudget(2)
	s := &model.AppState{}
	assert.False(t, budget.consume(s))
	assert.False(t, budget.exhausted(s))
	assert.False(t, budget.consume(s))
	assert.True(t, budget.exhausted(s))
	assert.False(t, budget.exhausted(s), "marked only once")
	assert.True(t, s.ToolCallLimitReached)

	assert.Equal(t, DefaultMaxToolCalls, toolBudget(0).limit())
	assert.Equal(t, DefaultMaxToolCalls, toolBudget(-3).limit())
}

func TestChatModelPreHandler_WrapUpOnLimit(t *testing.T) {
	pre := NewChatModelPreHandler(1)
	s := &model.AppState{}
	ctx := context.Background()

	out, err := pre(ctx, []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage("hi")}, s)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	s.History = append(s.History, &schema.Message{
		Role:      schema.Assistant,
		ToolCalls: []schema.ToolCall{{ID: "call_9", Function: schema.FunctionCall{Name: "check_inventory"}}},
	})
	s.ToolCallCount = 1

	out, err = pre(ctx, []*schema.Message{{Role: schema.Tool, Content: "{}"}}, s)
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, "call_9", out[3].ToolCallID, "missing tool_call_id is recovered")
	assert.Equal(t, schema.System, out[4].Role)
	assert.Contains(t, out[4].Content, "maximum tool call limit (1)")
}

func TestToolExecutorPreHandler(t *testing.T) {
	pre := NewToolExecutorPreHandler(1)
	s := &model.AppState{}
	msg := &schema.Message{Role: schema.Assistant}

	out, err := pre(context.Background(), msg, s)
	require.NoError(t, err)
	assert.Same(t, msg, out)
	assert.False(t, s.ToolCallLimitReached)

	_, err = pre(context.Background(), msg, s)
	require.NoError(t, err)
	assert.True(t, s.ToolCallLimitReached)
}
