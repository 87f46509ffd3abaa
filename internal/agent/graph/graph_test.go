package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salescode-agent/server/internal/agent/graph/conversations"
	"github.com/salescode-agent/server/internal/agent/graph/nodes"
	"github.com/salescode-agent/server/internal/agent/model"
	"github.com/salescode-agent/server/internal/agent/repo"
	"github.com/salescode-agent/server/internal/agent/tools"
	"github.com/salescode-agent/server/internal/catalog"
)

// scriptedModel replays canned replies and records what it was sent.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	inputs  [][]*schema.Message
	bound   []*schema.ToolInfo
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	idx := len(m.inputs) - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	reply := *m.replies[idx]
	reply.ToolCalls = append([]schema.ToolCall(nil), reply.ToolCalls...)
	return &reply, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) BindTools(infos []*schema.ToolInfo) error {
	m.bound = infos
	return nil
}

func (m *scriptedModel) calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs
}

type emptyRetriever struct{}

func (emptyRetriever) Retrieve(context.Context, string, ...retriever.Option) ([]*schema.Document, error) {
	return nil, nil
}

type stubCatalog struct{}

func (stubCatalog) SearchProducts(context.Context, string) ([]catalog.Product, error) {
	return nil, nil
}

func (stubCatalog) PlaceOrder(context.Context, catalog.OrderRequest) (*catalog.OrderConfirmation, error) {
	return &catalog.OrderConfirmation{}, nil
}

func toolCall(id, name, args string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

func newAgent(t *testing.T, cm *scriptedModel, maxCalls int) (Runner, *repo.RedisConversationRepository) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	convRepo := repo.NewRedisConversationRepository(rdb, time.Hour)
	registry, err := tools.NewRegistry(tools.Deps{
		Retriever: emptyRetriever{},
		Catalog:   stubCatalog{},
		Ledger:    repo.NewRedisProductLedger(rdb, time.Hour),
	})
	require.NoError(t, err)

	runner, err := BuildAgent(context.Background(), &Config{
		ChatModel:       &nodes.ChatModel{Model: cm, ModelName: "gemini-2.5-flash"},
		Registry:        registry,
		MessagesManager: conversations.NewMessagesManager(convRepo, model.ConversationConfig{HistoryMessages: 20}),
		Prompt:          model.PromptConfig{AgentName: "SCAI", BusinessName: "Salescode"},
		ToolMaxCalls:    maxCalls,
	})
	require.NoError(t, err)
	return runner, convRepo
}

func lastToolMessage(msgs []*schema.Message) *schema.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == schema.Tool {
			return msgs[i]
		}
	}
	return nil
}

func TestAgent_ToolRoundTrip(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("call_1", "calculate_discount", `{"price":"10","quantity":20}`),
		schema.AssistantMessage("20 units cost 190.00 after the bulk discount.", nil),
	}}
	runner, convRepo := newAgent(t, cm, 5)
	ctx := context.Background()

	answer, err := runner.Invoke(ctx, model.QueryInput{ConversationID: "c1", Query: "price for 20 at $10?"})
	require.NoError(t, err)
	assert.Equal(t, "20 units cost 190.00 after the bulk discount.", answer)
	assert.Len(t, cm.bound, 4)

	calls := cm.calls()
	require.Len(t, calls, 2)
	first := calls[0]
	require.GreaterOrEqual(t, len(first), 2)
	assert.Equal(t, schema.System, first[0].Role)
	assert.Contains(t, first[0].Content, "SCAI")
	assert.Equal(t, "price for 20 at $10?", first[len(first)-1].Content)

	toolMsg := lastToolMessage(calls[1])
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "Discounted total: 190.00")

	h, err := convRepo.LoadHistory(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, h.Messages, 2, "only the user turn and the final answer are persisted")
	assert.Equal(t, schema.User, h.Messages[0].Role)
	assert.Equal(t, schema.Assistant, h.Messages[1].Role)
}

func TestAgent_HistoryCarriesOver(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("Hello!", nil)}}
	runner, _ := newAgent(t, cm, 5)
	ctx := context.Background()

	_, err := runner.Invoke(ctx, model.QueryInput{ConversationID: "c2", Query: "hi"})
	require.NoError(t, err)
	_, err = runner.Invoke(ctx, model.QueryInput{ConversationID: "c2", Query: "do you sell chips?"})
	require.NoError(t, err)

	calls := cm.calls()
	require.Len(t, calls, 2)
	second := calls[1]
	require.Len(t, second, 4)
	assert.Equal(t, "hi", second[1].Content)
	assert.Equal(t, "Hello!", second[2].Content)
	assert.Equal(t, "do you sell chips?", second[3].Content)
}

func TestAgent_UnknownTool(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("call_1", "delete_inventory", `{}`),
		schema.AssistantMessage("I can't do that.", nil),
	}}
	runner, _ := newAgent(t, cm, 5)

	answer, err := runner.Invoke(context.Background(), model.QueryInput{ConversationID: "c3", Query: "wipe stock"})
	require.NoError(t, err)
	assert.Equal(t, "I can't do that.", answer)

	toolMsg := lastToolMessage(cm.calls()[1])
	require.NotNil(t, toolMsg)
	assert.Contains(t, toolMsg.Content, `"error":"unknown_tool"`)
	assert.Contains(t, toolMsg.Content, "check_inventory")
}

func TestAgent_ToolBudget(t *testing.T) {
	cm := &scriptedModel{replies: []*schema.Message{
		toolCall("", "calculate_discount", `{"price":1,"quantity":1}`),
	}}
	runner, convRepo := newAgent(t, cm, 1)
	ctx := context.Background()

	answer, err := runner.Invoke(ctx, model.QueryInput{ConversationID: "c4", Query: "loop"})
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer)

	calls := cm.calls()
	require.Len(t, calls, 2)
	notice := calls[1][len(calls[1])-1]
	assert.Equal(t, schema.System, notice.Role)
	assert.Contains(t, notice.Content, "maximum tool call limit")

	n, err := convRepo.GetMessageCount(ctx, "c4")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuildGraph_Validation(t *testing.T) {
	_, err := BuildGraph(context.Background(), nil)
	assert.Error(t, err)
	_, err = BuildGraph(context.Background(), &Config{})
	assert.Error(t, err)
}
