package agent

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LoomClaw/LoomClaw/internal/bus"
	"github.com/LoomClaw/LoomClaw/internal/memory"
	"github.com/LoomClaw/LoomClaw/internal/provider"
	"github.com/LoomClaw/LoomClaw/internal/tools"
)

type chatStep struct {
	resp *provider.ChatResponse
	err  error
}

// scriptedProvider replays a fixed sequence of responses and records
// every request it saw.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []chatStep
	calls []*provider.ChatRequest
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }

func (p *scriptedProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if len(p.steps) == 0 {
		return &provider.ChatResponse{Content: "out of script"}, nil
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	return step.resp, step.err
}

func (p *scriptedProvider) requests() []*provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*provider.ChatRequest{}, p.calls...)
}

type loopHarness struct {
	bus      *bus.Bus
	store    *memory.Store
	registry *tools.Registry
	provider *scriptedProvider
	respSub  *bus.Subscription
}

func startLoop(t *testing.T, p *scriptedProvider, configure func(*LoopOptions)) *loopHarness {
	t.Helper()

	b := bus.New(0)
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"), memory.PartitionNone)
	require.NoError(t, err)
	reg := tools.NewRegistry()

	opts := LoopOptions{
		Bus:      b,
		Provider: p,
		Store:    store,
		Registry: reg,
	}
	if configure != nil {
		configure(&opts)
	}

	respSub, err := b.Subscribe(bus.TopicAgentResponse)
	require.NoError(t, err)

	loop := NewLoop(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("loop did not stop")
		}
		b.Close()
		store.Close()
	})

	return &loopHarness{bus: b, store: store, registry: reg, provider: p, respSub: respSub}
}

func (h *loopHarness) send(t *testing.T, content string) *bus.AgentResponse {
	t.Helper()
	require.NoError(t, h.bus.Publish(context.Background(), bus.NewUserMessage("test", "u1", content)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env, err := h.respSub.Recv(ctx)
	require.NoError(t, err)
	resp, ok := env.(*bus.AgentResponse)
	require.True(t, ok, "expected *bus.AgentResponse, got %T", env)
	return resp
}

func TestLoopSimpleReply(t *testing.T) {
	p := &scriptedProvider{steps: []chatStep{
		{resp: &provider.ChatResponse{Content: "hello there"}},
	}}
	h := startLoop(t, p, nil)

	resp := h.send(t, "hi")
	require.Equal(t, "hello there", resp.Content)
	require.Equal(t, "test", resp.Platform)
	require.Equal(t, "u1", resp.UserID)
	require.Empty(t, resp.ToolCalls)

	history, err := h.store.GetHistory("test", "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "user", history[0].Role)
	require.Equal(t, "hi", history[0].Content)
	require.Equal(t, "assistant", history[1].Role)
	require.Equal(t, "hello there", history[1].Content)

	reqs := p.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "system", reqs[0].Messages[0].Role)
	require.Equal(t, "user", reqs[0].Messages[len(reqs[0].Messages)-1].Role)
	require.Equal(t, "hi", reqs[0].Messages[len(reqs[0].Messages)-1].Content)
}

func TestLoopToolCallRoundTrip(t *testing.T) {
	p := &scriptedProvider{steps: []chatStep{
		{resp: &provider.ChatResponse{ToolCalls: []provider.ToolCall{
			{ID: "c1", Name: "echo", Arguments: map[string]any{"text": "ping"}},
		}}},
		{resp: &provider.ChatResponse{Content: "tool said ping"}},
	}}
	h := startLoop(t, p, nil)

	h.registry.Register(&echoTool{})
	resultSub, err := h.bus.Subscribe(bus.TopicToolResult)
	require.NoError(t, err)

	resp := h.send(t, "please echo ping")
	require.Equal(t, "tool said ping", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "echo", resp.ToolCalls[0].Name)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env, err := resultSub.Recv(ctx)
	require.NoError(t, err)
	result, ok := env.(*bus.ToolResult)
	require.True(t, ok)
	require.True(t, result.Success)
	require.Equal(t, "echo", result.ToolName)
	require.Equal(t, "ping", result.Result)

	reqs := p.requests()
	require.Len(t, reqs, 2)
	second := reqs[1].Messages
	require.Equal(t, "assistant", second[len(second)-2].Role)
	require.Len(t, second[len(second)-2].ToolCalls, 1)
	require.Equal(t, "tool", second[len(second)-1].Role)
	require.Equal(t, "c1", second[len(second)-1].ToolCallID)
	require.Equal(t, "ping", second[len(second)-1].Content)

	history, err := h.store.GetHistory("test", "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "assistant", history[1].Role)
	require.Equal(t, "tool", history[2].Role)
	require.Equal(t, "echo", history[2].ToolName)
}

func TestLoopToolFailureIsIsolated(t *testing.T) {
	p := &scriptedProvider{steps: []chatStep{
		{resp: &provider.ChatResponse{ToolCalls: []provider.ToolCall{
			{ID: "c1", Name: "broken", Arguments: map[string]any{}},
			{ID: "c2", Name: "echo", Arguments: map[string]any{"text": "still works"}},
		}}},
		{resp: &provider.ChatResponse{Content: "recovered"}},
	}}
	h := startLoop(t, p, nil)

	h.registry.Register(&echoTool{})
	h.registry.Register(&panicTool{})

	resp := h.send(t, "do both")
	require.Equal(t, "recovered", resp.Content)
	require.Len(t, resp.ToolCalls, 2)

	reqs := p.requests()
	require.Len(t, reqs, 2)
	second := reqs[1].Messages
	brokenTurn := second[len(second)-2]
	okTurn := second[len(second)-1]
	require.Equal(t, "tool", brokenTurn.Role)
	require.Contains(t, brokenTurn.Content, "Error")
	require.Equal(t, "still works", okTurn.Content)
}

func TestLoopLLMFailureProducesReply(t *testing.T) {
	p := &scriptedProvider{steps: []chatStep{
		{err: errors.New("upstream 500: secret internals")},
	}}
	h := startLoop(t, p, nil)

	resp := h.send(t, "hi")
	require.Equal(t, llmFailureReply, resp.Content)
	require.NotContains(t, resp.Content, "secret internals")
}

// alwaysToolProvider asks for a tool on every call that offers tools
// and answers plainly once tools are withheld.
type alwaysToolProvider struct {
	scriptedProvider
}

func (p *alwaysToolProvider) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	if len(req.Tools) > 0 {
		return &provider.ChatResponse{ToolCalls: []provider.ToolCall{
			{ID: "again", Name: "echo", Arguments: map[string]any{"text": "more"}},
		}}, nil
	}
	return &provider.ChatResponse{Content: "final answer"}, nil
}

func TestLoopIterationBudget(t *testing.T) {
	p := &alwaysToolProvider{}
	b := bus.New(0)
	defer b.Close()
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"), memory.PartitionNone)
	require.NoError(t, err)
	defer store.Close()
	reg := tools.NewRegistry()
	reg.Register(&echoTool{})

	respSub, err := b.Subscribe(bus.TopicAgentResponse)
	require.NoError(t, err)

	loop := NewLoop(LoopOptions{
		Bus:               b,
		Provider:          p,
		Store:             store,
		Registry:          reg,
		MaxToolIterations: 2,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	require.NoError(t, b.Publish(context.Background(), bus.NewUserMessage("test", "u1", "loop forever")))

	rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer rcancel()
	env, err := respSub.Recv(rctx)
	require.NoError(t, err)
	resp := env.(*bus.AgentResponse)
	require.Equal(t, "final answer", resp.Content)
	require.Len(t, resp.ToolCalls, 2)

	// Two tool iterations plus the final no-tools call.
	reqs := p.requests()
	require.Len(t, reqs, 3)
	require.Empty(t, reqs[2].Tools)
}

func TestLoopDisableTools(t *testing.T) {
	p := &scriptedProvider{steps: []chatStep{
		{resp: &provider.ChatResponse{Content: "no tools involved"}},
	}}
	h := startLoop(t, p, func(opts *LoopOptions) {
		opts.DisableTools = true
	})
	h.registry.Register(&echoTool{})

	resp := h.send(t, "hi")
	require.Equal(t, "no tools involved", resp.Content)

	reqs := p.requests()
	require.Len(t, reqs, 1)
	require.Empty(t, reqs[0].Tools)
}

type echoTool struct{}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echo text back." }
func (t *echoTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}
}
func (t *echoTool) Execute(_ context.Context, params map[string]any) (string, error) {
	return tools.GetString(params, "text", ""), nil
}

type panicTool struct{}

func (t *panicTool) Name() string        { return "broken" }
func (t *panicTool) Description() string { return "Always panics." }
func (t *panicTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *panicTool) Execute(_ context.Context, _ map[string]any) (string, error) {
	panic("tool blew up")
}
