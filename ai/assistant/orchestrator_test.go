package assistant

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grassrootshq/clubassist/ai/llm"
)

// fakeLLM scripts the two inference passes.
type fakeLLM struct {
	resolveResponse *llm.ChatResponse
	resolveErr      error

	synthesize    func(messages []llm.Message) (string, error)
	synthesisErr  error
	resolveInputs [][]llm.Message
	chatInputs    [][]llm.Message
}

func (f *fakeLLM) Chat(_ context.Context, messages []llm.Message) (string, *llm.CallStats, error) {
	f.chatInputs = append(f.chatInputs, messages)
	if f.synthesisErr != nil {
		return "", nil, f.synthesisErr
	}
	if f.synthesize != nil {
		text, err := f.synthesize(messages)
		return text, &llm.CallStats{TotalTokens: 1}, err
	}
	return "synthesized", &llm.CallStats{TotalTokens: 1}, nil
}

func (f *fakeLLM) ChatWithTools(_ context.Context, messages []llm.Message, _ []llm.ToolDescriptor) (*llm.ChatResponse, *llm.CallStats, error) {
	f.resolveInputs = append(f.resolveInputs, messages)
	if f.resolveErr != nil {
		return nil, nil, f.resolveErr
	}
	return f.resolveResponse, &llm.CallStats{TotalTokens: 1}, nil
}

type fetchCall struct {
	route string
	args  map[string]any
	token string
}

// fakeGateway returns scripted results per route and records every call.
type fakeGateway struct {
	results map[string]*CapabilityResult
	errOn   map[string]error
	calls   []fetchCall
}

func (f *fakeGateway) Fetch(_ context.Context, route string, args map[string]any, token string) (*CapabilityResult, error) {
	f.calls = append(f.calls, fetchCall{route: route, args: args, token: token})
	if err, ok := f.errOn[route]; ok {
		return nil, err
	}
	if result, ok := f.results[route]; ok {
		return result, nil
	}
	return &CapabilityResult{StatusCode: 200, Body: []byte(`{}`)}, nil
}

func toolCall(name, arguments string) llm.ToolCall {
	return llm.ToolCall{ID: "call_" + name, Name: name, Arguments: arguments}
}

func newTestOrchestrator(fake *fakeLLM, gateway *fakeGateway) *Orchestrator {
	return NewOrchestrator(fake, gateway, NewCatalog(), WithClock(func() time.Time {
		return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	}))
}

func testRequest(message string) *ChatRequest {
	return &ChatRequest{
		Message:  message,
		Token:    "session-token",
		Email:    "manager@rovers.ie",
		Month:    "2026-03",
		ClubName: "Rovers",
		AgeGroup: "U12",
		Division: "Division 1",
	}
}

func TestAnswerDirectTextWithoutKeywords(t *testing.T) {
	fake := &fakeLLM{resolveResponse: &llm.ChatResponse{Content: "Football is played with a round ball."}}
	gateway := &fakeGateway{}
	o := newTestOrchestrator(fake, gateway)

	reply, err := o.Answer(context.Background(), testRequest("tell me a joke about football"), "manager@rovers.ie")
	require.NoError(t, err)

	assert.Equal(t, "Football is played with a round ball.", reply)
	assert.Empty(t, gateway.calls, "no capability may run for a direct answer")
}

// A request implying mutation can never reach the gateway: the catalog holds
// no mutating capability and no fallback keyword fires for delete requests.
func TestAnswerMutationRequestNeverReachesGateway(t *testing.T) {
	fake := &fakeLLM{resolveResponse: &llm.ChatResponse{Content: "I can only read data, I cannot delete anything."}}
	gateway := &fakeGateway{}
	o := newTestOrchestrator(fake, gateway)

	reply, err := o.Answer(context.Background(), testRequest("please delete last week's fixture"), "manager@rovers.ie")
	require.NoError(t, err)

	assert.Equal(t, "I can only read data, I cannot delete anything.", reply)
	assert.Empty(t, gateway.calls)
}

func TestAnswerOrderingAcrossInvocations(t *testing.T) {
	fake := &fakeLLM{
		resolveResponse: &llm.ChatResponse{ToolCalls: []llm.ToolCall{
			toolCall("getPlayers", `{"clubName":"Rovers"}`),
			toolCall("getAllFixtures", `{"clubName":"Rovers"}`),
			toolCall("listProducts", `{"clubName":"Rovers"}`),
		}},
		synthesize: func(messages []llm.Message) (string, error) {
			// Identify the segment by the capability named in the system turn.
			for _, name := range []string{"getPlayers", "getAllFixtures", "listProducts"} {
				if strings.Contains(messages[0].Content, name) {
					return "answer:" + name, nil
				}
			}
			return "", errors.New("unexpected synthesis prompt")
		},
	}
	gateway := &fakeGateway{}
	o := newTestOrchestrator(fake, gateway)

	reply, err := o.Answer(context.Background(), testRequest("players, fixtures and products"), "manager@rovers.ie")
	require.NoError(t, err)

	assert.Equal(t, "answer:getPlayers\nanswer:getAllFixtures\nanswer:listProducts", reply)

	require.Len(t, gateway.calls, 3)
	assert.Equal(t, "/club/players", gateway.calls[0].route)
	assert.Equal(t, "/schedule/fixtures", gateway.calls[1].route)
	assert.Equal(t, "/products/list", gateway.calls[2].route)
}

func TestAnswerEmbedsPartialFailure(t *testing.T) {
	fake := &fakeLLM{
		resolveResponse: &llm.ChatResponse{ToolCalls: []llm.ToolCall{
			toolCall("getPlayers", `{}`),
			toolCall("getAllFixtures", `{}`),
			toolCall("listProducts", `{}`),
		}},
		synthesize: func(_ []llm.Message) (string, error) { return "ok", nil },
	}
	gateway := &fakeGateway{
		results: map[string]*CapabilityResult{
			"/schedule/fixtures": {StatusCode: 503, Body: []byte("unavailable")},
		},
	}
	o := newTestOrchestrator(fake, gateway)

	reply, err := o.Answer(context.Background(), testRequest("everything please"), "manager@rovers.ie")
	require.NoError(t, err)

	segments := strings.Split(reply, "\n")
	require.Len(t, segments, 3)
	assert.Equal(t, "ok", segments[0])
	assert.Equal(t, "getAllFixtures failed with status 503: unavailable", segments[1])
	assert.Equal(t, "ok", segments[2])

	// No synthesis pass for the failed capability.
	assert.Len(t, fake.chatInputs, 2)
}

func TestAnswerUnknownCapability(t *testing.T) {
	fake := &fakeLLM{
		resolveResponse: &llm.ChatResponse{ToolCalls: []llm.ToolCall{
			toolCall("dropAllFixtures", `{}`),
		}},
	}
	gateway := &fakeGateway{}
	o := newTestOrchestrator(fake, gateway)

	reply, err := o.Answer(context.Background(), testRequest("do something odd"), "manager@rovers.ie")
	require.NoError(t, err)

	assert.Equal(t, "Unknown function call received.", reply)
	assert.Empty(t, gateway.calls, "unknown capability must not reach the gateway")
}

func TestAnswerMalformedArgumentsDefaultToEmpty(t *testing.T) {
	fake := &fakeLLM{
		resolveResponse: &llm.ChatResponse{ToolCalls: []llm.ToolCall{
			toolCall("getAllFixtures", `{"clubName": `),
		}},
	}
	gateway := &fakeGateway{}
	o := newTestOrchestrator(fake, gateway)

	_, err := o.Answer(context.Background(), testRequest("fixtures"), "manager@rovers.ie")
	require.NoError(t, err)

	require.Len(t, gateway.calls, 1)
	assert.Empty(t, gateway.calls[0].args, "parse failure must fall back to empty arguments")
}

func TestAnswerKeywordFallbackForcesOneInvocation(t *testing.T) {
	fake := &fakeLLM{
		resolveResponse: &llm.ChatResponse{Content: "Here is some general chat."},
		synthesize: func(_ []llm.Message) (string, error) {
			return "Your squad has 14 registered players.", nil
		},
	}
	gateway := &fakeGateway{}
	o := newTestOrchestrator(fake, gateway)

	reply, err := o.Answer(context.Background(), testRequest("list my team members"), "manager@rovers.ie")
	require.NoError(t, err)

	assert.Equal(t, "Your squad has 14 registered players.", reply)
	require.Len(t, gateway.calls, 1)
	assert.Equal(t, "/membership/team", gateway.calls[0].route)

	// Forced invocations re-derive arguments from the request tenant scope.
	assert.Equal(t, map[string]any{
		"clubName": "Rovers",
		"ageGroup": "U12",
		"division": "Division 1",
	}, gateway.calls[0].args)
	assert.Equal(t, "session-token", gateway.calls[0].token)
}

func TestAnswerFallbackDerivesEmailForTransactions(t *testing.T) {
	fake := &fakeLLM{resolveResponse: &llm.ChatResponse{Content: "chat"}}
	gateway := &fakeGateway{}
	o := newTestOrchestrator(fake, gateway)

	_, err := o.Answer(context.Background(), testRequest("show my recent payments"), "manager@rovers.ie")
	require.NoError(t, err)

	require.Len(t, gateway.calls, 1)
	assert.Equal(t, "/transactions/list", gateway.calls[0].route)
	assert.Equal(t, "manager@rovers.ie", gateway.calls[0].args["email"])
}

// A transport failure on a later invocation aborts the whole turn and
// discards segments already produced.
func TestAnswerTransportErrorAbortsTurn(t *testing.T) {
	fake := &fakeLLM{
		resolveResponse: &llm.ChatResponse{ToolCalls: []llm.ToolCall{
			toolCall("getPlayers", `{}`),
			toolCall("listProducts", `{}`),
		}},
	}
	gateway := &fakeGateway{
		errOn: map[string]error{"/products/list": errors.New("dial tcp: connection refused")},
	}
	o := newTestOrchestrator(fake, gateway)

	reply, err := o.Answer(context.Background(), testRequest("players and products"), "manager@rovers.ie")
	require.Error(t, err)
	assert.Empty(t, reply)
}

func TestAnswerResolveErrorPropagates(t *testing.T) {
	fake := &fakeLLM{resolveErr: errors.New("inference service unreachable")}
	o := newTestOrchestrator(fake, &fakeGateway{})

	_, err := o.Answer(context.Background(), testRequest("anything"), "manager@rovers.ie")
	require.Error(t, err)
}

func TestAnswerSynthesisErrorPropagates(t *testing.T) {
	fake := &fakeLLM{
		resolveResponse: &llm.ChatResponse{ToolCalls: []llm.ToolCall{toolCall("getPlayers", `{}`)}},
		synthesisErr:    errors.New("inference service unreachable"),
	}
	o := newTestOrchestrator(fake, &fakeGateway{})

	_, err := o.Answer(context.Background(), testRequest("players"), "manager@rovers.ie")
	require.Error(t, err)
}

func TestAnswerPromptCarriesIdentityAndScope(t *testing.T) {
	fake := &fakeLLM{resolveResponse: &llm.ChatResponse{Content: "hi"}}
	o := newTestOrchestrator(fake, &fakeGateway{})

	_, err := o.Answer(context.Background(), testRequest("hello there"), "manager@rovers.ie")
	require.NoError(t, err)

	require.Len(t, fake.resolveInputs, 1)
	messages := fake.resolveInputs[0]
	require.Len(t, messages, 2)

	system := messages[0].Content
	assert.Contains(t, system, "2026-03-14")
	assert.Contains(t, system, "manager@rovers.ie")
	assert.Contains(t, system, "Rovers")
	assert.Contains(t, system, "U12")
	assert.Contains(t, system, "Division 1")
	assert.Contains(t, system, "Never propose or perform POST, PUT, PATCH, or DELETE.")
	assert.Equal(t, "hello there", messages[1].Content)
}

func TestSynthesisPromptCarriesPayloadAndQuestion(t *testing.T) {
	payload := []byte(`[{"name":"Alice"}]`)
	fake := &fakeLLM{
		resolveResponse: &llm.ChatResponse{ToolCalls: []llm.ToolCall{toolCall("getPlayers", `{}`)}},
	}
	gateway := &fakeGateway{
		results: map[string]*CapabilityResult{
			"/club/players": {StatusCode: 200, Body: payload},
		},
	}
	o := newTestOrchestrator(fake, gateway)

	_, err := o.Answer(context.Background(), testRequest("who plays for us?"), "manager@rovers.ie")
	require.NoError(t, err)

	require.Len(t, fake.chatInputs, 1)
	messages := fake.chatInputs[0]
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "getPlayers")
	assert.Contains(t, messages[0].Content, "DO NOT use markdown")
	assert.Contains(t, messages[1].Content, "who plays for us?")
	assert.Contains(t, messages[1].Content, string(payload))
}

// Regression guard for the exact failure-segment format.
func TestFailureSegmentFormat(t *testing.T) {
	segment := fmt.Sprintf("%s failed with status %d: %s", "getResult", 404, []byte("no such match"))
	assert.Equal(t, "getResult failed with status 404: no such match", segment)
}
