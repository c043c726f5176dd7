package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grassrootshq/clubassist/ai/llm"
)

// unknownCapabilityReply is the literal segment embedded when the model names
// a capability absent from the catalog. No gateway call is attempted.
const unknownCapabilityReply = "Unknown function call received."

// Invocation is one resolved request to execute a capability.
type Invocation struct {
	Name      string
	Arguments map[string]any
}

// Recorder receives orchestration metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordCapabilityCall(capability string, latency time.Duration, success bool)
	RecordLLMUsage(stage string, stats *llm.CallStats)
}

type noopRecorder struct{}

func (noopRecorder) RecordCapabilityCall(string, time.Duration, bool) {}
func (noopRecorder) RecordLLMUsage(string, *llm.CallStats)            {}

// Orchestrator sequences one conversational request: prompt assembly, intent
// resolution, keyword fallback, capability invocation, and response synthesis.
// It holds no per-request state; a single instance serves all requests.
type Orchestrator struct {
	llm      llm.Service
	gateway  Gateway
	catalog  *Catalog
	recorder Recorder
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock overrides the time source. Used by tests to pin the prompt date.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator over the given providers. The
// catalog is shared, read-only, and never mutated after this call.
func NewOrchestrator(llmService llm.Service, gateway Gateway, catalog *Catalog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		llm:      llmService,
		gateway:  gateway,
		catalog:  catalog,
		recorder: noopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Answer resolves the request to capability invocations, executes them in
// emitted order, and returns the aggregated reply: one synthesized segment per
// invocation, joined with a newline. When the model answers directly and no
// fallback keyword matches, the model text is returned unchanged.
//
// Errors returned here are fatal for the whole request (they surface as 500):
// inference failures and gateway transport failures. A transport failure on a
// later invocation discards segments already produced in the same turn.
func (o *Orchestrator) Answer(ctx context.Context, req *ChatRequest, verifiedEmail string) (string, error) {
	messages := BuildConversation(req, verifiedEmail, o.now())

	resp, stats, err := o.llm.ChatWithTools(ctx, messages, o.catalog.Tools())
	if err != nil {
		return "", err
	}
	o.recorder.RecordLLMUsage("resolve", stats)

	invocations := o.resolveInvocations(resp, req, verifiedEmail)
	if invocations == nil {
		// Direct-answer outcome with no matching fallback keyword.
		return resp.Content, nil
	}

	segments := make([]string, 0, len(invocations))
	for _, inv := range invocations {
		segment, err := o.executeInvocation(ctx, inv, req)
		if err != nil {
			return "", err
		}
		segments = append(segments, segment)
	}

	return strings.Join(segments, "\n"), nil
}

// resolveInvocations turns the model response into the ordered invocation
// list, forcing a single keyword-dispatched invocation when the model answered
// in plain text. Returns nil when no capability should run.
func (o *Orchestrator) resolveInvocations(resp *llm.ChatResponse, req *ChatRequest, verifiedEmail string) []Invocation {
	if len(resp.ToolCalls) == 0 {
		name, ok := FallbackCapability(req.Message)
		if !ok {
			return nil
		}
		slog.Info("forcing capability by keyword fallback", "capability", name)
		return []Invocation{{
			Name:      name,
			Arguments: o.fallbackArguments(name, req, verifiedEmail),
		}}
	}

	invocations := make([]Invocation, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		args := map[string]any{}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			// Parse failure is non-fatal: the invocation proceeds with empty
			// arguments and the turn continues.
			slog.Warn("failed to parse capability arguments",
				"capability", call.Name,
				"raw_arguments", call.Arguments,
				"error", err,
			)
			args = map[string]any{}
		}
		invocations = append(invocations, Invocation{Name: call.Name, Arguments: args})
	}
	return invocations
}

// fallbackArguments derives the forced invocation's arguments from the
// request's tenant-scoping fields, filtered to the capability's declared
// parameters. The resolver provided no argument object in this path, so the
// request body is the only well-defined source.
func (o *Orchestrator) fallbackArguments(capability string, req *ChatRequest, verifiedEmail string) map[string]any {
	def, ok := o.catalog.Lookup(capability)
	if !ok {
		return map[string]any{}
	}

	candidates := map[string]string{
		"clubName": req.ClubName,
		"ageGroup": req.AgeGroup,
		"division": req.Division,
		"month":    req.Month,
		"email":    verifiedEmail,
	}
	args := make(map[string]any)
	for name := range def.Parameters {
		if value, ok := candidates[name]; ok && value != "" {
			args[name] = value
		}
	}
	return args
}

// executeInvocation runs one capability call plus its synthesis pass and
// returns the reply segment for it.
func (o *Orchestrator) executeInvocation(ctx context.Context, inv Invocation, req *ChatRequest) (string, error) {
	def, ok := o.catalog.Lookup(inv.Name)
	if !ok {
		slog.Warn("model requested unknown capability", "capability", inv.Name)
		return unknownCapabilityReply, nil
	}

	start := time.Now()
	result, err := o.gateway.Fetch(ctx, def.Route, inv.Arguments, req.Token)
	if err != nil {
		o.recorder.RecordCapabilityCall(inv.Name, time.Since(start), false)
		return "", err
	}
	o.recorder.RecordCapabilityCall(inv.Name, time.Since(start), result.OK())

	if !result.OK() {
		slog.Warn("capability call failed",
			"capability", inv.Name,
			"status", result.StatusCode,
		)
		return fmt.Sprintf("%s failed with status %d: %s", inv.Name, result.StatusCode, result.Body), nil
	}

	text, stats, err := o.llm.Chat(ctx, BuildSynthesisConversation(inv.Name, req.Message, result.Body))
	if err != nil {
		return "", err
	}
	o.recorder.RecordLLMUsage("synthesize", stats)
	return text, nil
}
