package assistant

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/grassrootshq/clubassist/ai/llm"
)

// ChatRequest is one inbound conversational query. It lives for the duration
// of a single request and is never persisted.
type ChatRequest struct {
	Message  string `json:"message"`
	Token    string `json:"token"`
	Email    string `json:"email"`
	Month    string `json:"month,omitempty"`
	ClubName string `json:"clubName,omitempty"`
	AgeGroup string `json:"ageGroup,omitempty"`
	Division string `json:"division,omitempty"`
}

// HasRequiredFields reports whether message, token, and email are all present.
func (r *ChatRequest) HasRequiredFields() bool {
	return r.Message != "" && r.Token != "" && r.Email != ""
}

const systemPromptFormat = `You are a helpful AI assistant for grassroots club management.

Today's date is %s, formatted as YYYY-MM-DD (Year-Month-Day).

You are assisting user %s. Their club is %s, age group is %s, and division is %s. The current month is %s.

You can ONLY retrieve data via GET requests from the microservices.
Never propose or perform POST, PUT, PATCH, or DELETE.
If the user's request requires an update, politely refuse.

Begin:`

// BuildConversation assembles the two-message conversation for the intent
// resolution pass: the system instruction embedding the current date, the
// verified identity, the tenant scope, and the read-only policy, followed by
// the raw user message. Pass-through only: no truncation, no retries.
func BuildConversation(req *ChatRequest, verifiedEmail string, now time.Time) []llm.Message {
	system := fmt.Sprintf(systemPromptFormat,
		now.Format("2006-01-02"),
		verifiedEmail,
		req.ClubName,
		req.AgeGroup,
		req.Division,
		req.Month,
	)
	return []llm.Message{
		llm.SystemPrompt(system),
		llm.UserMessage(req.Message),
	}
}

const synthesisPromptFormat = `You have retrieved data from the %s endpoint.

Your job is to convert this into a clear, helpful message for the user, who is a grassroots club manager.

- DO NOT use markdown (*, _, -, #, >, backticks, etc.).
- DO NOT format responses with markdown-style lists or bold/italic.
- Use simple plain text.
- Structure responses using clear sentence formatting.

Explain the significance of the data where relevant.`

// BuildSynthesisConversation assembles the second inference pass that turns
// one capability's structured result into plain text for the user.
func BuildSynthesisConversation(capability, userMessage string, payload json.RawMessage) []llm.Message {
	return []llm.Message{
		llm.SystemPrompt(fmt.Sprintf(synthesisPromptFormat, capability)),
		llm.UserMessage(fmt.Sprintf("The user asked: %s. Here is the data you retrieved: %s", userMessage, payload)),
	}
}
