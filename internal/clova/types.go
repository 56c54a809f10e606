// Package clova implements the HyperCLOVA X chat-completions client.
//
// The client speaks the v3 REST wire format directly and normalizes every
// response down to plain text. Callers never see provider envelopes; they
// get a Completion or an error, with ErrContractViolation marking responses
// that arrived with 200 OK but an unusable body.
package clova

import (
	"encoding/json"
	"fmt"
)

// Chat roles on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// Request carries one chat-completions call. Zero-valued sampling fields
// fall back to the client's configured defaults.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Completion is the normalized result of a successful call.
type Completion struct {
	Content string
}

// wire types below mirror the v3 chat-completions JSON bodies.

type wireContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireMessage struct {
	Role    string            `json:"role"`
	Content []wireContentPart `json:"content"`
}

type wireRequest struct {
	Messages          []wireMessage `json:"messages"`
	TopP              float32       `json:"topP"`
	TopK              int           `json:"topK"`
	MaxTokens         int           `json:"maxTokens"`
	Temperature       float32       `json:"temperature"`
	RepetitionPenalty float32       `json:"repetitionPenalty"`
	Stop              []string      `json:"stop"`
	Seed              int           `json:"seed"`
	IncludeAiFilters  bool          `json:"includeAiFilters"`
}

type wireResponse struct {
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Result struct {
		Message struct {
			Role    string      `json:"role"`
			Content wireContent `json:"content"`
		} `json:"message"`
	} `json:"result"`
}

// wireContent tolerates both API revisions: content arrives either as a
// plain string or as an array of typed text parts.
type wireContent struct {
	text string
	set  bool
}

func (c *wireContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.text = s
		c.set = true
		return nil
	}

	var parts []wireContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content is neither string nor part array: %w", err)
	}
	for _, part := range parts {
		if part.Type == "text" {
			c.text += part.Text
		}
	}
	c.set = true
	return nil
}
