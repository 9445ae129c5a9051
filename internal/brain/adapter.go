// Package brain is the boundary to the reasoning stage: the component that
// turns a transcript plus conversation context into either a spoken reply
// or tool-invocation requests.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one entry in the running conversation handed to the model.
// Role is one of user, assistant or tool; tool messages carry the call id
// and tool name the result answers.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolSchema advertises one callable tool to the model.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a tool-invocation request produced by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// TurnRequest is one reasoning turn's input.
type TurnRequest struct {
	SessionID    string
	TurnID       string
	Instructions string
	Tools        []ToolSchema
	Messages     []Message
}

// TurnResult is the model's answer for one turn: a final reply, tool calls,
// or both (text accompanying a call is treated as interim and not spoken).
type TurnResult struct {
	Text      string
	ToolCalls []ToolCall
}

// Adapter bridges the worker with a reasoning provider.
type Adapter interface {
	CompleteTurn(ctx context.Context, req TurnRequest) (TurnResult, error)
}

// Config controls adapter construction.
type Config struct {
	Mode        string // auto|http|mock
	HTTPURL     string
	APIKey      string
	Model       string
	Temperature float64
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPAdapter(cfg), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("brain HTTP url is required for http mode")
		}
		return NewHTTPAdapter(cfg), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported brain adapter mode %q", cfg.Mode)
	}
}
