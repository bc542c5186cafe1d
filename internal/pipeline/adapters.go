package pipeline

import (
	"context"

	"genzweekly/internal/narrative"
)

// LLMScriptWriter writes podcast scripts with the narrative package
type LLMScriptWriter struct {
	client narrative.LLMClient
}

// NewLLMScriptWriter creates a script writer
func NewLLMScriptWriter(client narrative.LLMClient) *LLMScriptWriter {
	return &LLMScriptWriter{client: client}
}

// WriteScript implements ScriptWriter
func (w *LLMScriptWriter) WriteScript(ctx context.Context, stories []narrative.Story, minutes int) (string, error) {
	return narrative.GenerateScript(ctx, w.client, stories, minutes)
}

// ScriptWriterFunc adapts a function to ScriptWriter
type ScriptWriterFunc func(ctx context.Context, stories []narrative.Story, minutes int) (string, error)

// WriteScript implements ScriptWriter
func (f ScriptWriterFunc) WriteScript(ctx context.Context, stories []narrative.Story, minutes int) (string, error) {
	return f(ctx, stories, minutes)
}
