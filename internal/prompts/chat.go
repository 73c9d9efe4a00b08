package prompts

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ChatRequest wraps a prompt in an OpenAI-compatible chat completion request
// so it can be pasted into an API console. Nothing is sent anywhere.
func ChatRequest(modelName, prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
	}
}

// ChatRequestJSON returns the indented JSON body of ChatRequest.
func ChatRequestJSON(modelName, prompt string) ([]byte, error) {
	data, err := json.MarshalIndent(ChatRequest(modelName, prompt), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	return data, nil
}
