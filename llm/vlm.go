package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Default hosted vision-language endpoints.
const (
	DefaultDescribeURL = "https://ai.api.nvidia.com/v1/vlm/nvidia/neva-22b"
	DefaultDeplotURL   = "https://ai.api.nvidia.com/v1/vlm/google/deplot"
)

// VLMConfig configures an inline-image vision endpoint.
type VLMConfig struct {
	URL         string  `json:"url" yaml:"url" mapstructure:"url"`
	APIKey      string  `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	TopP        float64 `json:"top_p" yaml:"top_p" mapstructure:"top_p"`
}

// VLM calls a hosted vision-language model whose request embeds the image
// in the user message as an HTML <img> tag with a base64 data URL. The
// response uses the chat completion format.
type VLM struct {
	cfg  VLMConfig
	base compatClient
}

// NewVLM creates a client for the endpoint at cfg.URL.
func NewVLM(cfg VLMConfig) *VLM {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &VLM{
		cfg:  cfg,
		base: newCompatClient(Config{BaseURL: cfg.URL, APIKey: cfg.APIKey}, ""),
	}
}

// Ask sends prompt followed by the base64 JPEG image and returns the
// model's answer.
func (v *VLM) Ask(ctx context.Context, prompt, jpegBase64 string) (string, error) {
	content := fmt.Sprintf(`%s <img src="data:image/png;base64,%s" />`, prompt, jpegBase64)
	msgs, err := json.Marshal([]Message{{Role: "user", Content: content}})
	if err != nil {
		return "", err
	}
	resp, err := v.base.complete(ctx, "", chatCompletionRequest{
		Messages:    msgs,
		Temperature: v.cfg.Temperature,
		TopP:        v.cfg.TopP,
		MaxTokens:   v.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
