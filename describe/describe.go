// Package describe turns images into text: a free-form description, a
// chart/graph check, and a prose explanation of a chart's underlying data.
package describe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brunobiangulo/mmingest/llm"
)

// ErrMissingAPIKey is returned when the vision endpoints have no API key.
var ErrMissingAPIKey = errors.New("describe: API key not set")

// Engine describes images. Images are encoded bytes (PNG, JPEG, ...).
type Engine interface {
	// Describe returns a free-form description of the image.
	Describe(ctx context.Context, img []byte) (string, error)
	// IsGraph reports whether the image is a graph, plot, chart or table.
	IsGraph(ctx context.Context, img []byte) (bool, error)
	// ChartToDescription explains the data plotted in a chart image.
	ChartToDescription(ctx context.Context, img []byte) (string, error)
}

const (
	describePrompt = "Describe this image."
	deplotPrompt   = "Generate underlying data of this figure:"
	explainPrompt  = "Explain the following linearized table for LLM usage: "
)

var graphKeywords = []string{"graph", "plot", "chart", "table"}

// IsGraphText reports whether an image description mentions a graph, plot,
// chart or table.
func IsGraphText(desc string) bool {
	desc = strings.ToLower(desc)
	for _, kw := range graphKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// Config configures the vision pipeline. When Vision names a provider, its
// chat model reads the images in place of the hosted VLM endpoints.
type Config struct {
	APIKey      string     `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	DescribeURL string     `json:"describe_url" yaml:"describe_url" mapstructure:"describe_url"`
	DeplotURL   string     `json:"deplot_url" yaml:"deplot_url" mapstructure:"deplot_url"`
	Vision      llm.Config `json:"vision" yaml:"vision" mapstructure:"vision"`
	Explain     llm.Config `json:"explain" yaml:"explain" mapstructure:"explain"`
}

// asker is a vision model that answers a prompt about one image.
type asker interface {
	Ask(ctx context.Context, prompt, jpegBase64 string) (string, error)
}

// chatAsker asks a chat model that takes OpenAI-style image parts.
type chatAsker struct {
	provider llm.VisionProvider
	model    string
}

func (a chatAsker) Ask(ctx context.Context, prompt, jpegBase64 string) (string, error) {
	resp, err := a.provider.ChatWithImages(ctx, llm.VisionChatRequest{
		Model: a.model,
		Messages: []llm.VisionMessage{{
			Role: "user",
			Content: []llm.ContentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &llm.ImageURL{URL: "data:image/jpeg;base64," + jpegBase64}},
			},
		}},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Vision is the Engine backed by a describing VLM, a chart-to-table VLM and
// a chat model that explains the extracted table.
type Vision struct {
	describer asker
	deplot    asker
	explainer llm.Provider
	model     string
}

// NewVision builds a Vision engine from cfg. Unset URLs fall back to the
// hosted NVIDIA endpoints and the explainer defaults to the nvidia provider.
func NewVision(cfg Config) (*Vision, error) {
	if cfg.Vision.Provider != "" {
		return newChatVision(cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.DescribeURL == "" {
		cfg.DescribeURL = llm.DefaultDescribeURL
	}
	if cfg.DeplotURL == "" {
		cfg.DeplotURL = llm.DefaultDeplotURL
	}
	if cfg.Explain.Provider == "" {
		cfg.Explain.Provider = "nvidia"
	}
	if cfg.Explain.APIKey == "" {
		cfg.Explain.APIKey = cfg.APIKey
	}

	explainer, err := llm.NewProvider(cfg.Explain)
	if err != nil {
		return nil, fmt.Errorf("describe: explainer: %w", err)
	}

	return &Vision{
		describer: llm.NewVLM(llm.VLMConfig{
			URL:         cfg.DescribeURL,
			APIKey:      cfg.APIKey,
			Temperature: 0.2,
			TopP:        0.7,
		}),
		deplot: llm.NewVLM(llm.VLMConfig{
			URL:         cfg.DeplotURL,
			APIKey:      cfg.APIKey,
			Temperature: 0.2,
			TopP:        0.2,
		}),
		explainer: explainer,
		model:     cfg.Explain.Model,
	}, nil
}

// newChatVision builds a Vision engine whose describe and chart steps go
// to one vision-capable chat model.
func newChatVision(cfg Config) (*Vision, error) {
	if cfg.Vision.APIKey == "" {
		cfg.Vision.APIKey = cfg.APIKey
	}
	vp, err := llm.NewVisionProvider(cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("describe: vision model: %w", err)
	}
	if cfg.Explain.Provider == "" {
		cfg.Explain = cfg.Vision
	}
	if cfg.Explain.APIKey == "" {
		cfg.Explain.APIKey = cfg.APIKey
	}
	explainer, err := llm.NewProvider(cfg.Explain)
	if err != nil {
		return nil, fmt.Errorf("describe: explainer: %w", err)
	}
	ask := chatAsker{provider: vp, model: cfg.Vision.Model}
	return &Vision{describer: ask, deplot: ask, explainer: explainer, model: cfg.Explain.Model}, nil
}

func (v *Vision) Describe(ctx context.Context, img []byte) (string, error) {
	b64, err := JPEGBase64(img)
	if err != nil {
		return "", err
	}
	desc, err := v.describer.Ask(ctx, describePrompt, b64)
	if err != nil {
		return "", fmt.Errorf("describe: describing image: %w", err)
	}
	return desc, nil
}

func (v *Vision) IsGraph(ctx context.Context, img []byte) (bool, error) {
	desc, err := v.Describe(ctx, img)
	if err != nil {
		return false, err
	}
	return IsGraphText(desc), nil
}

func (v *Vision) ChartToDescription(ctx context.Context, img []byte) (string, error) {
	b64, err := JPEGBase64(img)
	if err != nil {
		return "", err
	}
	table, err := v.deplot.Ask(ctx, deplotPrompt, b64)
	if err != nil {
		return "", fmt.Errorf("describe: extracting chart data: %w", err)
	}
	slog.Debug("describe: chart data extracted", "chars", len(table))

	resp, err := v.explainer.Chat(ctx, llm.ChatRequest{
		Model:    v.model,
		Messages: []llm.Message{{Role: "user", Content: explainPrompt + table}},
	})
	if err != nil {
		return "", fmt.Errorf("describe: explaining chart data: %w", err)
	}
	return resp.Content, nil
}

// Off is an Engine that describes nothing: empty descriptions, never a graph.
type Off struct{}

func (Off) Describe(context.Context, []byte) (string, error)           { return "", nil }
func (Off) IsGraph(context.Context, []byte) (bool, error)              { return false, nil }
func (Off) ChartToDescription(context.Context, []byte) (string, error) { return "", nil }
