package mmingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/brunobiangulo/mmingest/chunker"
	"github.com/brunobiangulo/mmingest/layout"
	"github.com/brunobiangulo/mmingest/llm"
	"github.com/brunobiangulo/mmingest/pdfsource"
)

// Config holds all configuration for the ingestion Engine.
type Config struct {
	// OutputDir receives one directory per run, holding the exported
	// tables, images and slides of every document.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// DBPath is the SQLite file of the record index.
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`

	// Collection is the default index collection.
	Collection string `json:"collection" yaml:"collection" mapstructure:"collection"`

	// APIKey authenticates the hosted vision and language endpoints.
	APIKey string `json:"api_key" yaml:"api_key" mapstructure:"api_key"`

	// Offline disables every hosted model: visuals get no generated
	// descriptions and nodes are indexed for text search only.
	Offline bool `json:"offline" yaml:"offline" mapstructure:"offline"`

	// Vision-language models. An empty API URL is derived from the model
	// name under the hosted VLM base.
	ImageModel    string `json:"image_model" yaml:"image_model" mapstructure:"image_model"`
	ImageModelAPI string `json:"image_model_api" yaml:"image_model_api" mapstructure:"image_model_api"`
	GraphModel    string `json:"graph_model" yaml:"graph_model" mapstructure:"graph_model"`
	GraphModelAPI string `json:"graph_model_api" yaml:"graph_model_api" mapstructure:"graph_model_api"`

	// Vision, when its provider is set, reads images with a vision-capable
	// chat model instead of the hosted VLM endpoints above.
	Vision llm.Config `json:"vision" yaml:"vision" mapstructure:"vision"`

	// LLM providers
	Chat      llm.Config `json:"chat" yaml:"chat" mapstructure:"chat"`
	Embedding llm.Config `json:"embedding" yaml:"embedding" mapstructure:"embedding"`

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim" mapstructure:"embedding_dim"`

	// Decomposition
	GroupChars         int     `json:"group_chars" yaml:"group_chars" mapstructure:"group_chars"`
	ContextThreshold   float64 `json:"context_threshold" yaml:"context_threshold" mapstructure:"context_threshold"`
	StrictDescriptions bool    `json:"strict_descriptions" yaml:"strict_descriptions" mapstructure:"strict_descriptions"`
	RenderScale        float64 `json:"render_scale" yaml:"render_scale" mapstructure:"render_scale"`
	SlideScale         float64 `json:"slide_scale" yaml:"slide_scale" mapstructure:"slide_scale"`

	// Chunking
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens" mapstructure:"max_chunk_tokens"`
	ChunkOverlap   int `json:"chunk_overlap" yaml:"chunk_overlap" mapstructure:"chunk_overlap"`

	// Converter is the office suite binary used to convert decks.
	Converter string `json:"converter" yaml:"converter" mapstructure:"converter"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// vlmBase is the hosted VLM endpoint prefix model names are appended to.
const vlmBase = "https://ai.api.nvidia.com/v1/vlm/"

// DefaultConfig returns a Config with the hosted NVIDIA models.
func DefaultConfig() Config {
	return Config{
		OutputDir:  "vectorstore",
		DBPath:     "vectorstore/mmingest.db",
		Collection: "multimodal_rag",
		ImageModel: "nvidia/neva-22b",
		GraphModel: "google/deplot",
		Chat: llm.Config{
			Provider: "nvidia",
			Model:    "meta/llama-3.1-70b-instruct",
		},
		Embedding: llm.Config{
			Provider:  "nvidia",
			Model:     "nvidia/nv-embedqa-e5-v5",
			InputType: "passage",
		},
		EmbeddingDim:     1024,
		GroupChars:       layout.DefaultGroupChars,
		ContextThreshold: layout.DefaultContextThreshold,
		RenderScale:      pdfsource.DefaultRenderScale,
		SlideScale:       1,
		MaxChunkTokens:   chunker.DefaultMaxTokens,
		ChunkOverlap:     chunker.DefaultOverlap,
		Converter:        "libreoffice",
		LogLevel:         "info",
	}
}

// imageModelURL resolves the describing model endpoint.
func (c *Config) imageModelURL() string {
	if c.ImageModelAPI != "" {
		return c.ImageModelAPI
	}
	return vlmBase + c.ImageModel
}

// graphModelURL resolves the chart-to-table model endpoint.
func (c *Config) graphModelURL() string {
	if c.GraphModelAPI != "" {
		return c.GraphModelAPI
	}
	return vlmBase + c.GraphModel
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is empty"))
	}
	if c.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding_dim must be positive, got %d", c.EmbeddingDim))
	}
	if c.ContextThreshold < 0 || c.ContextThreshold > 1 {
		errs = append(errs, fmt.Errorf("context_threshold must be within [0, 1], got %g", c.ContextThreshold))
	}
	if c.GroupChars < 0 || c.MaxChunkTokens < 0 || c.ChunkOverlap < 0 {
		errs = append(errs, errors.New("sizes must not be negative"))
	}
	if c.RenderScale < 0 || c.SlideScale < 0 {
		errs = append(errs, errors.New("scales must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs[0])
	}
	return nil
}

// envBindings maps config keys to the plain environment variables the
// hosted pipeline has always read, after the MMINGEST_ form.
var envBindings = map[string]string{
	"api_key":         "NVIDIA_API_KEY",
	"chat.model":      "LLM",
	"embedding.model": "EMBED_MODEL",
	"graph_model":     "GRAPH_MODEL",
	"image_model":     "IMAGE_MODEL",
	"graph_model_api": "GRAPH_MODEL_API",
	"image_model_api": "IMAGE_MODEL_API",
}

// LoadConfig reads configuration from path (YAML or JSON, optional) and the
// environment. A .env file in the working directory is loaded first when
// present. Environment variables take the MMINGEST_ prefix with nested keys
// joined by underscores, e.g. MMINGEST_CHAT_BASE_URL.
func LoadConfig(path string) (Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("MMINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "MMINGEST_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: reading %s: %w", ErrInvalidConfig, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("collection", d.Collection)
	v.SetDefault("api_key", d.APIKey)
	v.SetDefault("offline", d.Offline)
	v.SetDefault("image_model", d.ImageModel)
	v.SetDefault("image_model_api", d.ImageModelAPI)
	v.SetDefault("graph_model", d.GraphModel)
	v.SetDefault("graph_model_api", d.GraphModelAPI)
	for prefix, lc := range map[string]llm.Config{"vision": d.Vision, "chat": d.Chat, "embedding": d.Embedding} {
		v.SetDefault(prefix+".provider", lc.Provider)
		v.SetDefault(prefix+".model", lc.Model)
		v.SetDefault(prefix+".base_url", lc.BaseURL)
		v.SetDefault(prefix+".api_key", lc.APIKey)
		v.SetDefault(prefix+".input_type", lc.InputType)
	}
	v.SetDefault("embedding_dim", d.EmbeddingDim)
	v.SetDefault("group_chars", d.GroupChars)
	v.SetDefault("context_threshold", d.ContextThreshold)
	v.SetDefault("strict_descriptions", d.StrictDescriptions)
	v.SetDefault("render_scale", d.RenderScale)
	v.SetDefault("slide_scale", d.SlideScale)
	v.SetDefault("max_chunk_tokens", d.MaxChunkTokens)
	v.SetDefault("chunk_overlap", d.ChunkOverlap)
	v.SetDefault("converter", d.Converter)
	v.SetDefault("log_level", d.LogLevel)
}
