package llm

import "context"

// vendor holds the defaults of a hosted OpenAI-compatible API.
type vendor struct {
	BaseURL string
	Prefix  string // API path prefix
	Model   string
}

// vendors lists the OpenAI-compatible endpoints NewProvider knows about.
// "custom" has no default URL; the caller must supply one.
var vendors = map[string]vendor{
	"nvidia":     {BaseURL: "https://integrate.api.nvidia.com", Prefix: "/v1", Model: "meta/llama-3.1-70b-instruct"},
	"openai":     {BaseURL: "https://api.openai.com", Prefix: "/v1", Model: "text-embedding-3-small"},
	"lmstudio":   {BaseURL: "http://localhost:1234", Prefix: "/v1"},
	"openrouter": {BaseURL: "https://openrouter.ai/api", Prefix: "/v1"},
	"groq":       {BaseURL: "https://api.groq.com/openai", Prefix: "/v1", Model: "llama-3.3-70b-versatile"},
	"xai":        {BaseURL: "https://api.x.ai", Prefix: "/v1"},
	"gemini":     {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", Prefix: ""},
	"custom":     {Prefix: "/v1"},
}

// compatProvider serves every vendor in the table through the shared
// OpenAI-compatible client.
type compatProvider struct {
	name string
	base compatClient
}

func (p *compatProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *compatProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}

func (p *compatProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	return p.base.chatWithImages(ctx, req)
}
