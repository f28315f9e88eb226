package describe

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/brunobiangulo/mmingest/llm"
)

type fakeAsker struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeAsker) Ask(_ context.Context, prompt, b64 string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if _, err := base64.StdEncoding.DecodeString(b64); err != nil {
		return "", err
	}
	return f.answer, f.err
}

type fakeChat struct {
	got []llm.ChatRequest
}

func (f *fakeChat) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.got = append(f.got, req)
	return &llm.ChatResponse{Content: "explained"}, nil
}

func (f *fakeChat) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIsGraphText(t *testing.T) {
	tests := []struct {
		desc string
		want bool
	}{
		{"A bar Chart of revenue", true},
		{"a scatter PLOT", true},
		{"the table lists parts", true},
		{"a line graph", true},
		{"a photo of a cat", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsGraphText(tt.desc); got != tt.want {
			t.Errorf("IsGraphText(%q) = %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestNewVisionMissingKey(t *testing.T) {
	_, err := NewVision(Config{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestNewVisionDefaults(t *testing.T) {
	v, err := NewVision(Config{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if v.describer == nil || v.deplot == nil || v.explainer == nil {
		t.Fatal("expected all collaborators to be set")
	}
}

type fakeVision struct {
	fakeChat
	images []llm.VisionChatRequest
}

func (f *fakeVision) ChatWithImages(_ context.Context, req llm.VisionChatRequest) (*llm.ChatResponse, error) {
	f.images = append(f.images, req)
	return &llm.ChatResponse{Content: "a line chart"}, nil
}

func TestNewVisionChatModel(t *testing.T) {
	v, err := NewVision(Config{Vision: llm.Config{Provider: "ollama", Model: "llava"}})
	if err != nil {
		t.Fatalf("NewVision without API key: %v", err)
	}
	ask, ok := v.describer.(chatAsker)
	if !ok {
		t.Fatalf("describer = %T, want chatAsker", v.describer)
	}
	if ask.model != "llava" || v.deplot != v.describer {
		t.Errorf("vision engine = %+v", v)
	}

	if _, err := NewVision(Config{Vision: llm.Config{Provider: "nope"}}); err == nil {
		t.Error("expected error for unknown vision provider")
	}
}

func TestChatAskerSendsImagePart(t *testing.T) {
	fv := &fakeVision{}
	v := &Vision{describer: chatAsker{provider: fv, model: "llava"}}

	graph, err := v.IsGraph(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatal(err)
	}
	if !graph {
		t.Error("expected graph")
	}
	if len(fv.images) != 1 {
		t.Fatalf("vision calls = %d", len(fv.images))
	}
	req := fv.images[0]
	parts := req.Messages[0].Content
	if req.Model != "llava" || len(parts) != 2 || parts[0].Text != describePrompt {
		t.Fatalf("request = %+v", req)
	}
	if parts[1].ImageURL == nil || !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Errorf("image part = %+v", parts[1])
	}
}

func TestDescribeAndIsGraph(t *testing.T) {
	d := &fakeAsker{answer: "A pie chart of market share"}
	v := &Vision{describer: d}

	desc, err := v.Describe(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatal(err)
	}
	if desc != "A pie chart of market share" {
		t.Errorf("desc = %q", desc)
	}

	graph, err := v.IsGraph(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatal(err)
	}
	if !graph {
		t.Error("expected graph")
	}
	if d.prompts[0] != describePrompt {
		t.Errorf("prompt = %q", d.prompts[0])
	}
}

func TestIsGraphError(t *testing.T) {
	v := &Vision{describer: &fakeAsker{err: errors.New("boom")}}
	if _, err := v.IsGraph(context.Background(), pngBytes(t)); err == nil {
		t.Fatal("expected error")
	}
}

func TestChartToDescription(t *testing.T) {
	chat := &fakeChat{}
	v := &Vision{
		deplot:    &fakeAsker{answer: "year | sales <0x0A> 2020 | 5"},
		explainer: chat,
		model:     "meta/llama-3.1-70b-instruct",
	}

	got, err := v.ChartToDescription(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatal(err)
	}
	if got != "explained" {
		t.Errorf("got %q", got)
	}
	if len(chat.got) != 1 {
		t.Fatalf("chat calls = %d", len(chat.got))
	}
	msg := chat.got[0].Messages[0].Content
	if !strings.HasPrefix(msg, explainPrompt) || !strings.HasSuffix(msg, "2020 | 5") {
		t.Errorf("explain prompt = %q", msg)
	}
	if chat.got[0].Model != "meta/llama-3.1-70b-instruct" {
		t.Errorf("model = %q", chat.got[0].Model)
	}
}

func TestDescribeUndecodable(t *testing.T) {
	v := &Vision{describer: &fakeAsker{answer: "x"}}
	if _, err := v.Describe(context.Background(), []byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestJPEGBase64FlattensAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	b64, err := JPEGBase64(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatal(err)
	}
	out, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds().Dx() != 8 {
		t.Errorf("width = %d", out.Bounds().Dx())
	}
	// Transparent pixels become white.
	r, g, b, _ := out.At(7, 7).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("corner = %d,%d,%d, want near white", r>>8, g>>8, b>>8)
	}
}

func TestOff(t *testing.T) {
	var e Engine = Off{}
	if g, _ := e.IsGraph(context.Background(), nil); g {
		t.Error("Off reported a graph")
	}
}
