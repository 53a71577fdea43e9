package recap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backbox/internal/domain"
)

type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiGenerator produces recaps through the Gemini generateContent API.
// Upstream failures surface as domain.ErrProviderFailure; there is no silent
// fallback because a failed generation must not consume quota or advance
// state.
type GeminiGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

const (
	geminiDefaultTimeout = 30 * time.Second
	geminiProviderName   = "gemini"
)

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiMiniPayload struct {
	Score        *int     `json:"score"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	NextAction   string   `json:"nextAction"`
}

type geminiFinalPayload struct {
	Priorities []string `json:"priorities"`
	PerPillar  map[string]struct {
		Score        *int     `json:"score"`
		Strengths    []string `json:"strengths"`
		Improvements []string `json:"improvements"`
		NextAction   string   `json:"nextAction"`
	} `json:"perPillar"`
}

func NewGeminiGenerator(opts GeminiOptions) (*GeminiGenerator, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	return &GeminiGenerator{
		apiKey:  opts.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

func (g *GeminiGenerator) MiniRecap(ctx context.Context, req MiniRequest) (*domain.MiniRecapOutput, error) {
	text, err := g.generate(ctx, g.buildMiniPrompt(req), 0.4)
	if err != nil {
		return nil, err
	}
	parsed, err := parseGeminiPayload[geminiMiniPayload](text)
	if err != nil {
		return nil, fmt.Errorf("%w: decode mini recap: %v", domain.ErrProviderFailure, err)
	}
	out := &domain.MiniRecapOutput{
		Pillar:       req.Pillar,
		Score:        parsed.Score,
		Strengths:    parsed.Strengths,
		Improvements: parsed.Improvements,
		NextAction:   parsed.NextAction,
	}
	out.Normalize()
	if out.NextAction == "" {
		return nil, fmt.Errorf("%w: mini recap missing nextAction", domain.ErrProviderFailure)
	}
	return out, nil
}

func (g *GeminiGenerator) FinalRecap(ctx context.Context, req FinalRequest) (*domain.FinalRecapOutput, error) {
	text, err := g.generate(ctx, g.buildFinalPrompt(req), 0.5)
	if err != nil {
		return nil, err
	}
	parsed, err := parseGeminiPayload[geminiFinalPayload](text)
	if err != nil {
		return nil, fmt.Errorf("%w: decode final recap: %v", domain.ErrProviderFailure, err)
	}
	if len(parsed.Priorities) == 0 {
		return nil, fmt.Errorf("%w: final recap missing priorities", domain.ErrProviderFailure)
	}
	out := &domain.FinalRecapOutput{
		Priorities: parsed.Priorities,
		PerPillar:  map[domain.Pillar]domain.PillarRecap{},
	}
	for _, pillar := range domain.Pillars() {
		entry, ok := parsed.PerPillar[string(pillar)]
		if !ok {
			// Synthesize from the stored mini-recap rather than dropping the pillar.
			mini := req.MiniRecaps[pillar]
			out.PerPillar[pillar] = domain.PillarRecap{
				Score:        mini.Score,
				Strengths:    mini.Strengths,
				Improvements: mini.Improvements,
				NextAction:   mini.NextAction,
			}
			continue
		}
		out.PerPillar[pillar] = domain.PillarRecap{
			Score:        entry.Score,
			Strengths:    entry.Strengths,
			Improvements: entry.Improvements,
			NextAction:   entry.NextAction,
		}
	}
	out.Normalize()
	return out, nil
}

func (g *GeminiGenerator) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      temperature,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("%w: encode request: %v", domain.ErrProviderFailure, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), &buf)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", domain.ErrProviderFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: gemini returned status %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrProviderFailure, err)
	}
	text := extractText(out)
	if text == "" {
		return "", fmt.Errorf("%w: empty candidate", domain.ErrProviderFailure)
	}
	return text, nil
}

func (g *GeminiGenerator) endpoint() string {
	base := strings.TrimRight(g.baseURL, "/")
	model := url.PathEscape(g.model)
	return fmt.Sprintf("%s/models/%s:generateContent", base, model)
}

func (g *GeminiGenerator) buildMiniPrompt(req MiniRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are a business coach reviewing one assessment pillar of a project. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"score":number|null,"strengths":string[],"improvements":string[],"nextAction":string}`)
	fmt.Fprintf(sb, ". Score is 0-100. Give at most two strengths and two improvements. Write in locale '%s'. Pillar under review: %s.", req.Locale, req.Pillar)
	fmt.Fprintf(sb, " Project description: %q.", req.SourceText)
	for _, ans := range req.Answers {
		fmt.Fprintf(sb, " Answer %s: %s.", ans.FieldKey, string(ans.Content))
	}
	return sb.String()
}

func (g *GeminiGenerator) buildFinalPrompt(req FinalRequest) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are a business coach writing the final synthesis across four assessment pillars. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"priorities":string[],"perPillar":{"p1":{"score":number|null,"strengths":string[],"improvements":string[],"nextAction":string},"p2":{},"p3":{},"p4":{}}}`)
	fmt.Fprintf(sb, ". Give one to three priorities. Write in locale '%s'. Project description: %q.", req.Locale, req.SourceText)
	for _, pillar := range domain.Pillars() {
		if mini, ok := req.MiniRecaps[pillar]; ok {
			raw, _ := json.Marshal(mini)
			fmt.Fprintf(sb, " Stored recap for %s: %s.", pillar, raw)
		}
	}
	return sb.String()
}

func extractText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

func parseGeminiPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

var _ Generator = (*GeminiGenerator)(nil)
