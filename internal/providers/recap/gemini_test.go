package recap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"backbox/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func geminiCandidate(t *testing.T, payload string) *http.Response {
	t.Helper()
	body := map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": payload}},
			},
		}},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal candidate: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(string(raw))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestGenerator(t *testing.T, transport roundTripFunc) *GeminiGenerator {
	t.Helper()
	gen, err := NewGeminiGenerator(GeminiOptions{
		APIKey:     "dummy",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("NewGeminiGenerator returned error: %v", err)
	}
	return gen
}

func TestGeminiMiniRecap(t *testing.T) {
	payload := "```json\n{\"score\":130,\"strengths\":[\"a\",\"b\",\"c\"],\"improvements\":[\"d\"],\"nextAction\":\"do x\"}\n```"
	gen := newTestGenerator(t, func(r *http.Request) (*http.Response, error) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		return geminiCandidate(t, payload), nil
	})

	out, err := gen.MiniRecap(context.Background(), MiniRequest{
		Pillar:     domain.PillarP2,
		SourceText: "a bakery",
		Locale:     "en",
	})
	if err != nil {
		t.Fatalf("MiniRecap returned error: %v", err)
	}
	if out.Pillar != domain.PillarP2 {
		t.Fatalf("Pillar = %s, want p2", out.Pillar)
	}
	if *out.Score != 100 {
		t.Fatalf("Score = %d, want clamped to 100", *out.Score)
	}
	if len(out.Strengths) != 2 {
		t.Fatalf("Strengths = %d, want clamped to 2", len(out.Strengths))
	}
	if out.NextAction != "do x" {
		t.Fatalf("NextAction = %q, want %q", out.NextAction, "do x")
	}
}

func TestGeminiMiniRecapUpstreamFailure(t *testing.T) {
	gen := newTestGenerator(t, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("boom")
	})
	_, err := gen.MiniRecap(context.Background(), MiniRequest{Pillar: domain.PillarP1})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("MiniRecap error = %v, want ErrProviderFailure", err)
	}
}

func TestGeminiMiniRecapRejectsEmptyNextAction(t *testing.T) {
	gen := newTestGenerator(t, func(r *http.Request) (*http.Response, error) {
		return geminiCandidate(t, `{"strengths":[],"improvements":[],"nextAction":""}`), nil
	})
	_, err := gen.MiniRecap(context.Background(), MiniRequest{Pillar: domain.PillarP1})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("MiniRecap error = %v, want ErrProviderFailure", err)
	}
}

func TestGeminiFinalRecapFillsMissingPillars(t *testing.T) {
	payload := `{"priorities":["p one","p two","p three","p four"],"perPillar":{"p1":{"score":80,"strengths":["s"],"improvements":["i"],"nextAction":"n"}}}`
	gen := newTestGenerator(t, func(r *http.Request) (*http.Response, error) {
		return geminiCandidate(t, payload), nil
	})

	score := 55
	minis := map[domain.Pillar]domain.MiniRecapOutput{}
	for _, p := range domain.Pillars() {
		minis[p] = domain.MiniRecapOutput{Pillar: p, Score: &score, NextAction: "stored"}
	}
	out, err := gen.FinalRecap(context.Background(), FinalRequest{MiniRecaps: minis})
	if err != nil {
		t.Fatalf("FinalRecap returned error: %v", err)
	}
	if len(out.Priorities) != 3 {
		t.Fatalf("Priorities = %d, want clamped to 3", len(out.Priorities))
	}
	if out.PerPillar[domain.PillarP1].NextAction != "n" {
		t.Fatalf("p1 nextAction = %q, want %q", out.PerPillar[domain.PillarP1].NextAction, "n")
	}
	// Pillars absent from the model response fall back to stored mini-recaps.
	if out.PerPillar[domain.PillarP3].NextAction != "stored" {
		t.Fatalf("p3 nextAction = %q, want %q", out.PerPillar[domain.PillarP3].NextAction, "stored")
	}
}

func TestGeminiFinalRecapRequiresPriorities(t *testing.T) {
	gen := newTestGenerator(t, func(r *http.Request) (*http.Response, error) {
		return geminiCandidate(t, `{"priorities":[],"perPillar":{}}`), nil
	})
	_, err := gen.FinalRecap(context.Background(), FinalRequest{})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("FinalRecap error = %v, want ErrProviderFailure", err)
	}
}

func TestExtractJSONFragment(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", raw: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around json", raw: "Here you go: {\"a\":1} done", want: `{"a":1}`},
		{name: "empty", raw: "   ", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractJSONFragment(tc.raw); got != tc.want {
				t.Fatalf("extractJSONFragment() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStaticGeneratorDeterministic(t *testing.T) {
	gen := NewStaticGenerator()
	req := MiniRequest{Pillar: domain.PillarP1, Locale: "en", Answers: []domain.Answer{{FieldKey: "k"}}}
	a, err := gen.MiniRecap(context.Background(), req)
	if err != nil {
		t.Fatalf("MiniRecap returned error: %v", err)
	}
	b, _ := gen.MiniRecap(context.Background(), req)
	if a.NextAction != b.NextAction || *a.Score != *b.Score {
		t.Fatalf("StaticGenerator output differs across identical calls")
	}
	if len(a.Strengths) > 2 || len(a.Improvements) > 2 {
		t.Fatalf("StaticGenerator output exceeds contract bounds: %+v", a)
	}
}
