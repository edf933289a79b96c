package cognition

import (
	"context"
	"testing"

	"github.com/Najia-afk/aria-core/pkg/types"
)

func TestLexiconScanPositive(t *testing.T) {
	s, hits := lexiconScan("thanks so much, this is awesome and amazing work")
	if hits == 0 {
		t.Fatal("expected at least one recognized word")
	}
	if s.Valence <= 0 {
		t.Errorf("expected positive valence, got %v", s.Valence)
	}
}

func TestLexiconScanNoRecognizedWords(t *testing.T) {
	s, hits := lexiconScan("xyzzy plugh qwerty")
	if hits != 0 {
		t.Errorf("expected 0 hits, got %d", hits)
	}
	if s != (Sentiment{}) {
		t.Errorf("expected zero-value sentiment, got %+v", s)
	}
}

func TestClampUnit(t *testing.T) {
	cases := map[float64]float64{
		1.5:  1,
		-1.5: -1,
		0.3:  0.3,
	}
	for in, want := range cases {
		if got := clampUnit(in); got != want {
			t.Errorf("clampUnit(%v) = %v, want %v", in, got, want)
		}
	}
}

type fakeModelClient struct {
	chatResp *types.ChatResponse
	chatErr  error
}

func (f *fakeModelClient) ChatCompletion(ctx context.Context, req types.ChatRequest, costCeilingUSD float64) (*types.ChatResponse, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatResp, nil
}

func (f *fakeModelClient) Embeddings(ctx context.Context, req types.EmbeddingRequest) ([][]float32, error) {
	return nil, nil
}

func TestClassifySentimentShortConfidentSkipsRouter(t *testing.T) {
	client := &fakeModelClient{chatResp: &types.ChatResponse{Content: "valence=1 arousal=1 dominance=1"}}
	s, err := classifySentiment(context.Background(), client, "claude-3-haiku", "thanks so much, this is great and awesome")
	if err != nil {
		t.Fatalf("classifySentiment() error = %v", err)
	}
	if s.FromRouter {
		t.Error("expected the confident lexicon pass to skip the router")
	}
	if s.Valence <= 0 {
		t.Errorf("expected positive valence from lexicon, got %v", s.Valence)
	}
}

func TestClassifySentimentUnsureFallsBackToRouter(t *testing.T) {
	client := &fakeModelClient{chatResp: &types.ChatResponse{Content: "Valence=0.5 Arousal=-0.2 Dominance=0.1"}}
	s, err := classifySentiment(context.Background(), client, "claude-3-haiku", "xyzzy plugh")
	if err != nil {
		t.Fatalf("classifySentiment() error = %v", err)
	}
	if !s.FromRouter {
		t.Error("expected an unsure lexicon pass to fall back to the router")
	}
	if s.Valence != 0.5 || s.Arousal != -0.2 || s.Dominance != 0.1 {
		t.Errorf("unexpected sentiment from router parse: %+v", s)
	}
}

func TestClassifySentimentNoClientFallsBackToLexicon(t *testing.T) {
	s, err := classifySentiment(context.Background(), nil, "", "xyzzy plugh")
	if err != nil {
		t.Fatalf("classifySentiment() error = %v", err)
	}
	if s.FromRouter {
		t.Error("expected no-client path to never mark FromRouter")
	}
}

func TestClassifySentimentUnparsableRouterResponseKeepsLexicon(t *testing.T) {
	client := &fakeModelClient{chatResp: &types.ChatResponse{Content: "I cannot classify this."}}
	s, err := classifySentiment(context.Background(), client, "claude-3-haiku", "xyzzy plugh")
	if err != nil {
		t.Fatalf("classifySentiment() error = %v", err)
	}
	if s.FromRouter {
		t.Error("expected unparsable router content to keep the lexicon result")
	}
}

func TestToneFor(t *testing.T) {
	cases := []struct {
		name string
		s    Sentiment
		want Tone
	}{
		{"negative valence is empathetic", Sentiment{Valence: -0.5}, ToneEmpathetic},
		{"strong positive and aroused is celebratory", Sentiment{Valence: 0.7, Arousal: 0.6}, ToneCelebratory},
		{"low dominance is step by step", Sentiment{Valence: 0.1, Dominance: -0.4}, ToneStepByStep},
		{"neutral falls through", Sentiment{Valence: 0.1, Arousal: 0.1, Dominance: 0.1}, ToneNeutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToneFor(tc.s); got != tc.want {
				t.Errorf("ToneFor(%+v) = %v, want %v", tc.s, got, tc.want)
			}
		})
	}
}
