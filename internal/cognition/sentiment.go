package cognition

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Najia-afk/aria-core/pkg/types"
)

// Sentiment is the §4.5 step-2 blended {valence, arousal, dominance}
// score, each in [-1, 1].
type Sentiment struct {
	Valence   float64
	Arousal   float64
	Dominance float64
	// FromRouter marks a score that came from the router fallback rather
	// than the lexicon pass, for observability.
	FromRouter bool
}

// SentimentLengthThreshold is the default rune-count above which the
// lexicon pass defers to the router (§4.5 step 2 default: 280).
const SentimentLengthThreshold = 280

// lexicon is a small hand-built word list. It exists to give the pipeline
// a cheap, dependency-free first pass; it is intentionally not
// comprehensive — long or ambiguous text routes to the model instead.
var lexicon = map[string]Sentiment{
	"great":     {Valence: 0.8, Arousal: 0.5, Dominance: 0.4},
	"love":      {Valence: 0.9, Arousal: 0.6, Dominance: 0.3},
	"thanks":    {Valence: 0.6, Arousal: 0.2, Dominance: 0.1},
	"thank":     {Valence: 0.6, Arousal: 0.2, Dominance: 0.1},
	"awesome":   {Valence: 0.85, Arousal: 0.7, Dominance: 0.4},
	"happy":     {Valence: 0.75, Arousal: 0.5, Dominance: 0.2},
	"excited":   {Valence: 0.7, Arousal: 0.8, Dominance: 0.3},
	"good":      {Valence: 0.5, Arousal: 0.2, Dominance: 0.1},
	"bad":       {Valence: -0.5, Arousal: 0.2, Dominance: -0.1},
	"hate":      {Valence: -0.9, Arousal: 0.6, Dominance: 0.5},
	"angry":     {Valence: -0.8, Arousal: 0.9, Dominance: 0.6},
	"frustrated": {Valence: -0.6, Arousal: 0.7, Dominance: -0.2},
	"confused":  {Valence: -0.3, Arousal: 0.4, Dominance: -0.5},
	"sad":       {Valence: -0.7, Arousal: 0.2, Dominance: -0.4},
	"sorry":     {Valence: -0.2, Arousal: 0.2, Dominance: -0.3},
	"broken":    {Valence: -0.6, Arousal: 0.5, Dominance: -0.3},
	"urgent":    {Valence: -0.2, Arousal: 0.9, Dominance: 0.3},
	"stuck":     {Valence: -0.4, Arousal: 0.5, Dominance: -0.5},
	"error":     {Valence: -0.5, Arousal: 0.5, Dominance: -0.2},
	"fail":      {Valence: -0.6, Arousal: 0.5, Dominance: -0.3},
	"failed":    {Valence: -0.6, Arousal: 0.5, Dominance: -0.3},
	"please":    {Valence: 0.1, Arousal: 0.1, Dominance: -0.2},
	"amazing":   {Valence: 0.9, Arousal: 0.7, Dominance: 0.3},
	"congrat":   {Valence: 0.9, Arousal: 0.6, Dominance: 0.2},
	"congrats":  {Valence: 0.9, Arousal: 0.6, Dominance: 0.2},
	"done":      {Valence: 0.4, Arousal: 0.3, Dominance: 0.3},
	"finally":   {Valence: 0.3, Arousal: 0.4, Dominance: 0.2},
}

var wordPattern = regexp.MustCompile(`[a-zA-Z']+`)

// lexiconScan runs the cheap word-list pass. hits is the number of
// recognized words, used by the caller to decide whether the lexicon is
// "unsure" (§4.5 step 2).
func lexiconScan(text string) (score Sentiment, hits int) {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return Sentiment{}, 0
	}
	var sumV, sumA, sumD float64
	for _, w := range words {
		if s, ok := lexicon[w]; ok {
			sumV += s.Valence
			sumA += s.Arousal
			sumD += s.Dominance
			hits++
		}
	}
	if hits == 0 {
		return Sentiment{}, 0
	}
	return Sentiment{
		Valence:   clampUnit(sumV / float64(hits)),
		Arousal:   clampUnit(sumA / float64(hits)),
		Dominance: clampUnit(sumD / float64(hits)),
	}, hits
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// ModelClient is the subset of the router client the cognition pipeline
// needs for sentiment fallback and summarization; satisfied by
// *router.Client.
type ModelClient interface {
	ChatCompletion(ctx context.Context, req types.ChatRequest, costCeilingUSD float64) (*types.ChatResponse, error)
	Embeddings(ctx context.Context, req types.EmbeddingRequest) ([][]float32, error)
}

// vadLine parses a "valence=<f> arousal=<f> dominance=<f>" line out of a
// model response. The pipeline's sentiment-fallback prompt asks for
// exactly this shape because it is cheap to parse without committing the
// router wire format to a JSON schema the model might not honor.
var vadLine = regexp.MustCompile(`valence\s*=\s*(-?[0-9.]+)\s*arousal\s*=\s*(-?[0-9.]+)\s*dominance\s*=\s*(-?[0-9.]+)`)

// classifySentiment runs the lexicon pass and, when the text is long or
// the lexicon found too few recognized words to be confident, asks the
// router for a structured classification instead (§4.5 step 2).
func classifySentiment(ctx context.Context, client ModelClient, model string, text string) (Sentiment, error) {
	lex, hits := lexiconScan(text)
	unsure := hits < 2
	if len([]rune(text)) <= SentimentLengthThreshold && !unsure {
		return lex, nil
	}
	if client == nil || model == "" {
		// No router configured: fall back to the lexicon's best guess
		// rather than failing the whole pipeline over a non-critical step.
		return lex, nil
	}

	prompt := fmt.Sprintf(
		"Classify the emotional tone of this message on three scales from -1 to 1: "+
			"valence (negative to positive), arousal (calm to excited), dominance (submissive to assertive). "+
			"Respond with exactly one line of the form: valence=<f> arousal=<f> dominance=<f>\n\nMessage:\n%s", text)

	resp, err := client.ChatCompletion(ctx, types.ChatRequest{
		Model:     model,
		Messages:  []types.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens: 32,
	}, 0)
	if err != nil {
		return lex, err
	}

	m := vadLine.FindStringSubmatch(strings.ToLower(resp.Content))
	if m == nil {
		return lex, nil
	}
	v, _ := strconv.ParseFloat(m[1], 64)
	a, _ := strconv.ParseFloat(m[2], 64)
	d, _ := strconv.ParseFloat(m[3], 64)
	return Sentiment{Valence: clampUnit(v), Arousal: clampUnit(a), Dominance: clampUnit(d), FromRouter: true}, nil
}

// ToneFor maps a blended sentiment score to the §4.5 step-2 tone enum.
func ToneFor(s Sentiment) Tone {
	switch {
	case s.Valence <= -0.3:
		return ToneEmpathetic
	case s.Valence >= 0.6 && s.Arousal >= 0.5:
		return ToneCelebratory
	case s.Dominance <= -0.3 || s.Arousal <= -0.2:
		return ToneStepByStep
	default:
		return ToneNeutral
	}
}
