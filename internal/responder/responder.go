// Package responder produces the oracle's in-character replies.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// ErrEmptyReply is returned when the model produced no text.
var ErrEmptyReply = errors.New("responder: empty reply")

// Responder turns a player's text into an oracle reply. Implementations keep
// no conversation state; the secret is passed on every call.
type Responder interface {
	Generate(ctx context.Context, secret, playerText string) (string, error)
}

// maxReplyTokens keeps replies to a few sentences.
const maxReplyTokens = 150

// Gemini is a Responder backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	log    zerolog.Logger
}

// NewGemini opens a client for model using apiKey.
func NewGemini(ctx context.Context, apiKey, model string, log zerolog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("responder: GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("responder: create client: %w", err)
	}
	m := client.GenerativeModel(model)
	m.SystemInstruction = genai.NewUserContent(genai.Text(persona))
	m.SetMaxOutputTokens(maxReplyTokens)
	return &Gemini{
		client: client,
		model:  m,
		log:    log.With().Str("component", "responder").Str("model", model).Logger(),
	}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error { return g.client.Close() }

func (g *Gemini) Generate(ctx context.Context, secret, playerText string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(userPrompt(secret, playerText)))
	if err != nil {
		return "", fmt.Errorf("responder: generate: %w", err)
	}
	text := strings.TrimSpace(getText(resp))
	if text == "" {
		return "", ErrEmptyReply
	}
	g.log.Debug().Int("chars", len(text)).Msg("reply generated")
	return text, nil
}

func getText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	return b.String()
}

// Func adapts a plain function to Responder.
type Func func(ctx context.Context, secret, playerText string) (string, error)

func (f Func) Generate(ctx context.Context, secret, playerText string) (string, error) {
	return f(ctx, secret, playerText)
}
