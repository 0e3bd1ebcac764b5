// Package airesearch produces short model-written research notes for
// projects the deterministic stages could not settle. Its output is always
// advisory and lands in Notes, never in evidence or flag columns.
package airesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultModel     = "claude-haiku-4-5"
	defaultMaxTokens = 512
)

// Brief is what the stage knows about a project before asking.
type Brief struct {
	Name     string
	Website  string
	Chain    string
	Category string
	Notes    string
}

// Assessment is the model's structured answer.
type Assessment struct {
	Summary          string `json:"summary"`
	LikelyStablecoin bool   `json:"likely_stablecoin_support"`
	LikelyDefunct    bool   `json:"likely_defunct"`
	Confidence       string `json:"confidence"`
}

// Researcher answers research briefs.
type Researcher interface {
	Assess(ctx context.Context, brief Brief) (*Assessment, error)
}

// Option configures the researcher.
type Option func(*client)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *client) { c.model = model }
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) Option {
	return func(c *client) { c.maxTokens = n }
}

type messages interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

type client struct {
	messages  messages
	model     string
	maxTokens int64
}

// New creates a researcher backed by the Anthropic API.
func New(apiKey string, opts ...Option) Researcher {
	sdkClient := sdk.NewClient(option.WithAPIKey(apiKey))
	c := &client{
		messages:  &sdkClient.Messages,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

const systemPrompt = `You research blockchain ecosystem projects. Given a
project brief, answer with a single JSON object and nothing else:
{"summary": "<two sentences max>",
 "likely_stablecoin_support": <bool>,
 "likely_defunct": <bool>,
 "confidence": "low" | "medium" | "high"}
Base the answer only on well-known public information. When unsure, say so
in the summary and use "low" confidence.`

func (c *client) Assess(ctx context.Context, brief Brief) (*Assessment, error) {
	prompt := fmt.Sprintf("Project: %s\nWebsite: %s\nChain: %s\nCategory: %s\nExisting notes: %s",
		brief.Name, brief.Website, brief.Chain, brief.Category, brief.Notes)

	msg, err := c.messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "airesearch: assess %s", brief.Name)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}

	assessment, err := parseAssessment(text.String())
	if err != nil {
		return nil, err
	}

	zap.L().Debug("airesearch: assessed project",
		zap.String("project", brief.Name),
		zap.String("confidence", assessment.Confidence),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens))
	return assessment, nil
}

// parseAssessment tolerates prose around the JSON object; models sometimes
// preface the answer despite instructions.
func parseAssessment(text string) (*Assessment, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("airesearch: no JSON object in response: %.80s", text)
	}

	var a Assessment
	if err := json.Unmarshal([]byte(text[start:end+1]), &a); err != nil {
		return nil, eris.Wrap(err, "airesearch: parse response")
	}
	if a.Summary == "" {
		return nil, eris.New("airesearch: response missing summary")
	}
	if a.Confidence == "" {
		a.Confidence = "low"
	}
	return &a, nil
}
