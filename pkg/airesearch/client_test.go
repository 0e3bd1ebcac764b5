package airesearch

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessages struct {
	response *sdk.Message
	err      error
	gotModel string
}

func (f *fakeMessages) New(_ context.Context, params sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.gotModel = string(params.Model)
	return f.response, f.err
}

func textMessage(text string) *sdk.Message {
	return &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: text}}}
}

func TestAssess(t *testing.T) {
	fake := &fakeMessages{response: textMessage(
		`{"summary":"Thala is a live Aptos DEX.","likely_stablecoin_support":true,"likely_defunct":false,"confidence":"high"}`)}
	c := &client{messages: fake, model: "test-model", maxTokens: 128}

	a, err := c.Assess(context.Background(), Brief{Name: "Thala", Website: "https://thala.fi"})
	require.NoError(t, err)
	assert.Equal(t, "test-model", fake.gotModel)
	assert.True(t, a.LikelyStablecoin)
	assert.False(t, a.LikelyDefunct)
	assert.Equal(t, "high", a.Confidence)
}

func TestParseAssessment(t *testing.T) {
	t.Run("tolerates surrounding prose", func(t *testing.T) {
		a, err := parseAssessment("Here is my answer:\n{\"summary\":\"x\",\"confidence\":\"medium\"}\nHope that helps.")
		require.NoError(t, err)
		assert.Equal(t, "x", a.Summary)
		assert.Equal(t, "medium", a.Confidence)
	})

	t.Run("defaults missing confidence to low", func(t *testing.T) {
		a, err := parseAssessment(`{"summary":"x"}`)
		require.NoError(t, err)
		assert.Equal(t, "low", a.Confidence)
	})

	t.Run("rejects missing summary", func(t *testing.T) {
		_, err := parseAssessment(`{"confidence":"high"}`)
		assert.Error(t, err)
	})

	t.Run("rejects non-JSON", func(t *testing.T) {
		_, err := parseAssessment("I could not find this project.")
		assert.Error(t, err)
	})
}
