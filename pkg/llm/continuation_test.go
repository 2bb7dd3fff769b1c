package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient plays back canned results and records every request.
type scriptedClient struct {
	results  []*GenerateResult
	errs     []error
	requests []GenerateRequest
}

func (c *scriptedClient) Generate(_ context.Context, req GenerateRequest) (*GenerateResult, error) {
	call := len(c.requests)
	c.requests = append(c.requests, req)

	if call < len(c.errs) && c.errs[call] != nil {
		return nil, c.errs[call]
	}

	return c.results[call], nil
}

func TestCompleteWithoutTruncation(t *testing.T) {
	client := &scriptedClient{
		results: []*GenerateResult{{Text: "done", TokensUsed: 10}},
	}

	result, err := Complete(context.Background(), client, GenerateRequest{
		Messages: []Message{{Role: "user", Content: "generate"}},
	}, DefaultMaxContinuations)
	require.NoError(t, err)

	assert.Equal(t, "done", result.Text)
	assert.False(t, result.Truncated)
	assert.Len(t, client.requests, 1)
}

func TestCompleteContinuesTruncatedResponse(t *testing.T) {
	client := &scriptedClient{
		results: []*GenerateResult{
			{Text: "part one ", Truncated: true, TokensUsed: 100},
			{Text: "part two", TokensUsed: 40},
		},
	}

	result, err := Complete(context.Background(), client, GenerateRequest{
		Messages: []Message{{Role: "user", Content: "generate"}},
	}, DefaultMaxContinuations)
	require.NoError(t, err)

	assert.Equal(t, "part one part two", result.Text)
	assert.False(t, result.Truncated)
	assert.Equal(t, 140, result.TokensUsed)

	// The continuation request carries the partial output as an assistant
	// turn followed by the fixed continue instruction.
	require.Len(t, client.requests, 2)
	followup := client.requests[1].Messages
	require.Len(t, followup, 3)
	assert.Equal(t, "assistant", followup[1].Role)
	assert.Equal(t, "part one ", followup[1].Content)
	assert.Equal(t, "user", followup[2].Role)
	assert.Equal(t, continueInstruction, followup[2].Content)
}

func TestCompleteBoundsContinuations(t *testing.T) {
	client := &scriptedClient{
		results: []*GenerateResult{
			{Text: "a", Truncated: true},
			{Text: "b", Truncated: true},
			{Text: "c", Truncated: true},
			{Text: "never reached"},
		},
	}

	result, err := Complete(context.Background(), client, GenerateRequest{}, 2)
	require.NoError(t, err)

	assert.Equal(t, "abc", result.Text)
	assert.True(t, result.Truncated, "still truncated after the cap is honest output")
	assert.Len(t, client.requests, 3)
}

func TestCompleteFirstCallFailureIsFatal(t *testing.T) {
	upstream := &UpstreamModelError{Op: "call", Err: errors.New("timeout")}
	client := &scriptedClient{errs: []error{upstream}}

	result, err := Complete(context.Background(), client, GenerateRequest{}, DefaultMaxContinuations)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsUpstreamModelError(err))
}

func TestCompleteContinuationFailureKeepsPartial(t *testing.T) {
	client := &scriptedClient{
		results: []*GenerateResult{
			{Text: "partial output", Truncated: true, TokensUsed: 100},
			nil,
		},
		errs: []error{nil, &UpstreamModelError{Op: "call", Err: errors.New("rate limited")}},
	}

	result, err := Complete(context.Background(), client, GenerateRequest{}, DefaultMaxContinuations)
	require.NoError(t, err)

	assert.Equal(t, "partial output", result.Text)
	assert.True(t, result.Truncated)
}

func TestCompleteNegativeCapUsesDefault(t *testing.T) {
	client := &scriptedClient{
		results: []*GenerateResult{
			{Text: "a", Truncated: true},
			{Text: "b", Truncated: true},
			{Text: "c", Truncated: true},
		},
	}

	result, err := Complete(context.Background(), client, GenerateRequest{}, -1)
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Text)
	assert.Len(t, client.requests, 1+DefaultMaxContinuations)
}

func TestNewHTTPClientRequiresAPIKey(t *testing.T) {
	_, err := NewHTTPClient("https://api.example.com", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	client, err := NewHTTPClient("https://api.example.com", "key")
	require.NoError(t, err)
	assert.NotNil(t, client)
}
