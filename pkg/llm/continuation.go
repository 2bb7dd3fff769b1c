package llm

import "context"

// DefaultMaxContinuations bounds how many times a truncated response is
// continued. The cap guarantees eventual termination even when the model
// keeps signaling more output.
const DefaultMaxContinuations = 2

// continueInstruction is the fixed user turn appended to resume a truncated
// response.
const continueInstruction = "Continue exactly where you left off. Do not repeat any previous output."

// Complete invokes the client and, when the response is truncated, appends
// the partial output as an assistant turn plus a fixed continue instruction
// and re-invokes, up to maxContinuations times.
//
// A failure on the first call is returned as-is. A failure during a
// continuation returns the content produced so far with Truncated=true, since
// partial output is still useful to the caller.
func Complete(ctx context.Context, client Client, req GenerateRequest, maxContinuations int) (*GenerateResult, error) {
	if maxContinuations < 0 {
		maxContinuations = DefaultMaxContinuations
	}

	result, err := client.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	combined := &GenerateResult{
		Text:       result.Text,
		Truncated:  result.Truncated,
		TokensUsed: result.TokensUsed,
	}

	for i := 0; i < maxContinuations && combined.Truncated; i++ {
		req.Messages = append(req.Messages,
			Message{Role: "assistant", Content: result.Text},
			Message{Role: "user", Content: continueInstruction},
		)

		result, err = client.Generate(ctx, req)
		if err != nil {
			// Keep what was produced; the caller sees a truncated result.
			combined.Truncated = true

			return combined, nil
		}

		combined.Text += result.Text
		combined.Truncated = result.Truncated
		combined.TokensUsed += result.TokensUsed
	}

	return combined, nil
}
