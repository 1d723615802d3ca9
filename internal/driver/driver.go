// Package driver defines the LLM collaborator contract the Proposer
// depends on, grounded on the teacher's internal/perception.LLMClient
// interface shape and amnesic/drivers/base.py's LLMDriver ABC.
package driver

import "context"

// Driver is the contract every model backend must satisfy. Unlike the
// teacher's LLMClient (a single Complete/CompleteWithSystem pair), this
// mirrors the Python reference's richer surface: embeddings, schema-forced
// structured generation (streamed or not), and raw text generation, plus
// a running token-usage counter the Proposer reads after each call.
type Driver interface {
	// Embed returns a vector embedding for text. Drivers that are not also
	// embedding backends may return ErrUnsupported.
	Embed(ctx context.Context, text string) ([]float32, error)

	// GenerateStructured asks the driver to produce output conforming to
	// schema (a JSON Schema document), retrying internally up to retries
	// times on a malformed reply. Returns the raw reply bytes for the
	// Proposer's healer pipeline to parse — the Driver does not itself
	// know about Proposal shapes.
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, schema []byte, retries int) ([]byte, error)

	// GenerateStructuredStreaming is like GenerateStructured but invokes
	// onToken for each chunk of raw output as it arrives, in addition to
	// returning the final accumulated bytes. onToken may be nil.
	GenerateStructuredStreaming(ctx context.Context, systemPrompt, userPrompt string, schema []byte, retries int, onToken func(string)) ([]byte, error)

	// GenerateRaw returns a plain-text completion with no schema coercion.
	GenerateRaw(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// LastTokenUsage reports an approximate token count for the most
	// recent request this Driver served, mirroring the Python base
	// class's last_request_tokens 4-chars-per-token heuristic.
	LastTokenUsage() int

	// Name identifies the driver for logging and the session transcript.
	Name() string
}

// ApproxTokens applies the reference implementation's 4-characters-per-token
// rule of thumb, used by drivers that don't receive an exact usage count
// from their backend.
func ApproxTokens(systemPrompt, userPrompt string) int {
	return (len(systemPrompt) + len(userPrompt)) / 4
}
