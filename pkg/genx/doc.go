// Package genx provides a provider-neutral interface for text generation.
//
// # Core Types
//
// ModelContext is what a model sees for one request:
//   - Prompts: system instructions
//   - Messages: the conversation, oldest first (user or model turns)
//   - Params: sampling parameters (temperature, max tokens, ...)
//
// Generator produces a single completion for a ModelContext:
//
//	type Generator interface {
//	    Generate(ctx context.Context, model string, mctx ModelContext) (*Result, error)
//	}
//
// # Implementations
//
//   - OpenAIGenerator: OpenAI chat completions and any OpenAI-compatible
//     endpoint (e.g. Groq via BaseURL)
//   - GeminiGenerator: Google Gemini via google.golang.org/genai
//
// # Package Structure
//
//   - genx/generators: name → Generator multiplexer
//   - genx/modelloader: build generators from YAML/JSON provider configs
//
// # Building a Context
//
//	var mcb genx.ModelContextBuilder
//	mcb.PromptText("system", "Answer briefly.")
//	mcb.UserText("", "Hello")
//	mcb.ModelText("", "Hi! How can I help?")
//	mcb.UserText("", "Tell me a joke")
//	mcb.Params = &genx.ModelParams{Temperature: 0.7, MaxTokens: 500}
//	res, err := gen.Generate(ctx, "groq/llama-3.1-8b", mcb.Build())
package genx
