// Package upstream calls the AI generation backend.
//
// The usage-control layer treats generation as an opaque operation with a
// cost and a latency. A Generator receives a Prompt and returns a
// Completion; the context carries the per-attempt deadline set by the
// queue, so an abandoned attempt stops consuming upstream capacity.
//
// Two generators are provided:
//
//   - HTTPGenerator posts an OpenAI-style chat completion request to the
//     configured endpoint with a bearer key.
//   - EchoGenerator answers locally after a configurable latency and is
//     used by the development profile.
//
// When the backend does not report token usage, tokens are estimated from
// the prompt and completion length.
package upstream
