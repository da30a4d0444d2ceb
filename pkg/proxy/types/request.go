package types

// GenerateRequest is the body of an AI generation request.
type GenerateRequest struct {
	// Prompt is the text to generate from. Required.
	Prompt string `json:"prompt"`

	// Type is the generation kind. Defaults to the path suffix or "text".
	Type string `json:"type,omitempty"`

	// MaxTokens caps the completion length. Optional.
	MaxTokens int `json:"maxTokens,omitempty"`

	// Urgent places the request in the high priority lane.
	Urgent bool `json:"urgent,omitempty"`
}
