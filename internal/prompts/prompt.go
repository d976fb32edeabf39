// Package prompts holds the versioned prompt templates sent to the model.
package prompts

// PromptVersion represents a version identifier for prompts.
type PromptVersion string

const (
	// PromptV1 is the first version of prompts.
	PromptV1 PromptVersion = "1.0.0"
)

// Registered prompt ids.
const (
	IDSystem    = "system"
	IDObjective = "objective"
	IDVerify    = "verify"
	IDScreen    = "screen"
	IDAssert    = "assert_with_ai"
	IDExtract   = "remember_with_ai"
)

// Prompt represents a versioned prompt with metadata.
type Prompt struct {
	ID          string        // Unique identifier (e.g., "system", "objective")
	Version     PromptVersion // Version of this prompt
	Content     string        // Template text with {{variable}} placeholders
	Description string        // Human-readable description
	Tags        []string      // Tags for categorization
	Deprecated  bool          // True if this version is deprecated
}
