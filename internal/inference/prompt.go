package inference

import "fmt"

// DefaultAssistantLabel is the speaker label the prompt ends with.
const DefaultAssistantLabel = "Assistance"

// FormatPrompt renders the single-turn prompt "<role>: <content>\n<label>: ".
// An empty label selects DefaultAssistantLabel.
func FormatPrompt(role, content, label string) string {
	if label == "" {
		label = DefaultAssistantLabel
	}
	return fmt.Sprintf("%s: %s\n%s: ", role, content, label)
}
