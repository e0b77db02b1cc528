package gemini

import (
	"fmt"
	"strings"
)

// DefaultSystemInstruction is used when no system prompt is configured.
const DefaultSystemInstruction = `You are a content-safety reviewer for a private messaging app used by couples.
Review the message text and any attached image. Flag content involving self-harm,
threats or violence, sexual content involving minors, non-consensual intimate
imagery, harassment, or illegal goods. Ordinary affectionate or adult consensual
conversation between partners is safe.

Respond with JSON only, no prose:
{"status": "safe" | "flagged", "reason": "<short reason when flagged>", "category": "<self_harm|violence|sexual|harassment|illegal|other>"}`

// BuildPrompt renders the user turn for one message.
func BuildPrompt(text string, hasImage bool) string {
	var b strings.Builder
	text = strings.TrimSpace(text)
	if text == "" {
		b.WriteString("The message has no text.\n")
	} else {
		fmt.Fprintf(&b, "Message text:\n\"\"\"\n%s\n\"\"\"\n", text)
	}
	if hasImage {
		b.WriteString("An image is attached to the message.\n")
	}
	b.WriteString("Classify this message.")
	return b.String()
}
