package moderation

import (
	"encoding/json"
	"strings"

	"chat-escrow/internal/models"
)

// VerdictKind tags a parsed review response.
type VerdictKind int

const (
	VerdictSafe VerdictKind = iota
	VerdictFlagged
	VerdictParseFailed
)

// Verdict is a review response. Reason and Category are set for
// VerdictFlagged; Raw is set for VerdictParseFailed.
type Verdict struct {
	Kind     VerdictKind
	Reason   string
	Category string
	Raw      string
}

type reviewResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason"`
	Category string `json:"category"`
}

// ParseVerdict reads the model output. Markdown code fences are tolerated.
// Any status other than "flagged" is safe.
func ParseVerdict(raw string) Verdict {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var resp reviewResponse
	if err := json.Unmarshal([]byte(clean), &resp); err != nil {
		return Verdict{Kind: VerdictParseFailed, Raw: raw}
	}

	if strings.EqualFold(strings.TrimSpace(resp.Status), models.ModerationFlagged) {
		return Verdict{Kind: VerdictFlagged, Reason: resp.Reason, Category: resp.Category}
	}
	return Verdict{Kind: VerdictSafe}
}

// Outcome is the moderation state persisted for a message.
type Outcome struct {
	Status   string  `json:"status"`
	Reason   *string `json:"reason"`
	Category *string `json:"category"`
}

// Outcome converts the verdict. An unparseable response is scanned for
// "flagged" or "unsafe" before defaulting to safe.
func (v Verdict) Outcome() Outcome {
	switch v.Kind {
	case VerdictFlagged:
		return Outcome{Status: models.ModerationFlagged, Reason: optional(v.Reason), Category: optional(v.Category)}
	case VerdictParseFailed:
		lower := strings.ToLower(v.Raw)
		if strings.Contains(lower, "flagged") || strings.Contains(lower, "unsafe") {
			reason := "Unstructured review response"
			return Outcome{Status: models.ModerationFlagged, Reason: &reason}
		}
		return Outcome{Status: models.ModerationSafe}
	default:
		return Outcome{Status: models.ModerationSafe}
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
