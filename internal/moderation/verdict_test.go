package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-escrow/internal/models"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Verdict
	}{
		{"safe", `{"status":"safe"}`, Verdict{Kind: VerdictSafe}},
		{"flagged", `{"status":"flagged","reason":"threat","category":"violence"}`,
			Verdict{Kind: VerdictFlagged, Reason: "threat", Category: "violence"}},
		{"flagged upper case", `{"status":" FLAGGED "}`, Verdict{Kind: VerdictFlagged}},
		{"unknown status is safe", `{"status":"maybe"}`, Verdict{Kind: VerdictSafe}},
		{"code fence", "```json\n{\"status\":\"flagged\",\"reason\":\"x\"}\n```", Verdict{Kind: VerdictFlagged, Reason: "x"}},
		{"not json", "This content is unsafe.", Verdict{Kind: VerdictParseFailed, Raw: "This content is unsafe."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.raw))
		})
	}
}

func TestVerdictOutcome(t *testing.T) {
	flagged := Verdict{Kind: VerdictFlagged, Reason: "threat", Category: "violence"}.Outcome()
	assert.Equal(t, models.ModerationFlagged, flagged.Status)
	assert.Equal(t, "threat", *flagged.Reason)
	assert.Equal(t, "violence", *flagged.Category)

	noDetail := Verdict{Kind: VerdictFlagged}.Outcome()
	assert.Nil(t, noDetail.Reason)
	assert.Nil(t, noDetail.Category)

	assert.Equal(t, Outcome{Status: models.ModerationSafe}, Verdict{Kind: VerdictSafe}.Outcome())

	fallbackFlagged := Verdict{Kind: VerdictParseFailed, Raw: "status: FLAGGED"}.Outcome()
	assert.Equal(t, models.ModerationFlagged, fallbackFlagged.Status)

	fallbackUnsafe := Verdict{Kind: VerdictParseFailed, Raw: "looks unsafe to me"}.Outcome()
	assert.Equal(t, models.ModerationFlagged, fallbackUnsafe.Status)

	fallbackSafe := Verdict{Kind: VerdictParseFailed, Raw: "all fine"}.Outcome()
	assert.Equal(t, Outcome{Status: models.ModerationSafe}, fallbackSafe)
}
