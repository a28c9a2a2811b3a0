package client

import (
	"regexp"
	"strings"
)

// ClassificationPrompt asks a vision model for the classification service payload
const ClassificationPrompt = `You are a dermatology image classifier.

The image is a square, centered photo of a single skin lesion.

Return JSON only:
{
  "prediction": 0.0,
  "class": "benign",
  "confidence": 0.0
}

HARD RULES
- "class" is exactly "benign" or "malignant".
- "prediction" is the probability in [0,1] that the lesion is malignant.
- "confidence" is your confidence in "class", in [0,1].
- If the image does not show a skin lesion, answer "benign" with confidence 0.0.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailComma   = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeModelJSON removes code fences, comments, and trailing commas from a
// model reply and keeps only the outermost {...}.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
