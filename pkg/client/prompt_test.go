package client

import "testing"

func TestSanitizeModelJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain",
			input:    `{"class": "benign"}`,
			expected: `{"class": "benign"}`,
		},
		{
			name:     "fenced",
			input:    "```json\n{\"class\": \"benign\"}\n```",
			expected: `{"class": "benign"}`,
		},
		{
			name:     "comments and trailing comma",
			input:    "{\n// model note\n\"class\": \"malignant\", /* why */\n\"confidence\": 0.8,\n}",
			expected: "{\n\n\"class\": \"malignant\", \n\"confidence\": 0.8\n}",
		},
		{
			name:     "surrounding prose",
			input:    `Sure! Here you go: {"class": "benign"} Hope this helps.`,
			expected: `{"class": "benign"}`,
		},
		{
			name:     "no json",
			input:    "  I cannot tell.  ",
			expected: "I cannot tell.",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := SanitizeModelJSON(test.input); got != test.expected {
				t.Errorf("SanitizeModelJSON() = %q, expected %q", got, test.expected)
			}
		})
	}
}
