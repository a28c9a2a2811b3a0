package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Offset is a displacement in canvas pixel units
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CropTransform holds the user-chosen placement of a source image on the square canvas
type CropTransform struct {
	Scale  float64 `json:"scale"`
	Offset Offset  `json:"offset"`
}

// Class labels returned by the classification service
const (
	ClassBenign    = "benign"
	ClassMalignant = "malignant"
)

// DiagnosisResult is the decoded response of the classification service
type DiagnosisResult struct {
	Prediction float64 `json:"prediction"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// ErrMissingClass is returned when the class label is absent from a response
var ErrMissingClass = errors.New("missing required field \"class\"")

// UnmarshalJSON decodes the service payload. Keys match exactly, unlike the
// case-insensitive matching of struct decoding. Numeric fields accept either a
// JSON number or a numeric string and fall back to 0 when neither parses.
// Only a missing or mistyped class fails the decode.
func (r *DiagnosisResult) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	raw, ok := fields["class"]
	if !ok || string(raw) == "null" {
		return ErrMissingClass
	}
	var class string
	if err := json.Unmarshal(raw, &class); err != nil {
		return fmt.Errorf("field \"class\": %w", err)
	}

	r.Prediction = TolerantFloat(fields["prediction"])
	r.Class = class
	r.Confidence = TolerantFloat(fields["confidence"])
	return nil
}

// TolerantFloat converts a raw JSON value into a float64: a native number
// first, then a string holding a number, otherwise 0.
func TolerantFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}

	return 0
}

// IsBenign reports whether the predicted class is the benign label
func (r DiagnosisResult) IsBenign() bool {
	return r.Class == ClassBenign
}

// ConfidencePercent formats the confidence as a percentage with one decimal
func (r DiagnosisResult) ConfidencePercent() string {
	return fmt.Sprintf("%.1f%%", r.Confidence*100)
}
