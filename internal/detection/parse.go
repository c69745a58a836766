package detection

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseDetectionsJSON parses the JSON array returned by a vision backend.
// Model output is lenient territory: markdown fences are stripped, anything
// around the array is ignored, scores are clamped to [0,1], and entries
// without a usable name are dropped rather than failing the whole scan.
func parseDetectionsJSON(text string) ([]RawDetection, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "[")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	endIdx := strings.LastIndex(text, "]")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON array in response")
	}
	text = text[startIdx : endIdx+1]

	var raw []RawDetection
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	detections := make([]RawDetection, 0, len(raw))
	for _, d := range raw {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			continue
		}
		d.Confidence = clamp01(d.Confidence)
		if d.Quantity != nil && *d.Quantity <= 0 {
			d.Quantity = nil
			d.QuantityConfidence = nil
		}
		if d.QuantityConfidence != nil {
			qc := clamp01(*d.QuantityConfidence)
			d.QuantityConfidence = &qc
		}
		d.Unit = strings.TrimSpace(strings.ToLower(d.Unit))
		if d.Quantity == nil {
			d.Unit = ""
		}
		detections = append(detections, d)
	}

	return detections, nil
}
