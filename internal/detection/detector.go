package detection

// BoundingBox locates a detection within the source image. Coordinates are
// normalized to [0,1] relative to image width and height.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// RawDetection is one ingredient proposed by the vision model for a single
// image, before any classification or user confirmation.
type RawDetection struct {
	Name               string       `json:"name"`
	Confidence         float64      `json:"confidence"`
	Box                *BoundingBox `json:"box,omitempty"`
	Quantity           *float64     `json:"quantity,omitempty"`
	Unit               string       `json:"unit,omitempty"`
	QuantityConfidence *float64     `json:"quantity_confidence,omitempty"`
}

// Detector defines the interface for vision-model ingredient detection.
// Implementations are opaque to the rest of the system: they take image
// bytes and return named detections with confidence scores.
type Detector interface {
	// DetectItems analyzes a storage-area photo and returns the
	// ingredients the model believes are visible
	DetectItems(imageData []byte, contentType string) ([]RawDetection, error)
	// Close releases any resources held by the detector
	Close() error
}
