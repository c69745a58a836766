package detection

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// detectionPrompt is the shared prompt used by every vision backend.
const detectionPrompt = `You are analyzing a photograph of a household food storage area (fridge, freezer, pantry shelf, or counter). Identify every distinct food ingredient you can see.

For each ingredient report:

1. **name**: the ingredient name in simple lowercase English (e.g. "tomato", "milk", "chicken breast"). Name the food itself, not the packaging.
2. **confidence**: how certain you are this ingredient is present, as a number between 0 and 1.
3. **quantity** and **unit** (optional): your best estimate of the visible amount. Use "piece" for countable items, "g"/"kg" for weight, "ml"/"l" for liquids. Omit both if you cannot estimate.
4. **quantity_confidence** (optional): how certain you are of the quantity estimate, 0 to 1.
5. **box** (optional): bounding box of the item as {"x":..,"y":..,"w":..,"h":..} with coordinates normalized to the image size.

Return ONLY a valid JSON array in this exact format:
[
  {"name": "tomato", "confidence": 0.92, "quantity": 6, "unit": "piece", "quantity_confidence": 0.5, "box": {"x": 0.1, "y": 0.4, "w": 0.2, "h": 0.2}}
]

Important:
- One entry per distinct ingredient, not per individual item
- confidence must be a number between 0 and 1, never a string
- Do not invent ingredients you cannot actually see
- Do not include any text before or after the JSON array
- Do not use markdown code blocks`

// normalizeImage converts whatever the client uploaded into PNG bytes the
// vision backends can consume: PDFs are rendered (first page), HEIC/HEIF
// photos from phones are decoded with a pure Go decoder, everything else
// goes through the stdlib image decoders. PNG input passes through as-is.
func normalizeImage(imageData []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	switch {
	case mimeType == "application/pdf":
		return renderPDFPage(imageData)
	case mimeType == "image/png" && !isHEICData(imageData):
		return imageData, nil
	default:
		return decodeToPNG(imageData, mimeType)
	}
}

// renderPDFPage renders the first page of a PDF to PNG. Scanned inventory
// sheets are effectively single-page documents.
func renderPDFPage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	return encodePNG(img)
}

// decodeToPNG decodes any supported image format and re-encodes it as PNG.
func decodeToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	if isHEICData(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("unsupported image format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICData sniffs the HEIC/HEIF container signature: an ftyp box at
// offset 4 carrying one of the HEIF brands.
func isHEICData(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
