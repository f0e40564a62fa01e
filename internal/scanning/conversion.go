package scanning

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// Larger images are downscaled before they are sent to a provider.
const maxImageDimension = 2400

// DecodeDataURI strips a "data:<mime>;base64," prefix and decodes the payload.
// A bare base64 string is accepted and reported as image/jpeg.
func DecodeDataURI(uri string) ([]byte, string, error) {
	uri = strings.TrimSpace(uri)
	mimeType := "image/jpeg"
	if strings.HasPrefix(uri, "data:") {
		header, payload, ok := strings.Cut(uri, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		header = strings.TrimPrefix(header, "data:")
		if mt, _, _ := strings.Cut(header, ";"); mt != "" {
			mimeType = strings.ToLower(mt)
		}
		uri = payload
	}

	data, err := base64.StdEncoding.DecodeString(uri)
	if err != nil {
		return nil, "", fmt.Errorf("decoding base64 image: %w", err)
	}
	return data, mimeType, nil
}

// pdfToImage renders the first page of a PDF as PNG
func pdfToImage(pdfData []byte) ([]byte, error) {
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

// imageToPNG decodes HEIC, JPEG or GIF data and re-encodes it as PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") {
				return nil, fmt.Errorf("unsupported image format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}
	return encodePNG(img)
}

// encodePNG downscales oversized images and encodes them as PNG
func encodePNG(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() > maxImageDimension || b.Dy() > maxImageDimension {
		img = imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// prepareImageData converts anything that is not already PNG to PNG and
// downscales oversized PNGs. The returned MIME type is always image/png.
func prepareImageData(imageData []byte, contentType string) ([]byte, string, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	switch {
	case mimeType == "application/pdf":
		data, err := pdfToImage(imageData)
		if err != nil {
			return nil, "", fmt.Errorf("converting PDF to image: %w", err)
		}
		return data, "image/png", nil
	case mimeType != "image/png" || isHEICFormat(imageData):
		data, err := imageToPNG(imageData, mimeType)
		if err != nil {
			return nil, "", fmt.Errorf("converting image to PNG: %w", err)
		}
		return data, "image/png", nil
	case isOversizedPNG(imageData):
		img, err := png.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, "", fmt.Errorf("decoding PNG: %w", err)
		}
		data, err := encodePNG(img)
		if err != nil {
			return nil, "", err
		}
		return data, "image/png", nil
	}
	return imageData, "image/png", nil
}

// isOversizedPNG reports whether a PNG header declares a side above
// maxImageDimension. Unreadable headers are left for the provider to judge.
func isOversizedPNG(data []byte) bool {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return cfg.Width > maxImageDimension || cfg.Height > maxImageDimension
}
