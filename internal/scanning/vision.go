package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

const visionTimeout = 30 * time.Second

// visionLanguageHints are passed with every request.
var visionLanguageHints = []string{"ja", "en"}

// CloudVision implements TextRecognizer using the Google Cloud Vision REST API
type CloudVision struct {
	service *vision.Service
}

// NewCloudVision creates a Cloud Vision recognizer authenticated with an API key.
// Extra options (endpoint, HTTP client) are applied after the key.
func NewCloudVision(apiKey string, opts ...option.ClientOption) (*CloudVision, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)

	service, err := vision.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision service: %w", err)
	}
	return &CloudVision{service: service}, nil
}

// RecognizeText runs DOCUMENT_TEXT_DETECTION and returns the best available text.
// The full document annotation is preferred over the first simple annotation.
func (c *CloudVision) RecognizeText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, visionTimeout)
	defer cancel()

	pngData, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return "", err
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:        &vision.Image{Content: base64.StdEncoding.EncodeToString(pngData)},
			Features:     []*vision.Feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
			ImageContext: &vision.ImageContext{LanguageHints: visionLanguageHints},
		}},
	}

	resp, err := c.service.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("annotating image: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", fmt.Errorf("no annotation in vision response")
	}

	annotation := resp.Responses[0]
	if annotation.Error != nil && annotation.Error.Code != 0 {
		return "", fmt.Errorf("vision API error (code %d): %s", annotation.Error.Code, annotation.Error.Message)
	}
	if annotation.FullTextAnnotation != nil && annotation.FullTextAnnotation.Text != "" {
		return annotation.FullTextAnnotation.Text, nil
	}
	if len(annotation.TextAnnotations) > 0 {
		return annotation.TextAnnotations[0].Description, nil
	}
	return "", nil
}

// Close is a no-op for the REST client
func (c *CloudVision) Close() error {
	return nil
}
