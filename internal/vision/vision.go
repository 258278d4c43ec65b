// Package vision talks to the face detection service, an HTTP sidecar
// that turns JPEG frames into 128-dimensional face embeddings.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/facemark/facemark/internal/face"
)

const defaultServiceURL = "http://localhost:5005"

// ErrNoFace is returned when the service finds no face in a frame.
var ErrNoFace = errors.New("no face detected")

// Detection is one detected face.
type Detection struct {
	Embedding face.Embedding
	// Confidence of the detector itself, not of any identity match.
	Confidence float64
	// Box is the face location in the frame, pixel coordinates.
	Box Box
}

// Box is a pixel-space bounding box.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Client calls the face detection service.
type Client struct {
	parsedURL *url.URL
	client    *http.Client
}

// NewClient creates a detection service client.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid detection service URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid detection service URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid detection service URL: missing host")
	}
	return &Client{
		parsedURL: parsed,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type detectRequest struct {
	Image string `json:"image"` // base64 JPEG
}

type detectResponse struct {
	Faces []struct {
		Embedding  []float32 `json:"embedding"`
		Confidence float64   `json:"confidence"`
		Box        Box       `json:"box"`
	} `json:"faces"`
}

// Detect sends one JPEG frame and returns every detected face. Frames
// with no face return ErrNoFace.
func (c *Client) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	reqBody := detectRequest{
		Image: base64.StdEncoding.EncodeToString(frame),
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqURL := c.parsedURL.JoinPath("/detect")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection service error (status %d): %s", resp.StatusCode, string(body))
	}

	var detectResp detectResponse
	if err := json.Unmarshal(body, &detectResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(detectResp.Faces) == 0 {
		return nil, ErrNoFace
	}

	detections := make([]Detection, 0, len(detectResp.Faces))
	for _, f := range detectResp.Faces {
		emb := face.Embedding(f.Embedding)
		if err := emb.Validate(); err != nil {
			return nil, fmt.Errorf("detection service returned bad embedding: %w", err)
		}
		detections = append(detections, Detection{
			Embedding:  emb,
			Confidence: f.Confidence,
			Box:        f.Box,
		})
	}
	return detections, nil
}

// DetectBest returns the detection with the highest detector
// confidence, the face the terminal should try to identify.
func (c *Client) DetectBest(ctx context.Context, frame []byte) (*Detection, error) {
	detections, err := c.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return &best, nil
}

// Healthy reports whether the detection service answers its health
// endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	reqURL := c.parsedURL.JoinPath("/health")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
