package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"campusattend/internal/model"
)

// EnrollResult contains the face template produced by /register-face.
type EnrollResult struct {
	Embedding      []float64
	LivenessPassed bool
}

// RecognizeResult contains the recognition decision for one capture.
// The acceptance policy lives entirely in the recognition service; callers
// consume the Recognized flag and treat Confidence as informational.
type RecognizeResult struct {
	Recognized     bool
	StudentID      string
	Confidence     float64
	LivenessPassed bool
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with a configurable timeout. Skip short-circuits all
// calls with mock results for environments without the face service.
func New(baseURL string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second // face processing can take time
	}
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// RegisterFace submits an image for enrollment and returns the embedding to
// persist on the student's record.
func (c *Client) RegisterFace(ctx context.Context, image, studentID string) (*EnrollResult, error) {
	if c.Skip {
		return &EnrollResult{
			Embedding:      []float64{0.1, 0.2, 0.3},
			LivenessPassed: true,
		}, nil
	}
	if image == "" || studentID == "" {
		return nil, fmt.Errorf("image and student id required")
	}

	body, _ := json.Marshal(map[string]string{
		"image":      image,
		"student_id": studentID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/register-face", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, serviceError(resp)
	}

	var out struct {
		Embedding      []float64 `json:"embedding"`
		LivenessPassed bool      `json:"liveness_passed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("no face detected in image")
	}

	return &EnrollResult{
		Embedding:      out.Embedding,
		LivenessPassed: out.LivenessPassed,
	}, nil
}

// RecognizeFace matches an image against the supplied candidate set.
func (c *Client) RecognizeFace(ctx context.Context, image string, candidates []model.Candidate) (*RecognizeResult, error) {
	if c.Skip {
		mock := &RecognizeResult{Recognized: false, Confidence: 0}
		if len(candidates) > 0 {
			mock = &RecognizeResult{
				Recognized:     true,
				StudentID:      candidates[0].StudentID,
				Confidence:     0.92,
				LivenessPassed: true,
			}
		}
		return mock, nil
	}
	if image == "" {
		return nil, fmt.Errorf("image required")
	}

	type wireCandidate struct {
		StudentID string    `json:"student_id"`
		Embedding []float64 `json:"embedding"`
	}
	embeddings := make([]wireCandidate, 0, len(candidates))
	for _, cand := range candidates {
		embeddings = append(embeddings, wireCandidate{StudentID: cand.StudentID, Embedding: cand.Embedding})
	}

	body, _ := json.Marshal(map[string]any{
		"image":      image,
		"embeddings": embeddings,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/recognize-face", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, serviceError(resp)
	}

	var out struct {
		Recognized     bool    `json:"recognized"`
		StudentID      string  `json:"student_id"`
		Confidence     float64 `json:"confidence"`
		LivenessPassed bool    `json:"liveness_passed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &RecognizeResult{
		Recognized:     out.Recognized,
		StudentID:      out.StudentID,
		Confidence:     out.Confidence,
		LivenessPassed: out.LivenessPassed,
	}, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}

func serviceError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	var out struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(bodyBytes, &out) == nil && out.Error != "" {
		return fmt.Errorf("face service error %s: %s", resp.Status, out.Error)
	}
	return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
}
