package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/renderway/internal/generation/domain"
)

// HTTPBackend submits render jobs to the staging render service.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type renderRequest struct {
	JobID    string `json:"job_id"`
	RoomType string `json:"room_type"`
	Style    string `json:"style"`
	Fidelity string `json:"fidelity"`
	ImageURL string `json:"image_url"`
}

type renderResponse struct {
	ResultURL string `json:"result_url"`
	Error     string `json:"error"`
}

func (b *HTTPBackend) Render(ctx context.Context, job domain.RenderJob) (string, error) {
	body, err := json.Marshal(renderRequest{
		JobID:    job.JobID,
		RoomType: job.RoomType,
		Style:    job.Style,
		Fidelity: string(job.Fidelity),
		ImageURL: job.ImageURL,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/render", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", job.JobID)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}
	defer resp.Body.Close()

	var rendered renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&rendered); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrBackendFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		if rendered.Error != "" {
			return "", fmt.Errorf("%w: %s", domain.ErrBackendFailure, rendered.Error)
		}
		return "", fmt.Errorf("%w: %s", domain.ErrBackendFailure, resp.Status)
	}
	if rendered.ResultURL == "" {
		return "", fmt.Errorf("%w: empty result url", domain.ErrBackendFailure)
	}
	return rendered.ResultURL, nil
}
