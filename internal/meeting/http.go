package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type HTTPConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// HTTPProvider allocates links from an external meeting API.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type allocateRequest struct {
	CoachEmail    string    `json:"coach_email"`
	EmployeeEmail string    `json:"employee_email"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
}

type allocateResponse struct {
	JoinURL string `json:"join_url"`
}

func (p *HTTPProvider) AllocateLink(ctx context.Context, coachEmail, employeeEmail string, window Window) (string, error) {
	payload, err := json.Marshal(allocateRequest{
		CoachEmail:    coachEmail,
		EmployeeEmail: employeeEmail,
		StartsAt:      window.Start.UTC(),
		EndsAt:        window.End.UTC(),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/meetings", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.AuthToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("meeting api status %d: %s", resp.StatusCode, body)
	}

	var out allocateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.JoinURL == "" {
		return "", fmt.Errorf("meeting api returned empty join_url")
	}
	return out.JoinURL, nil
}
