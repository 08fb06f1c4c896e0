// Package validator talks to the visual validation HTTP service. Unlike the
// classifier it is load-bearing: verdicts decide registry status, and a down
// service halts the stage instead of silently rejecting everything.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"stockpix/internal/config"
	"stockpix/internal/logging"
	"stockpix/internal/registry"
	"stockpix/internal/services"
)

// Service verifies product images against their title and category.
type Service interface {
	Health(ctx context.Context) error
	Verify(ctx context.Context, image []byte, title, category string) (registry.Validation, error)
}

// NewService builds a validator client from configuration.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	url := strings.TrimSpace(cfg.Validator.URL)
	return &httpService{
		verifyURL: url,
		healthURL: strings.TrimSuffix(url, "/verify") + "/health",
		apiKey:    cfg.Validator.APIKey,
		client: &http.Client{
			Timeout: time.Duration(cfg.Validator.TimeoutSeconds) * time.Second,
		},
		healthClient: &http.Client{
			Timeout: time.Duration(cfg.Validator.HealthTimeoutSeconds) * time.Second,
		},
		logger: logging.NewComponentLogger(logger, "validator"),
	}
}

type httpService struct {
	verifyURL    string
	healthURL    string
	apiKey       string
	client       *http.Client
	healthClient *http.Client
	logger       *slog.Logger
}

type verifyResponse struct {
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence"`
	Detections struct {
		CategoryMatch      float64 `json:"category_match"`
		ProductMatch       float64 `json:"product_match"`
		WatermarkText      float64 `json:"watermark_text"`
		PlaceholderOrError float64 `json:"placeholder_or_error"`
		LowQuality         float64 `json:"low_quality"`
	} `json:"detections"`
}

// Health probes the service before a validation pass starts. Failures are
// preconditions: there is no point scanning a batch against a dead service.
func (s *httpService) Health(ctx context.Context) error {
	if s.verifyURL == "" {
		return services.Wrap(services.ErrConfiguration, "validate", "health", "validator URL is not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.healthURL, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "validate", "health", "invalid validator health URL", err)
	}
	req.Header.Set("X-API-Key", s.apiKey)

	resp, err := s.healthClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrPrecondition, "validate", "health", "validator unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrPrecondition, "validate", "health",
			fmt.Sprintf("validator health returned %d", resp.StatusCode), nil)
	}
	return nil
}

// Verify submits one image with its product context. The returned verdict is
// the service's; an error means no verdict was reached and the entry stays
// unresolved.
func (s *httpService) Verify(ctx context.Context, image []byte, title, category string) (registry.Validation, error) {
	if strings.TrimSpace(title) == "" {
		title = "producto"
	}
	if strings.TrimSpace(category) == "" {
		category = "general"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "img.jpg")
	if err != nil {
		return registry.Validation{}, fmt.Errorf("build verify form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return registry.Validation{}, fmt.Errorf("write verify image: %w", err)
	}
	if err := form.WriteField("title", title); err != nil {
		return registry.Validation{}, fmt.Errorf("write verify title: %w", err)
	}
	if err := form.WriteField("category", category); err != nil {
		return registry.Validation{}, fmt.Errorf("write verify category: %w", err)
	}
	if err := form.Close(); err != nil {
		return registry.Validation{}, fmt.Errorf("finish verify form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.verifyURL, &body)
	if err != nil {
		return registry.Validation{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("X-API-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return registry.Validation{}, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return registry.Validation{}, fmt.Errorf("verify returned %d", resp.StatusCode)
	}

	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return registry.Validation{}, fmt.Errorf("decode verify response: %w", err)
	}
	return registry.Validation{
		IsValid:    decoded.IsValid,
		Confidence: decoded.Confidence,
		Scores: registry.DetectorScores{
			CategoryMatch:      decoded.Detections.CategoryMatch,
			ProductMatch:       decoded.Detections.ProductMatch,
			WatermarkText:      decoded.Detections.WatermarkText,
			PlaceholderOrError: decoded.Detections.PlaceholderOrError,
			LowQuality:         decoded.Detections.LowQuality,
		},
	}, nil
}
