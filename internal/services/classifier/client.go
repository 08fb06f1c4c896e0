// Package classifier talks to the product classification HTTP service. The
// service is advisory: any failure yields an empty category and processing
// continues.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"stockpix/internal/config"
	"stockpix/internal/logging"
)

const descriptionCapRunes = 900

// Service assigns a category to a product from its textual fields.
type Service interface {
	Classify(ctx context.Context, title, description, bodySnippet string) string
}

// NewService builds a classifier client, or a noop when no URL is
// configured.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	url := strings.TrimSpace(cfg.Classifier.URL)
	if url == "" {
		return noopService{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &httpService{
		endpoint: url,
		apiKey:   cfg.Classifier.APIKey,
		client: &http.Client{
			Timeout: time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
		},
		logger: logging.NewComponentLogger(logger, "classifier"),
	}
}

type httpService struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

type classifyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type classifyResponse struct {
	CategoryPath string `json:"category_path"`
	CategoryName string `json:"category_name"`
}

// Classify posts the product text and returns the category path, falling
// back to the flat category name. Transport errors and non-200 responses
// return an empty category.
func (s *httpService) Classify(ctx context.Context, title, description, bodySnippet string) string {
	payload := classifyRequest{
		Title:       title,
		Description: capRunes(strings.TrimSpace(description+" "+bodySnippet), descriptionCapRunes),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("classification request failed", logging.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		s.logger.Debug("classification rejected", logging.Int("http_code", resp.StatusCode))
		return ""
	}

	var decoded classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		s.logger.Debug("classification response unreadable", logging.Error(err))
		return ""
	}
	if decoded.CategoryPath != "" {
		return decoded.CategoryPath
	}
	return decoded.CategoryName
}

func capRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

type noopService struct{}

func (noopService) Classify(context.Context, string, string, string) string { return "" }
