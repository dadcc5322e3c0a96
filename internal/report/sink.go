package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink delivers an encoded report somewhere
type Sink interface {
	Name() string
	Deliver(ctx context.Context, payload []byte) error
}

// StatusError is returned by HTTPSink for a non-2xx response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.Code)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.Code, e.Body)
}

// HTTPSink sends the report as a JSON request body
type HTTPSink struct {
	url    string
	method string
	client *http.Client
	logger *logrus.Logger
}

// NewHTTPSink creates a sink for url; method defaults to PUT
func NewHTTPSink(url, method string, timeout time.Duration, logger *logrus.Logger) *HTTPSink {
	if method == "" {
		method = http.MethodPut
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPSink{
		url:    url,
		method: method,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (s *HTTPSink) Name() string {
	return "http"
}

func (s *HTTPSink) Deliver(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", s.method, s.url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	s.logger.WithFields(logrus.Fields{
		"url":    s.url,
		"status": resp.StatusCode,
	}).Debug("Report delivered over HTTP")
	return nil
}
