// Package ollama talks to a local Ollama daemon's /api/chat endpoint.
// Useful for running the pipeline fully offline.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openorcamento/budgetlens/internal/llm"
)

// Config for the Ollama client.
type Config struct {
	BaseURL string        // default http://localhost:11434
	Model   string        // e.g. "llama3.1"
	Timeout time.Duration // local models can be slow; default is generous
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// ExtractItems implements llm.ItemExtractor against /api/chat with
// format=json and streaming off.
func (c *Client) ExtractItems(ctx context.Context, req llm.ExtractRequest) ([]llm.CandidateItem, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", "ollama",
		"model", c.cfg.Model,
		"title_path", req.TitlePath,
		"text_len", len(req.PagesText),
	)

	schema := llm.BuildItemsJSONSchema()
	body := map[string]any{
		"model":  c.cfg.Model,
		"stream": false,
		"format": "json",
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt()},
			{"role": "user", "content": llm.BuildUserPrompt(req) + "\n\nReturn ONLY JSON that matches this schema:\n" + llm.MustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/chat"
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, nil, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, fmt.Errorf("%w: %v", llm.ErrCapabilityUnavailable, err)
	}

	var chat struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &chat); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("%w: decode ollama response: %v", llm.ErrMalformedResponse, err)
	}

	items, content, err := llm.DecodeItems(chat.Message.Content)
	if err != nil {
		c.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, content, err
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"items", len(items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return items, content, nil
}
