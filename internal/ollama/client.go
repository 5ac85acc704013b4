// Package ollama talks to a local Ollama server for embeddings and chat.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/docchat/internal/llm"
)

// Config selects the server and models.
type Config struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

// Client implements embedding and generation against the Ollama HTTP API.
type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	limiter    *llm.Limiter
	log        *slog.Logger
}

// New returns a client. Deadlines come from the caller's context; the HTTP
// client timeout is only a backstop.
func New(cfg Config, limiter *llm.Limiter, log *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		limiter:    limiter,
		log:        log.With("provider", "ollama"),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type legacyEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type legacyEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns one vector per input text, in order. It uses the batch
// /api/embed endpoint and falls back to the per-text /api/embeddings
// endpoint of older servers.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	err := llm.Retry(ctx, c.log, "embed", func(ctx context.Context) error {
		return c.post(ctx, "/api/embed", embedRequest{Model: c.embedModel, Input: texts}, &resp)
	})
	if err == nil && len(resp.Embeddings) == len(texts) && len(resp.Embeddings[0]) > 0 {
		return resp.Embeddings, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("ollama embed: %w", ctxErr)
	}
	c.log.Debug("batch embed unavailable, using legacy endpoint", "error", err, "returned", len(resp.Embeddings))

	out := make([][]float32, 0, len(texts))
	for i, t := range texts {
		var legacy legacyEmbedResponse
		err := llm.Retry(ctx, c.log, "embed", func(ctx context.Context) error {
			return c.post(ctx, "/api/embeddings", legacyEmbedRequest{Model: c.embedModel, Prompt: t}, &legacy)
		})
		if err != nil {
			return nil, fmt.Errorf("ollama embed text %d: %w", i, err)
		}
		if len(legacy.Embedding) == 0 {
			return nil, fmt.Errorf("ollama embed text %d: empty embedding", i)
		}
		out = append(out, legacy.Embedding)
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate answers a prompt with /api/chat, falling back to /api/generate
// when the chat endpoint fails or returns nothing.
func (c *Client) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	req := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
	}
	var chat chatResponse
	err := llm.Retry(ctx, c.log, "generate", func(ctx context.Context) error {
		return c.post(ctx, "/api/chat", req, &chat)
	})
	if err == nil {
		if text := strings.TrimSpace(chat.Message.Content); text != "" {
			return text, nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("ollama generate: %w", ctxErr)
	}
	c.log.Debug("chat endpoint gave no answer, using generate", "error", err)

	var gen generateResponse
	err = llm.Retry(ctx, c.log, "generate", func(ctx context.Context) error {
		return c.post(ctx, "/api/generate", generateRequest{Model: c.chatModel, Prompt: p.Flatten()}, &gen)
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return strings.TrimSpace(gen.Response), nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama ping: status %d", resp.StatusCode)
	}
	return nil
}

var errEmptyBody = errors.New("empty response body")

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if llm.RetryableStatus(resp.StatusCode) {
		return &llm.RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama %s status %d: %s", path, resp.StatusCode, llm.Truncate(string(respBody), 200))
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
