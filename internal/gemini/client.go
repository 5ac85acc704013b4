// Package gemini provides embeddings and generation through the Google
// Generative AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dgallion1/docchat/internal/llm"
)

// maxBatch is the most texts the API accepts in one batch embed request.
const maxBatch = 100

// Client wraps a genai.Client with the models this service uses.
type Client struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	limiter    *llm.Limiter
	log        *slog.Logger

	// SDK calls, replaced in tests.
	embedBatch func(ctx context.Context, texts []string) ([][]float32, error)
	generate   func(ctx context.Context, p llm.Prompt) (string, error)
}

func NewClient(ctx context.Context, apiKey, chatModel, embedModel string, limiter *llm.Limiter, log *slog.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c := &Client{
		client:     client,
		chatModel:  chatModel,
		embedModel: embedModel,
		limiter:    limiter,
		log:        log.With("provider", "gemini"),
	}
	c.embedBatch = c.sdkEmbedBatch
	c.generate = c.sdkGenerate
	return c, nil
}

// Embed returns one vector per text, splitting into API-sized batches.
// Each batch is retried on quota and availability errors.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		var vecs [][]float32
		err := llm.Retry(ctx, c.log, "gemini embed", func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			v, err := c.embedBatch(ctx, texts[start:end])
			if err != nil {
				return classify(err)
			}
			vecs = v
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedding request failed: %w", err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) sdkEmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := c.client.EmbeddingModel(c.embedModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	return embeddingValues(res, len(texts))
}

// Generate sends the user turn with the system instruction attached to the model.
func (c *Client) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	var text string
	err := llm.Retry(ctx, c.log, "gemini generate", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		t, err := c.generate(ctx, p)
		if err != nil {
			return classify(err)
		}
		text = t
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate request failed: %w", err)
	}
	return text, nil
}

func (c *Client) sdkGenerate(ctx context.Context, p llm.Prompt) (string, error) {
	model := c.client.GenerativeModel(c.chatModel)
	model.SetTemperature(0)
	if p.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(p.System)},
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// classify turns quota and availability failures from either SDK transport
// into *llm.RetryableError. Anything else is returned unchanged.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && llm.RetryableStatus(gerr.Code) {
		return &llm.RetryableError{StatusCode: gerr.Code, Message: gerr.Error()}
	}
	var httpCoded interface{ HTTPCode() int }
	if errors.As(err, &httpCoded) && llm.RetryableStatus(httpCoded.HTTPCode()) {
		return &llm.RetryableError{StatusCode: httpCoded.HTTPCode(), Message: err.Error()}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return &llm.RetryableError{StatusCode: 429, Message: st.Message()}
		case codes.Unavailable:
			return &llm.RetryableError{StatusCode: 503, Message: st.Message()}
		case codes.Internal:
			return &llm.RetryableError{StatusCode: 500, Message: st.Message()}
		}
	}
	return err
}

// Ping embeds a one-word text, the cheapest call that proves the key and model work.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.client.EmbeddingModel(c.embedModel).EmbedContent(ctx, genai.Text("ping"))
	if err != nil {
		return fmt.Errorf("gemini ping: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return errors.New("gemini ping: no embedding data received")
	}
	return nil
}

func (c *Client) Close() {
	if err := c.client.Close(); err != nil {
		c.log.Warn("error closing genai client", "error", err)
	}
}

func embeddingValues(res *genai.BatchEmbedContentsResponse, want int) ([][]float32, error) {
	if res == nil || len(res.Embeddings) != want {
		got := 0
		if res != nil {
			got = len(res.Embeddings)
		}
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", got, want)
	}
	out := make([][]float32, want)
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("no embedding data received from gemini for text %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

// responseText joins the text parts of the first candidate. An empty result
// is not an error here; the caller decides how to treat a blank answer.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}
