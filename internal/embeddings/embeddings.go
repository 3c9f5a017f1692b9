// Package embeddings provides a batched client against an
// OpenAI-compatible embeddings endpoint, plus the packed float32
// little-endian serialization used by the vector store.
//
// The client is constructed once at process wiring time and passed down by
// reference; there is no package-level state.
package embeddings

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// Client calls a configured embeddings endpoint in batches.
type Client struct {
	BaseURL    string
	Model      string
	APIKey     string
	HTTPClient *http.Client
	BatchSize  int
	Timeout    time.Duration
}

// NewClient constructs a Client with sane defaults for batch size and
// per-request timeout.
func NewClient(baseURL, model, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		APIKey:     apiKey,
		HTTPClient: httpClient,
		BatchSize:  64,
		Timeout:    30 * time.Second,
	}
}

// IsAvailable reports whether the client has enough configuration to make
// requests at all (no network round trip is made).
func (c *Client) IsAvailable() bool {
	return c != nil && c.BaseURL != "" && c.Model != ""
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// two possible response envelopes the embeddings endpoint may use.
type dataEnvelope struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type flatEnvelope struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// embedBatch embeds up to BatchSize inputs in one request.
func (c *Client) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if !c.IsAvailable() {
		return nil, fmt.Errorf("embeddings client is not configured")
	}
	body, err := json.Marshal(embeddingRequest{Input: inputs, Model: c.Model})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}

	reqCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embeddings endpoint returned status %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}

	var d dataEnvelope
	if err := json.Unmarshal(raw, &d); err == nil && len(d.Data) > 0 {
		out := make([][]float32, len(d.Data))
		for i, item := range d.Data {
			out[i] = item.Embedding
		}
		return out, nil
	}

	var f flatEnvelope
	if err := json.Unmarshal(raw, &f); err == nil && len(f.Embeddings) > 0 {
		return f.Embeddings, nil
	}

	return nil, fmt.Errorf("unrecognized embeddings response shape")
}

// Embed embeds a list of texts, batching internally and preserving order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// EmbedSingle embeds a single text.
func (c *Client) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embeddings endpoint returned no vectors")
	}
	return vecs[0], nil
}

// Serialize packs a float32 vector as little-endian bytes.
func Serialize(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Deserialize restores a float32 vector from packed little-endian bytes.
func Deserialize(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
