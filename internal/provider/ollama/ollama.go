// Package ollama streams completions from a local Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidechat/tidechat/internal/provider"
)

// DefaultBaseURL targets a locally running Ollama instance.
const DefaultBaseURL = "http://127.0.0.1:11434"

// Config holds construction options for the client.
type Config struct {
	// BaseURL of the Ollama API; DefaultBaseURL when empty.
	BaseURL string
	// Model is the model name passed to /api/generate.
	Model string
	// HTTPClient overrides the transport; a client without a global
	// timeout is used by default since generation streams are long-lived.
	HTTPClient *http.Client
}

// Client implements provider.CompletionProvider against the Ollama
// /api/generate endpoint (newline-delimited JSON body).
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ollama: model name required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No global timeout: the response body is read for the full
		// duration of generation. Dial/TLS limits come from the default
		// transport.
		httpClient = &http.Client{}
	}
	return &Client{baseURL: baseURL, model: cfg.Model, httpClient: httpClient}, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// StreamCompletion opens a streaming generate call and returns a channel of
// fragments. The request is issued synchronously so connection and HTTP-level
// failures surface before any fragment is produced.
func (c *Client) StreamCompletion(ctx context.Context, prompt string) (<-chan provider.Event, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	ch := make(chan provider.Event, 10)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		reader := bufio.NewReader(resp.Body)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				var chunk generateChunk
				// Malformed lines contribute nothing rather than
				// aborting the whole stream.
				if jerr := json.Unmarshal(line, &chunk); jerr == nil {
					if chunk.Response != "" {
						select {
						case ch <- provider.Event{Fragment: chunk.Response}:
						case <-ctx.Done():
							return
						}
					}
					if chunk.Done {
						return
					}
				}
			}
			if err != nil {
				if err == io.EOF || ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				ch <- provider.Event{Err: fmt.Errorf("ollama: read stream: %w", err)}
				return
			}
		}
	}()
	return ch, nil
}

// Ping reports whether the Ollama server answers on its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
	return nil
}
