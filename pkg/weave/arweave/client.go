package arweave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/weave/pkg/weave/logging"
)

// DefaultGateway is the public gateway used when none is configured.
const DefaultGateway = "https://arweave.net"

// DefaultTimeout bounds every gateway request.
const DefaultTimeout = 20 * time.Second

// Client talks to an Arweave gateway's HTTP API.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *logging.Logger
}

// NewClient returns a client for gateway. A zero timeout uses
// DefaultTimeout.
func NewClient(gateway string, timeout time.Duration) (*Client, error) {
	if gateway == "" {
		gateway = DefaultGateway
	}
	u, err := url.Parse(strings.TrimRight(gateway, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway url %q must be http or https", gateway)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		base:   u,
		http:   &http.Client{Timeout: timeout},
		logger: logging.Get("gateway"),
	}, nil
}

// URL returns the gateway base URL.
func (c *Client) URL() string {
	return c.base.String()
}

// Host returns the gateway host name without port.
func (c *Client) Host() string {
	return c.base.Hostname()
}

// IsLocal reports whether the gateway is a local development node.
func (c *Client) IsLocal() bool {
	return IsLocalHost(c.base.Hostname())
}

// IsLocalHost reports whether host names a local development node.
func IsLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}

// ContentURL returns the gateway URL serving the record with id.
func (c *Client) ContentURL(id string) string {
	return c.base.String() + "/" + id
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return data, resp.StatusCode, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, resp.StatusCode, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	data, _, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (c *Client) getText(ctx context.Context, path string) (string, error) {
	data, _, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Price returns the winston reward for storing size bytes, optionally
// including the fee for transferring to target.
func (c *Client) Price(ctx context.Context, size int64, target string) (string, error) {
	path := "/price/" + strconv.FormatInt(size, 10)
	if target != "" {
		path += "/" + target
	}
	price, err := c.getText(ctx, path)
	if err != nil {
		return "", fmt.Errorf("fetching price: %w", err)
	}
	if _, err := ParseWinston(price); err != nil {
		return "", fmt.Errorf("fetching price: %w", err)
	}
	return price, nil
}

// Anchor returns a recent block anchor for last_tx.
func (c *Client) Anchor(ctx context.Context) (string, error) {
	anchor, err := c.getText(ctx, "/tx_anchor")
	if err != nil {
		return "", fmt.Errorf("fetching anchor: %w", err)
	}
	return anchor, nil
}

// PostTransaction submits a signed transaction. Call tx.WithData() first
// to embed the payload; otherwise only the header is sent and the data
// must follow as chunks.
func (c *Client) PostTransaction(ctx context.Context, tx *Transaction) error {
	if tx.Signature == "" {
		return ErrUnsigned
	}
	_, _, err := c.do(ctx, http.MethodPost, "/tx", tx)
	return err
}

// ChunkUpload is the body of a chunk submission.
type ChunkUpload struct {
	DataRoot string `json:"data_root"`
	DataSize string `json:"data_size"`
	DataPath string `json:"data_path"`
	Offset   string `json:"offset"`
	Chunk    string `json:"chunk"`
}

// PostChunk submits one chunk with its proof. Protocol rejections are
// reported as ErrChunkRejected.
func (c *Client) PostChunk(ctx context.Context, chunk *ChunkUpload) error {
	body, _, err := c.do(ctx, http.MethodPost, "/chunk", chunk)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
		if code, ok := chunkRejection(string(body)); ok {
			return fmt.Errorf("%w: %s", ErrChunkRejected, code)
		}
	}
	return err
}

// TxStatus is the gateway's view of a submitted transaction.
type TxStatus struct {
	// Pending is true while the transaction is in the mempool.
	Pending               bool   `json:"-"`
	BlockHeight           int64  `json:"block_height"`
	BlockIndepHash        string `json:"block_indep_hash"`
	NumberOfConfirmations int64  `json:"number_of_confirmations"`
}

// Status returns the confirmation status of id. A transaction the gateway
// has never seen is reported as an APIError with status 404.
func (c *Client) Status(ctx context.Context, id string) (*TxStatus, error) {
	data, code, err := c.do(ctx, http.MethodGet, "/tx/"+id+"/status", nil)
	if err != nil {
		return nil, err
	}
	if code == http.StatusAccepted {
		return &TxStatus{Pending: true}, nil
	}
	var status TxStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &status, nil
}

// Confirmations returns the confirmation depth of id, zero when pending.
func (c *Client) Confirmations(ctx context.Context, id string) (int64, error) {
	status, err := c.Status(ctx, id)
	if err != nil {
		return 0, err
	}
	return status.NumberOfConfirmations, nil
}

// Balance returns the winston balance of address.
func (c *Client) Balance(ctx context.Context, address string) (string, error) {
	balance, err := c.getText(ctx, "/wallet/"+address+"/balance")
	if err != nil {
		return "", fmt.Errorf("fetching balance: %w", err)
	}
	return balance, nil
}

// NetworkInfo is the gateway's /info document.
type NetworkInfo struct {
	Network          string `json:"network" yaml:"network"`
	Version          int64  `json:"version" yaml:"version"`
	Release          int64  `json:"release" yaml:"release"`
	Height           int64  `json:"height" yaml:"height"`
	Current          string `json:"current" yaml:"current"`
	Blocks           int64  `json:"blocks" yaml:"blocks"`
	Peers            int64  `json:"peers" yaml:"peers"`
	QueueLength      int64  `json:"queue_length" yaml:"queue_length"`
	NodeStateLatency int64  `json:"node_state_latency" yaml:"node_state_latency"`
}

// Info returns the gateway's network information.
func (c *Client) Info(ctx context.Context) (*NetworkInfo, error) {
	var info NetworkInfo
	if err := c.getJSON(ctx, "/info", &info); err != nil {
		return nil, fmt.Errorf("fetching network info: %w", err)
	}
	return &info, nil
}

// Data returns the raw payload of the record with id.
func (c *Client) Data(ctx context.Context, id string) ([]byte, error) {
	data, _, err := c.do(ctx, http.MethodGet, "/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", id, err)
	}
	return data, nil
}

// DataJSON decodes the payload of the record with id into v.
func (c *Client) DataJSON(ctx context.Context, id string, v any) error {
	data, err := c.Data(ctx, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", id, err)
	}
	return nil
}

// Post sends a raw body to an arbitrary URL, used for bundler endpoints
// that accept binary data items.
func (c *Client) Post(ctx context.Context, endpoint, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u, _ := url.Parse(endpoint)
		path := endpoint
		if u != nil {
			path = u.Path
		}
		return &APIError{Method: http.MethodPost, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return nil
}
