// Package comfy implements the ComfyUI job protocol: submit a workflow
// graph, poll history until outputs appear, pick the output image and fetch
// its bytes.
package comfy

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/seantiz/comfybridge/internal/workflow"
)

// Sentinel errors for the protocol layer.
var (
	// ErrSubmission marks a rejected submission or a /prompt response
	// without a prompt id.
	ErrSubmission = errors.New("submission failed")

	// ErrPollTimeout marks a poll loop that elapsed without the backend
	// reporting any outputs.
	ErrPollTimeout = errors.New("timed out waiting for outputs")

	// ErrNoOutput marks a job that completed but produced no image. It is
	// distinct from a timeout: the backend finished and had nothing.
	ErrNoOutput = errors.New("backend completed but produced no output image")

	// ErrTransport marks network or filesystem failures reaching the
	// backend, after the one TLS-bypass retry.
	ErrTransport = errors.New("transport failure")
)

const (
	// pollInterval is fixed and sub-second: the backend is local and
	// low-latency, so a short fixed interval beats backoff on both wasted
	// wait and request volume.
	pollInterval = 500 * time.Millisecond

	submitTimeout = 30 * time.Second
	statusTimeout = 10 * time.Second
	fetchTimeout  = 60 * time.Second
)

// ImageRef identifies one produced artifact in the backend's output store.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput is the per-node output block of a history entry.
type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// Client talks to one ComfyUI server.
type Client struct {
	baseURL   string
	outputDir string
	logger    *slog.Logger

	httpc    *http.Client
	insecure *http.Client
}

// NewClient builds a client for the given server URL. outputDir, when the
// client shares a filesystem with the backend, enables the direct-read fast
// path for artifacts; empty disables it.
func NewClient(serverURL, outputDir string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(serverURL, "/"),
		outputDir: outputDir,
		logger:    logger,
		httpc:     &http.Client{},
		insecure: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// do issues the request, retrying exactly once with certificate
// verification disabled when the failure is a TLS certificate problem.
// Self-signed local backends are common enough that this mirrors what users
// would otherwise disable globally.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpc.Do(req)
	if err == nil {
		return resp, nil
	}

	var certErr *tls.CertificateVerificationError
	if !errors.As(err, &certErr) {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	c.logger.Warn("certificate verification failed, retrying without verification",
		"url", req.URL.Redacted(), "error", err)

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, bodyErr)
		}
		retry.Body = body
	}
	resp, err = c.insecure.Do(retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return resp, nil
}

// SubmitPrompt POSTs the graph to /prompt and returns the backend-assigned
// prompt id. clientID correlates the submission with this invocation's run.
func (c *Client) SubmitPrompt(ctx context.Context, g workflow.Graph, clientID string) (string, error) {
	payload := struct {
		Prompt   workflow.Graph `json:"prompt"`
		ClientID string         `json:"client_id,omitempty"`
	}{Prompt: g, ClientID: clientID}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode prompt payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		submissionsTotal.WithLabelValues("transport_error").Inc()
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		submissionsTotal.WithLabelValues("transport_error").Inc()
		return "", fmt.Errorf("%w: read submit response: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: backend returned %s: %s", ErrSubmission, resp.Status, truncate(raw, 256))
	}

	var decoded struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: decode submit response: %v", ErrSubmission, err)
	}
	if decoded.PromptID == "" {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("%w: /prompt response carried no prompt_id: %s", ErrSubmission, truncate(raw, 256))
	}

	submissionsTotal.WithLabelValues("accepted").Inc()
	return decoded.PromptID, nil
}

// AwaitOutputs polls /history/{promptID} at a fixed interval until the entry
// for this prompt reports at least one output, the timeout elapses, or ctx
// is cancelled. A timeout error includes the elapsed time and the last
// transport error observed, if any.
func (c *Client) AwaitOutputs(ctx context.Context, promptID string, timeout time.Duration) (map[string]NodeOutput, error) {
	start := time.Now()
	defer func() {
		pollDuration.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for {
		outputs, err := c.fetchHistory(ctx, promptID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
			}
			lastErr = err
		} else if len(outputs) > 0 {
			return outputs, nil
		}

		if elapsed := time.Since(start); elapsed >= timeout {
			if lastErr != nil {
				return nil, fmt.Errorf("%w for prompt %s after %s (last error: %v)",
					ErrPollTimeout, promptID, elapsed.Round(time.Millisecond), lastErr)
			}
			return nil, fmt.Errorf("%w for prompt %s after %s",
				ErrPollTimeout, promptID, elapsed.Round(time.Millisecond))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// fetchHistory GETs one history snapshot and normalizes the two envelope
// forms the backend emits: {<prompt_id>: {outputs: ...}} and a bare
// {outputs: ...}.
func (c *Client) fetchHistory(ctx context.Context, promptID string) (map[string]NodeOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read history response: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: history returned %s", ErrTransport, resp.Status)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}

	item := raw
	if wrapped, ok := envelope[promptID]; ok {
		item = wrapped
	}

	var entry struct {
		Outputs map[string]NodeOutput `json:"outputs"`
	}
	if err := json.Unmarshal(item, &entry); err != nil {
		return nil, fmt.Errorf("decode history entry: %w", err)
	}
	return entry.Outputs, nil
}

// SelectOutputImage picks the artifact to retrieve. A configured preferred
// node with a non-empty image list wins; otherwise the first image across
// all output nodes in sorted node-id order is used, so selection is stable
// run to run.
func SelectOutputImage(outputs map[string]NodeOutput, preferredNodeID string) (ImageRef, error) {
	if preferredNodeID != "" {
		if out, ok := outputs[preferredNodeID]; ok && len(out.Images) > 0 {
			return out.Images[0], nil
		}
	}

	nodeIDs := make([]string, 0, len(outputs))
	for id := range outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	for _, id := range nodeIDs {
		if images := outputs[id].Images; len(images) > 0 {
			return images[0], nil
		}
	}
	return ImageRef{}, ErrNoOutput
}

// FetchImage retrieves the artifact bytes. When the backend's output
// directory is readable from here, a direct filesystem read is the fast
// path; otherwise (or on any read error) the /view endpoint serves the
// bytes over HTTP.
func (c *Client) FetchImage(ctx context.Context, ref ImageRef) ([]byte, error) {
	if c.outputDir != "" {
		path := filepath.Join(c.outputDir, ref.Subfolder, ref.Filename)
		data, err := os.ReadFile(path)
		if err == nil {
			fetchesTotal.WithLabelValues("disk").Inc()
			return data, nil
		}
		c.logger.Debug("direct output read failed, falling back to /view", "path", path, "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	fileType := ref.Type
	if fileType == "" {
		fileType = "output"
	}
	params := url.Values{
		"filename":  {ref.Filename},
		"subfolder": {ref.Subfolder},
		"type":      {fileType},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build view request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: /view returned %s for %q", ErrTransport, resp.Status, ref.Filename)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read artifact: %v", ErrTransport, err)
	}
	fetchesTotal.WithLabelValues("http").Inc()
	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
