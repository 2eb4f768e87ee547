package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/leofalp/railgraph/internal/utils"
)

// HTTPBridge talks to a browser automation sidecar that accepts
// POST {baseURL}/collect with {"provider","prompt"} and answers
// {"ok","text","error"}.
type HTTPBridge struct {
	BaseURL string
	Client  *http.Client
}

type bridgeRequest struct {
	Provider string `json:"provider"`
	Prompt   string `json:"prompt"`
}

type bridgeResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Collect implements Bridge.
func (bridge *HTTPBridge) Collect(ctx context.Context, provider, prompt string) (string, error) {
	client := bridge.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(bridgeRequest{Provider: provider, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("bridge: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(bridge.BaseURL, "/")+"/collect", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("bridge: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bridge: %w", err)
	}
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			slog.Error("bridge: close response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("bridge: read: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("bridge: non-2xx status %d: %s", res.StatusCode, utils.TruncateString(string(raw), 300))
	}

	var decoded bridgeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("bridge: decode: %w", err)
	}
	if !decoded.OK {
		return "", fmt.Errorf("bridge: %s", decoded.Error)
	}
	return decoded.Text, nil
}
