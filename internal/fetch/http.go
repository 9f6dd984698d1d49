package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

const maxHTTPBody = 16 << 20

// HTTPSource fetches rows from a JSON backend. The query text is the path
// below the base URL; the selection becomes the query string.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource constructs a source rooted at baseURL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithClient swaps the underlying HTTP client.
func (s *HTTPSource) WithClient(client *http.Client) *HTTPSource {
	if client != nil {
		s.httpClient = client
	}
	return s
}

// Fetch issues GET base/path?axis=value and decodes either a JSON array of
// objects or an object wrapping that array under "data" or "rows".
func (s *HTTPSource) Fetch(ctx context.Context, q Query, sel rollup.Selection) ([]rollup.Row, error) {
	if s == nil || s.httpClient == nil {
		return nil, fmt.Errorf("fetch: http source not configured")
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrNoQuery
	}
	endpoint := s.baseURL + "/" + strings.TrimLeft(q.Text, "/")
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse url: %w", err)
	}
	params := u.Query()
	for axis, value := range sel {
		params.Set(axis, value)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, u.Path)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return nil, err
	}
	return decodeRows(body)
}

func decodeRows(body []byte) ([]rollup.Row, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var envelope struct {
			Data []rollup.Row `json:"data"`
			Rows []rollup.Row `json:"rows"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("fetch: decode rows: %w", err)
		}
		if envelope.Data != nil {
			return envelope.Data, nil
		}
		return envelope.Rows, nil
	}
	var rows []rollup.Row
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("fetch: decode rows: %w", err)
	}
	return rows, nil
}
