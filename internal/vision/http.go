package vision

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/joseph-ayodele/cardscan/internal/common"
)

type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// send issues one request with the subscription key attached and reads the whole body.
// It does not interpret status codes; callers decide what counts as success.
func (c *Client) send(ctx context.Context, timeout time.Duration, method, url string, body io.Reader, contentType string) (*response, error) {
	ctx, rid := common.EnsureRequestID(ctx)
	attrs := []any{"req_id", rid}
	if jobID, ok := common.JobIDFromContext(ctx); ok {
		attrs = append(attrs, "job_id", jobID.String())
	}
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		c.log.Error("vision.http.build_request_error", append(attrs, "error", err)...)
		return nil, err
	}
	req.Header.Set(SubscriptionKeyHeader, c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.log.Debug("vision.http.request", append(attrs, "method", method, "url", url)...)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("vision.http.send_error", append(attrs, "error", err, "elapsed_ms", time.Since(start).Milliseconds())...)
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.log.Warn("vision.http.response_body_close_error", append(attrs, "error", err)...)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Error("vision.http.read_error", append(attrs, "error", err)...)
		return nil, err
	}

	c.log.Debug("vision.http.response", append(attrs,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)...)

	return &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}
