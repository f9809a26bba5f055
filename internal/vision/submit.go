package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/cardscan/internal/common"
	"github.com/joseph-ayodele/cardscan/internal/source"
)

// JobHandle identifies a submitted read operation.
type JobHandle struct {
	OperationURL string
	SubmittedAt  time.Time
}

type serviceError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit sends the image in exactly one request and returns the polling handle.
func (c *Client) Submit(ctx context.Context, src source.Source) (JobHandle, error) {
	var (
		body        []byte
		contentType string
	)
	switch {
	case src.IsZero():
		return JobHandle{}, errors.New("submit: empty image source")
	case src.Kind() == source.KindURL:
		b, err := json.Marshal(map[string]string{"url": src.URL()})
		if err != nil {
			return JobHandle{}, fmt.Errorf("encode json: %w", err)
		}
		body, contentType = b, "application/json"
	case src.HasBytes():
		c.logImageInfo(src)
		body, contentType = src.Bytes(), "application/octet-stream"
	default:
		return JobHandle{}, fmt.Errorf("submit: unsupported source kind %s", src.Kind())
	}

	c.log.Info("vision.submit.request", "source_kind", src.Kind().String(), "source", src.String(), "bytes", len(body))

	resp, err := c.send(ctx, c.cfg.SubmitTimeout, http.MethodPost, c.cfg.analyzeURL(), bytes.NewReader(body), contentType)
	if err != nil {
		if cerr := contextError(ctx); cerr != nil {
			return JobHandle{}, cerr
		}
		return JobHandle{}, common.TransportError("send request to vision API", err)
	}

	if resp.StatusCode != http.StatusAccepted {
		rejected := &common.ServiceRejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(resp.Body))}
		var se serviceError
		if json.Unmarshal(resp.Body, &se) == nil && se.Error != nil {
			rejected.Code, rejected.Message = se.Error.Code, se.Error.Message
		}
		c.log.Error("vision.submit.rejected", "status", resp.StatusCode, "code", rejected.Code, "message", rejected.Message)
		return JobHandle{}, rejected
	}

	opURL := resp.Header.Get(OperationLocationHeader)
	if opURL == "" {
		c.log.Error("vision.submit.missing_operation_location", "status", resp.StatusCode)
		return JobHandle{}, common.NewAppError(common.CodeServiceRejected, "vision API accepted the request without a polling URL", common.ErrMissingOperationHandle)
	}

	c.log.Info("vision.submit.accepted", "operation_url", opURL)
	return JobHandle{OperationURL: opURL, SubmittedAt: time.Now()}, nil
}

func (c *Client) logImageInfo(src source.Source) {
	info, err := source.Inspect(src.Bytes())
	if err != nil {
		c.log.Debug("vision.submit.inspect_failed", "bytes", info.Bytes, "error", err)
	} else {
		c.log.Info("vision.submit.image", "format", info.Format, "width", info.Width, "height", info.Height, "bytes", info.Bytes)
	}
	for _, w := range info.Warnings() {
		c.log.Warn("vision.submit.image_limit", "warning", w)
	}
}

// contextError reports the caller's own cancellation or deadline, if any.
func contextError(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError(common.CodeTimeout, "caller deadline exceeded", fmt.Errorf("%w: %w", common.ErrTimeout, err))
	default:
		return err
	}
}
