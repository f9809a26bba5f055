package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joseph-ayodele/cardscan/constants"
	"github.com/joseph-ayodele/cardscan/internal/common"
)

// RawResult is a terminal "succeeded" poll response. AnalyzeResult is left undecoded for Parse.
type RawResult struct {
	Status        constants.OperationStatus
	AnalyzeResult json.RawMessage
	Polls         int
}

type operation struct {
	Status        string          `json:"status"`
	AnalyzeResult json.RawMessage `json:"analyzeResult"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Await polls the operation until it reaches a terminal status, the attempt budget runs
// out, or ctx is done. Only notStarted and running cause another poll; every other outcome,
// including transport errors, ends the loop.
func (c *Client) Await(ctx context.Context, h JobHandle) (RawResult, error) {
	start := time.Now()
	interval := c.cfg.Poll.Interval
	maxAttempts := c.cfg.Poll.MaxAttempts

	c.log.Info("vision.poll.start", "operation_url", h.OperationURL, "max_attempts", maxAttempts, "interval_ms", interval.Milliseconds())

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		op, err := c.pollOnce(ctx, h)
		if err != nil {
			return RawResult{}, err
		}

		status := constants.OperationStatus(op.Status)
		c.log.Debug("vision.poll.status", "attempt", attempt, "status", op.Status)

		if !status.Known() {
			c.log.Error("vision.poll.unknown_status", "attempts", attempt, "status", op.Status)
			return RawResult{}, &common.UnknownStatusError{Status: op.Status}
		}

		switch status {
		case constants.OperationSucceeded:
			if len(op.AnalyzeResult) == 0 || string(op.AnalyzeResult) == "null" {
				return RawResult{}, common.MalformedResponseError("operation succeeded without analyzeResult", nil)
			}
			c.log.Info("vision.poll.succeeded", "attempts", attempt, "elapsed_ms", time.Since(start).Milliseconds())
			return RawResult{Status: status, AnalyzeResult: op.AnalyzeResult, Polls: attempt}, nil
		case constants.OperationFailed:
			msg := "Operation failed"
			if op.Error != nil && op.Error.Message != "" {
				msg = op.Error.Message
			}
			c.log.Error("vision.poll.failed", "attempts", attempt, "message", msg)
			return RawResult{}, &common.ServiceFailedError{Message: msg}
		}

		if attempt == maxAttempts {
			break
		}
		if err := sleepContext(ctx, interval); err != nil {
			return RawResult{}, contextError(ctx)
		}
		interval = c.cfg.Poll.next(interval)
	}

	c.log.Error("vision.poll.timeout", "attempts", maxAttempts, "elapsed_ms", time.Since(start).Milliseconds())
	return RawResult{}, common.NewAppError(common.CodeTimeout,
		fmt.Sprintf("read operation still running after %d polls", maxAttempts), common.ErrTimeout)
}

func (c *Client) pollOnce(ctx context.Context, h JobHandle) (*operation, error) {
	resp, err := c.send(ctx, c.cfg.PollTimeout, http.MethodGet, h.OperationURL, nil, "")
	if err != nil {
		if cerr := contextError(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, common.TransportError("poll vision operation", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, common.TransportError(fmt.Sprintf("poll vision operation (HTTP %d)", resp.StatusCode), nil)
	}

	opSchema, _, err := schemas()
	if err != nil {
		return nil, err
	}
	if err := validateJSON(opSchema, resp.Body); err != nil {
		return nil, common.MalformedResponseError("invalid operation response", err)
	}
	var op operation
	if err := json.Unmarshal(resp.Body, &op); err != nil {
		return nil, common.MalformedResponseError("decode operation response", err)
	}
	return &op, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
