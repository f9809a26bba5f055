package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joseph-ayodele/cardscan/internal/boxtext"
	"github.com/joseph-ayodele/cardscan/internal/common"
	"github.com/joseph-ayodele/cardscan/internal/source"
)

type analyzeResult struct {
	ReadResults []struct {
		Page  int `json:"page"`
		Lines []struct {
			BoundingBox []float64 `json:"boundingBox"`
			Text        *string   `json:"text"`
		} `json:"lines"`
	} `json:"readResults"`
}

// Parse converts a succeeded operation into regions.
func Parse(r RawResult) (*boxtext.RegionList, error) {
	return ParseAnalyzeResult(r.AnalyzeResult)
}

// ParseAnalyzeResult walks readResults[].lines[] in order. Lines without a bounding box or
// text are skipped; an empty or missing readResults gives an empty list.
func ParseAnalyzeResult(data []byte) (*boxtext.RegionList, error) {
	_, schema, err := schemas()
	if err != nil {
		return nil, err
	}
	if err := validateJSON(schema, data); err != nil {
		return nil, common.MalformedResponseError("unexpected analyzeResult format", err)
	}
	var ar analyzeResult
	if err := json.Unmarshal(data, &ar); err != nil {
		return nil, common.MalformedResponseError("decode analyzeResult", err)
	}

	out := boxtext.NewRegionList()
	for pi, page := range ar.ReadResults {
		for li, line := range page.Lines {
			if line.BoundingBox == nil || line.Text == nil {
				continue
			}
			box, err := boxtext.NewBoundingBox(line.BoundingBox)
			if err != nil {
				return nil, common.MalformedResponseError(fmt.Sprintf("page %d line %d", pi, li), err)
			}
			out.Add(box, *line.Text)
		}
	}
	return out, nil
}

// ImageToBoxTexts runs classify, submit, await and parse for one image reference.
func (c *Client) ImageToBoxTexts(ctx context.Context, imageRef string, isEncoded bool) (*boxtext.RegionList, error) {
	start := time.Now()
	src, err := source.Classify(imageRef, isEncoded)
	if err != nil {
		return nil, err
	}
	return c.Recognize(ctx, src, start)
}

// Recognize runs submit, await and parse for an already classified source.
func (c *Client) Recognize(ctx context.Context, src source.Source, start time.Time) (*boxtext.RegionList, error) {
	h, err := c.Submit(ctx, src)
	if err != nil {
		return nil, err
	}
	raw, err := c.Await(ctx, h)
	if err != nil {
		return nil, err
	}
	regions, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if regions.Len() == 0 {
		c.log.Warn("vision.recognize.no_text", "source_kind", src.Kind().String())
	}
	c.log.Info("vision.recognize.ok",
		"lines", regions.Len(),
		"polls", raw.Polls,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return regions, nil
}
