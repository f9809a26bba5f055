// Package boxtext holds recognized text lines and the polygons that enclose them,
// independent of any service's wire format.
package boxtext

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// MinPoints is the smallest polygon accepted as a bounding box.
const MinPoints = 4

// Point is one vertex of a bounding box, in image pixels.
type Point struct {
	X float64
	Y float64
}

// BoundingBox is a quadrilateral (or larger polygon) around one line of text.
// Vertex order is whatever the service returned.
type BoundingBox []Point

// NewBoundingBox builds a box from flat x,y pairs: [x1, y1, x2, y2, ...].
func NewBoundingBox(coords []float64) (BoundingBox, error) {
	if len(coords)%2 != 0 {
		return nil, fmt.Errorf("bounding box: odd coordinate count %d", len(coords))
	}
	if len(coords)/2 < MinPoints {
		return nil, fmt.Errorf("bounding box: need at least %d points, got %d", MinPoints, len(coords)/2)
	}
	box := make(BoundingBox, 0, len(coords)/2)
	for i := 0; i < len(coords); i += 2 {
		box = append(box, Point{X: coords[i], Y: coords[i+1]})
	}
	return box, nil
}

// Flat returns the box as [x1, y1, x2, y2, ...].
func (b BoundingBox) Flat() []float64 {
	out := make([]float64, 0, len(b)*2)
	for _, p := range b {
		out = append(out, p.X, p.Y)
	}
	return out
}

// String renders the box as "x1,y1 x2,y2 ...".
func (b BoundingBox) String() string {
	parts := make([]string, len(b))
	for i, p := range b {
		parts[i] = fmt.Sprintf("%g,%g", p.X, p.Y)
	}
	return strings.Join(parts, " ")
}

func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Flat())
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	box, err := NewBoundingBox(coords)
	if err != nil {
		return err
	}
	*b = box
	return nil
}

// TextRegion is one recognized line. It is immutable once built.
type TextRegion struct {
	box  BoundingBox
	text string
}

// NewTextRegion copies box so later changes by the caller do not leak in.
func NewTextRegion(box BoundingBox, text string) TextRegion {
	return TextRegion{box: slices.Clone(box), text: text}
}

func (r TextRegion) Box() BoundingBox { return slices.Clone(r.box) }
func (r TextRegion) Text() string     { return r.text }

type regionJSON struct {
	Box  BoundingBox `json:"box"`
	Text string      `json:"text"`
}

func (r TextRegion) MarshalJSON() ([]byte, error) {
	return json.Marshal(regionJSON{Box: r.box, Text: r.text})
}

func (r *TextRegion) UnmarshalJSON(data []byte) error {
	var v regionJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = TextRegion{box: v.Box, text: v.Text}
	return nil
}

// RegionList keeps regions in insertion order. No dedupe, no sorting.
// The zero value is an empty list ready to use.
type RegionList struct {
	regions []TextRegion
}

// NewRegionList returns an empty list.
func NewRegionList() *RegionList {
	return &RegionList{}
}

// Add appends a region built from box and text.
func (l *RegionList) Add(box BoundingBox, text string) {
	l.regions = append(l.regions, NewTextRegion(box, text))
}

func (l *RegionList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.regions)
}

// All iterates regions in insertion order.
func (l *RegionList) All() iter.Seq2[int, TextRegion] {
	return func(yield func(int, TextRegion) bool) {
		if l == nil {
			return
		}
		for i, r := range l.regions {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Regions returns a copy of the underlying slice.
func (l *RegionList) Regions() []TextRegion {
	if l == nil {
		return nil
	}
	return slices.Clone(l.regions)
}

// Texts returns the text of every region, in order.
func (l *RegionList) Texts() []string {
	out := make([]string, 0, l.Len())
	for _, r := range l.All() {
		out = append(out, r.text)
	}
	return out
}

func (l *RegionList) MarshalJSON() ([]byte, error) {
	if l == nil || l.regions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.regions)
}

func (l *RegionList) UnmarshalJSON(data []byte) error {
	var regions []TextRegion
	if err := json.Unmarshal(data, &regions); err != nil {
		return err
	}
	l.regions = regions
	return nil
}
