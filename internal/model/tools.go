package model

import (
	"encoding/json"
	"fmt"
)

// Tool is a processing step applied by the ordering service.
// Exactly one field is set; on the wire it is a single-key object.
type Tool struct {
	Merge     *MergeTool     `json:"merge,omitempty"`
	Clip      *ClipTool      `json:"clip,omitempty"`
	BandMath  *BandMathTool  `json:"bandmath,omitempty"`
	Reproject *ReprojectTool `json:"reproject,omitempty"`
}

// MergeTool merges quads into a single raster.
type MergeTool struct{}

// ClipTool clips output to the product geometry.
type ClipTool struct{}

// BandMathTool computes output bands from expressions over input bands.
type BandMathTool struct {
	Expressions map[string]string // output band name (b1..b15) -> expression; nil when empty
	PixelType   string            // e.g. "8U", "16U", "32R"
}

const pixelTypeKey = "pixel_type"

// MarshalJSON flattens expressions and pixel type into one object.
func (b BandMathTool) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(b.Expressions)+1)
	for band, expr := range b.Expressions {
		m[band] = expr
	}
	if b.PixelType != "" {
		m[pixelTypeKey] = b.PixelType
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits the flattened object back into expressions and pixel type.
// An object with no expressions decodes to nil Expressions, which is the
// canonical empty form.
func (b *BandMathTool) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode bandmath tool: %w", err)
	}
	b.PixelType = m[pixelTypeKey]
	delete(m, pixelTypeKey)
	b.Expressions = nil
	if len(m) > 0 {
		b.Expressions = m
	}
	return nil
}

// ReprojectTool warps output into a target projection.
type ReprojectTool struct {
	Projection string  `json:"projection"`           // e.g. "EPSG:4326"
	Resolution float64 `json:"resolution,omitempty"` // in target projection units
	Kernel     string  `json:"kernel,omitempty"`     // near, bilinear, cubic, ...
}

// Merge returns a merge tool descriptor.
func Merge() Tool { return Tool{Merge: &MergeTool{}} }

// Clip returns a clip tool descriptor.
func Clip() Tool { return Tool{Clip: &ClipTool{}} }

// BandMath returns a bandmath tool descriptor.
func BandMath(pixelType string, expressions map[string]string) Tool {
	return Tool{BandMath: &BandMathTool{Expressions: expressions, PixelType: pixelType}}
}

// Reproject returns a reproject tool descriptor.
func Reproject(projection string, resolution float64, kernel string) Tool {
	return Tool{Reproject: &ReprojectTool{Projection: projection, Resolution: resolution, Kernel: kernel}}
}

// Kind returns the wire name of the tool, or "" if none is set.
func (t Tool) Kind() string {
	switch {
	case t.Merge != nil:
		return "merge"
	case t.Clip != nil:
		return "clip"
	case t.BandMath != nil:
		return "bandmath"
	case t.Reproject != nil:
		return "reproject"
	}
	return ""
}

func (t Tool) count() int {
	n := 0
	if t.Merge != nil {
		n++
	}
	if t.Clip != nil {
		n++
	}
	if t.BandMath != nil {
		n++
	}
	if t.Reproject != nil {
		n++
	}
	return n
}
