// Package inference talks to the external image analysis service.
package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when the analysis service answers with
// a body that does not carry a complete verdict.
var ErrMalformedPayload = errors.New("inference: malformed payload")

// Request describes the image to analyse. Locator is always set; Data is
// set when the transport uploads raw bytes.
type Request struct {
	DetectionID string
	Locator     string
	Filename    string
	ContentType string
	Data        []byte
}

// Result is a complete verdict. Exactly one of HeatmapLocator, HeatmapKey
// and HeatmapData identifies the heatmap.
type Result struct {
	Label                int
	LabelName            string
	State                string
	Confidence           float64
	StructuralSimilarity float64
	PerceptualDistance   float64
	ResidualMean         float64
	PeakRatio            float64

	// HeatmapLocator is a URL the service already published the heatmap at.
	HeatmapLocator string
	// HeatmapKey names a heatmap the service wrote into shared storage.
	HeatmapKey string
	// HeatmapData is a heatmap returned inline that still has to be stored.
	HeatmapData []byte
}

// Client runs one synchronous analysis.
type Client interface {
	Infer(ctx context.Context, req Request) (*Result, error)
}

// MaxLabelLength bounds label_name and state to the width of their columns.
const MaxLabelLength = 64

// payload mirrors the analysis service response. Pointers distinguish a
// missing field from a zero value.
type payload struct {
	Label           *int     `json:"label"`
	LabelName       *string  `json:"label_name"`
	State           *string  `json:"state"`
	Confidence      *float64 `json:"confidence"`
	SSIM            *float64 `json:"ssim"`
	LPIPS           *float64 `json:"lpips"`
	RM              *float64 `json:"rm"`
	PVR             *float64 `json:"pvr"`
	HeatmapURL      string   `json:"heatmap_url"`
	HeatmapFilename string   `json:"heatmap_filename"`
	HeatmapBase64   string   `json:"heatmap_base64"`
}

func decodeResult(raw []byte) (*Result, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return p.toResult()
}

func (p *payload) toResult() (*Result, error) {
	var missing []string
	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	check("label", p.Label != nil)
	check("label_name", p.LabelName != nil && *p.LabelName != "")
	check("state", p.State != nil && *p.State != "")
	check("confidence", p.Confidence != nil)
	check("ssim", p.SSIM != nil)
	check("lpips", p.LPIPS != nil)
	check("rm", p.RM != nil)
	check("pvr", p.PVR != nil)
	check("heatmap", p.HeatmapURL != "" || p.HeatmapFilename != "" || p.HeatmapBase64 != "")
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %v", ErrMalformedPayload, missing)
	}
	if *p.Label < 0 {
		return nil, fmt.Errorf("%w: negative label %d", ErrMalformedPayload, *p.Label)
	}
	if len(*p.LabelName) > MaxLabelLength || len(*p.State) > MaxLabelLength {
		return nil, fmt.Errorf("%w: label_name or state longer than %d bytes", ErrMalformedPayload, MaxLabelLength)
	}
	if *p.Confidence < 0 || *p.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %f out of range", ErrMalformedPayload, *p.Confidence)
	}

	res := &Result{
		Label:                *p.Label,
		LabelName:            *p.LabelName,
		State:                *p.State,
		Confidence:           *p.Confidence,
		StructuralSimilarity: *p.SSIM,
		PerceptualDistance:   *p.LPIPS,
		ResidualMean:         *p.RM,
		PeakRatio:            *p.PVR,
	}
	switch {
	case p.HeatmapBase64 != "":
		data, err := base64.StdEncoding.DecodeString(p.HeatmapBase64)
		if err != nil || len(data) == 0 {
			return nil, fmt.Errorf("%w: heatmap_base64 is not valid base64", ErrMalformedPayload)
		}
		res.HeatmapData = data
	case p.HeatmapURL != "":
		res.HeatmapLocator = p.HeatmapURL
	default:
		res.HeatmapKey = p.HeatmapFilename
	}
	return res, nil
}
