package core

import (
	"encoding/json"
	"fmt"
)

// Tool identifies the kind of edit operation a layer performs.
type Tool string

const (
	ToolGenerativeFill   Tool = "generative-fill"
	ToolInpaint          Tool = "inpaint"
	ToolRemoveBackground Tool = "remove-background"
	ToolUpscale          Tool = "upscale"
	ToolStyleTransfer    Tool = "style-transfer"
	ToolAdjust           Tool = "adjust"
)

// ImageRef is an opaque reference to an image (a URL, a data URI, or a
// storage key). The engine never looks inside it.
type ImageRef string

type (
	// Transform is an optional placement of a layer's effect on the canvas.
	Transform struct {
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
		Width    float64 `json:"width"`
		Height   float64 `json:"height"`
		Rotation float64 `json:"rotation"`
	}

	// RenderResult is a cached output of the external renderer. The
	// fingerprint records the exact stack configuration the image was
	// produced under; a result is only valid while the live fingerprint
	// at the layer's position still matches.
	RenderResult struct {
		Image       ImageRef `json:"image"`
		Fingerprint string   `json:"fingerprint"`
	}

	// Layer is one non-destructive edit operation stacked on top of the
	// base image. The ID is assigned once and never changes, including
	// across undo/redo.
	Layer struct {
		ID          string        `json:"id"`
		Name        string        `json:"name"`
		Tool        Tool          `json:"tool"`
		Params      LayerParams   `json:"params"`
		Visible     bool          `json:"isVisible"`
		Transform   *Transform    `json:"transform,omitempty"`
		Result      *RenderResult `json:"cachedResult,omitempty"`
		RenderError string        `json:"renderError,omitempty"`
	}

	// LayerRequest is what a tool panel emits to create a layer. The tool
	// tag and params must be consistent; Validate enforces that before the
	// layer enters a stack.
	LayerRequest struct {
		Name      string      `json:"name"`
		Tool      Tool        `json:"tool"`
		Params    LayerParams `json:"params"`
		Transform *Transform  `json:"transform,omitempty"`
	}
)

// LayerParams is the closed union of per-tool parameter records. Each
// concrete type reports the tool tag it belongs to.
type LayerParams interface {
	ParamsTool() Tool
	Validate() error
}

type (
	GenerativeFillParams struct {
		Prompt         string  `json:"prompt"`
		NegativePrompt string  `json:"negativePrompt,omitempty"`
		Strength       float64 `json:"strength"`
		Seed           *int64  `json:"seed,omitempty"`
	}

	InpaintParams struct {
		Prompt string `json:"prompt"`
	}

	RemoveBackgroundParams struct{}

	UpscaleParams struct {
		Factor int `json:"factor"`
	}

	StyleTransferParams struct {
		// Style names either a built-in style or a custom style saved
		// with the project.
		Style string `json:"style"`
	}

	AdjustParams struct {
		Brightness float64 `json:"brightness"`
		Contrast   float64 `json:"contrast"`
		Saturation float64 `json:"saturation"`
	}
)

func (GenerativeFillParams) ParamsTool() Tool   { return ToolGenerativeFill }
func (InpaintParams) ParamsTool() Tool          { return ToolInpaint }
func (RemoveBackgroundParams) ParamsTool() Tool { return ToolRemoveBackground }
func (UpscaleParams) ParamsTool() Tool          { return ToolUpscale }
func (StyleTransferParams) ParamsTool() Tool    { return ToolStyleTransfer }
func (AdjustParams) ParamsTool() Tool           { return ToolAdjust }

func (p GenerativeFillParams) Validate() error {
	if p.Prompt == "" {
		return fmt.Errorf("%w: generative fill requires a prompt", ErrValidation)
	}
	if p.Strength < 0 || p.Strength > 1 {
		return fmt.Errorf("%w: strength must be in [0,1], got %v", ErrValidation, p.Strength)
	}
	return nil
}

func (p InpaintParams) Validate() error {
	if p.Prompt == "" {
		return fmt.Errorf("%w: inpaint requires a prompt", ErrValidation)
	}
	return nil
}

func (RemoveBackgroundParams) Validate() error { return nil }

func (p UpscaleParams) Validate() error {
	if p.Factor != 2 && p.Factor != 4 {
		return fmt.Errorf("%w: upscale factor must be 2 or 4, got %d", ErrValidation, p.Factor)
	}
	return nil
}

func (p StyleTransferParams) Validate() error {
	if p.Style == "" {
		return fmt.Errorf("%w: style transfer requires a style name", ErrValidation)
	}
	return nil
}

func (p AdjustParams) Validate() error {
	for _, v := range []float64{p.Brightness, p.Contrast, p.Saturation} {
		if v < -1 || v > 1 {
			return fmt.Errorf("%w: adjust values must be in [-1,1], got %v", ErrValidation, v)
		}
	}
	return nil
}

// Validate checks that the request is well formed and that the params
// record matches the tool tag.
func (r LayerRequest) Validate() error {
	if r.Params == nil {
		return fmt.Errorf("%w: missing params for tool %q", ErrValidation, r.Tool)
	}
	if r.Params.ParamsTool() != r.Tool {
		return fmt.Errorf("%w: params for %q do not match tool %q", ErrValidation, r.Params.ParamsTool(), r.Tool)
	}
	return r.Params.Validate()
}

// ParamsForTool returns a zero value of the params type for the given tool
// tag, or an error for an unknown tool.
func ParamsForTool(tool Tool) (LayerParams, error) {
	switch tool {
	case ToolGenerativeFill:
		return &GenerativeFillParams{}, nil
	case ToolInpaint:
		return &InpaintParams{}, nil
	case ToolRemoveBackground:
		return &RemoveBackgroundParams{}, nil
	case ToolUpscale:
		return &UpscaleParams{}, nil
	case ToolStyleTransfer:
		return &StyleTransferParams{}, nil
	case ToolAdjust:
		return &AdjustParams{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool %q", ErrValidation, tool)
	}
}

// layerJSON mirrors Layer with raw params so the union can be decoded
// based on the tool tag.
type layerJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Tool        Tool            `json:"tool"`
	Params      json.RawMessage `json:"params"`
	Visible     bool            `json:"isVisible"`
	Transform   *Transform      `json:"transform,omitempty"`
	Result      *RenderResult   `json:"cachedResult,omitempty"`
	RenderError string          `json:"renderError,omitempty"`
}

func (l *Layer) UnmarshalJSON(data []byte) error {
	var raw layerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	params, err := ParamsForTool(raw.Tool)
	if err != nil {
		return err
	}
	if len(raw.Params) > 0 {
		if err := json.Unmarshal(raw.Params, params); err != nil {
			return fmt.Errorf("decoding %q params: %w", raw.Tool, err)
		}
	}

	l.ID = raw.ID
	l.Name = raw.Name
	l.Tool = raw.Tool
	l.Params = params
	l.Visible = raw.Visible
	l.Transform = raw.Transform
	l.Result = raw.Result
	l.RenderError = raw.RenderError
	return nil
}

func (r *LayerRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      string          `json:"name"`
		Tool      Tool            `json:"tool"`
		Params    json.RawMessage `json:"params"`
		Transform *Transform      `json:"transform,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	params, err := ParamsForTool(raw.Tool)
	if err != nil {
		return err
	}
	if len(raw.Params) > 0 {
		if err := json.Unmarshal(raw.Params, params); err != nil {
			return fmt.Errorf("decoding %q params: %w", raw.Tool, err)
		}
	}

	r.Name = raw.Name
	r.Tool = raw.Tool
	r.Params = params
	r.Transform = raw.Transform
	return nil
}

// Clone returns a copy of the layer. Params are immutable after
// construction and are shared; Transform and Result are copied so
// snapshots cannot be mutated through the live stack.
func (l Layer) Clone() Layer {
	c := l
	if l.Transform != nil {
		t := *l.Transform
		c.Transform = &t
	}
	if l.Result != nil {
		r := *l.Result
		c.Result = &r
	}
	return c
}
