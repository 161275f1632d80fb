// Package renderer defines the external render collaborator: the opaque
// capability that actually produces edited images. The engine hands it a
// layer's tool, params, and composited input, and treats everything behind
// it (a hosted model, a local pipeline) as a black box.
package renderer

import (
	"context"

	"pixelstack/core"
)

type (
	// Request carries everything a single layer render needs. Input is the
	// composited output of all visible layers beneath the one being
	// rendered (or the base image), Mask the combined selection mask, if
	// any.
	Request struct {
		Tool      core.Tool
		Params    core.LayerParams
		Transform *core.Transform
		Input     core.ImageRef
		Mask      core.ImageRef
	}

	// Result is the renderer's output image.
	Result struct {
		Image core.ImageRef
	}
)

// Renderer produces a result image for one layer. Implementations may
// block for a long time; they must honor ctx cancellation.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Result, error)
}
