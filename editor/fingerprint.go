package editor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"pixelstack/core"
)

// fingerprints computes the per-layer fingerprint for every layer in the
// stack, front to back. A layer's fingerprint covers its id, tool, params,
// transform, and the rolling hash of everything beneath it (seeded with
// the base image). Every layer folds into the rolling hash together with
// its visibility bit, hidden ones included, so moving a hidden layer past
// a visible one still changes the successor's fingerprint. The layer's
// own visibility is deliberately excluded from its own fingerprint, so
// hiding and re-showing a layer does not invalidate its own cached result.
func fingerprints(base core.ImageRef, layers []core.Layer) []string {
	composite := hash("base", string(base))

	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = hash(composite, descriptor(l))
		composite = hash(composite, descriptor(l), visBit(l))
	}
	return out
}

func visBit(l core.Layer) string {
	if l.Visible {
		return "v"
	}
	return "h"
}

// descriptor serializes the identity-relevant fields of a layer. Params
// structs marshal deterministically, so the JSON form is a stable key.
func descriptor(l core.Layer) string {
	params, err := json.Marshal(l.Params)
	if err != nil {
		// Params are plain structs; this cannot fail for any value
		// constructed through the core package.
		panic(fmt.Sprintf("marshal %q params: %v", l.Tool, err))
	}

	d := l.ID + "|" + string(l.Tool) + "|" + string(params)
	if l.Transform != nil {
		d += fmt.Sprintf("|t:%v,%v,%v,%v,%v",
			l.Transform.X, l.Transform.Y, l.Transform.Width, l.Transform.Height, l.Transform.Rotation)
	}
	return d
}

func hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
