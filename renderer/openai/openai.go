// Package openai implements the render collaborator against the OpenAI
// images API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pixelstack/core"
	"pixelstack/renderer"
)

// Renderer calls the OpenAI images edits endpoint. The base URL is
// overridable so any API-compatible backend can serve renders.
type Renderer struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// New reads configuration from the environment. A missing API key is
// logged, not fatal; renders will fail until it is configured.
func New() *Renderer {
	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com" // Default value
	}
	model := os.Getenv("OPENAI_IMAGE_MODEL")
	if model == "" {
		model = "gpt-image-1"
	}
	if apiKey == "" {
		logrus.Warn("OPENAI_API_KEY environment variable not set. Rendering will not work.")
	}

	return &Renderer{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Render uploads the composited input (and mask, if any) and returns the
// edited image as a data URI.
func (r *Renderer) Render(ctx context.Context, req renderer.Request) (*renderer.Result, error) {
	if r.apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is not configured")
	}

	input, err := refBytes(req.Input)
	if err != nil {
		return nil, fmt.Errorf("decoding input image: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("image", "input.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(input); err != nil {
		return nil, err
	}

	if req.Mask != "" {
		maskData, err := refBytes(req.Mask)
		if err != nil {
			return nil, fmt.Errorf("decoding mask image: %w", err)
		}
		maskPart, err := w.CreateFormFile("mask", "mask.png")
		if err != nil {
			return nil, err
		}
		if _, err := maskPart.Write(maskData); err != nil {
			return nil, err
		}
	}

	w.WriteField("model", r.model)
	w.WriteField("prompt", instruction(req))
	if err := w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/v1/images/edits", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling images API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading images API response: %w", err)
	}

	var parsed imageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing images API response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("images API returned %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("images API returned no image")
	}

	return &renderer.Result{
		Image: core.ImageRef("data:image/png;base64," + parsed.Data[0].B64JSON),
	}, nil
}

// instruction turns a layer's tool and params into the edit prompt the
// images API expects.
func instruction(req renderer.Request) string {
	switch p := req.Params.(type) {
	case *core.GenerativeFillParams:
		s := p.Prompt
		if p.NegativePrompt != "" {
			s += ". Avoid: " + p.NegativePrompt
		}
		return s
	case *core.InpaintParams:
		return "Replace the masked region with: " + p.Prompt
	case *core.RemoveBackgroundParams:
		return "Remove the background, leaving the subject on transparency"
	case *core.UpscaleParams:
		return fmt.Sprintf("Upscale the image %dx, preserving detail", p.Factor)
	case *core.StyleTransferParams:
		return "Redraw the image in the style: " + p.Style
	case *core.AdjustParams:
		return fmt.Sprintf("Adjust brightness %+.2f, contrast %+.2f, saturation %+.2f",
			p.Brightness, p.Contrast, p.Saturation)
	default:
		return string(req.Tool)
	}
}

// refBytes extracts the raw bytes from a data URI or bare base64 image
// reference.
func refBytes(ref core.ImageRef) ([]byte, error) {
	payload := string(ref)
	if idx := strings.Index(payload, ";base64,"); idx >= 0 {
		payload = payload[idx+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(payload)
}
