package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pixelstack/core"
	"pixelstack/renderer"
)

func dataURI(payload string) core.ImageRef {
	return core.ImageRef("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload)))
}

func newTestRenderer(t *testing.T, serverURL string) *Renderer {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", serverURL)
	t.Setenv("OPENAI_IMAGE_MODEL", "gpt-image-1")
	return New()
}

func TestRenderUploadsImageAndMask(t *testing.T) {
	var gotPrompt, gotModel string
	var gotImage, gotMask []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/edits" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		gotPrompt = r.FormValue("prompt")
		gotModel = r.FormValue("model")

		read := func(field string) []byte {
			f, _, err := r.FormFile(field)
			if err != nil {
				return nil
			}
			defer f.Close()
			buf := make([]byte, 64)
			n, _ := f.Read(buf)
			return buf[:n]
		}
		gotImage = read("image")
		gotMask = read("mask")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString([]byte("edited"))}},
		})
	}))
	defer server.Close()

	r := newTestRenderer(t, server.URL)
	res, err := r.Render(context.Background(), renderer.Request{
		Tool:   core.ToolInpaint,
		Params: &core.InpaintParams{Prompt: "remove the wires"},
		Input:  dataURI("input-pixels"),
		Mask:   dataURI("mask-pixels"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotModel != "gpt-image-1" {
		t.Errorf("model = %q", gotModel)
	}
	if !strings.Contains(gotPrompt, "remove the wires") {
		t.Errorf("prompt = %q", gotPrompt)
	}
	if string(gotImage) != "input-pixels" {
		t.Errorf("image upload = %q", gotImage)
	}
	if string(gotMask) != "mask-pixels" {
		t.Errorf("mask upload = %q", gotMask)
	}

	want := core.ImageRef("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("edited")))
	if res.Image != want {
		t.Errorf("result = %q", res.Image)
	}
}

func TestRenderOmitsMissingMask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if _, _, err := r.FormFile("mask"); err == nil {
			t.Error("request must not carry a mask part")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"b64_json": "eA=="}},
		})
	}))
	defer server.Close()

	r := newTestRenderer(t, server.URL)
	if _, err := r.Render(context.Background(), renderer.Request{
		Tool:   core.ToolRemoveBackground,
		Params: &core.RemoveBackgroundParams{},
		Input:  dataURI("input"),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestRenderSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "rate limited"},
		})
	}))
	defer server.Close()

	r := newTestRenderer(t, server.URL)
	_, err := r.Render(context.Background(), renderer.Request{
		Tool:   core.ToolInpaint,
		Params: &core.InpaintParams{Prompt: "x"},
		Input:  dataURI("input"),
	})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("err = %v, want the API message", err)
	}
}

func TestRenderRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("OPENAI_IMAGE_MODEL", "")
	r := New()
	if _, err := r.Render(context.Background(), renderer.Request{Input: dataURI("x")}); err == nil {
		t.Error("render without an API key must fail")
	}
}

func TestInstructionPerTool(t *testing.T) {
	cases := []struct {
		params core.LayerParams
		want   string
	}{
		{&core.GenerativeFillParams{Prompt: "a red barn", NegativePrompt: "people"}, "a red barn. Avoid: people"},
		{&core.InpaintParams{Prompt: "grass"}, "Replace the masked region with: grass"},
		{&core.UpscaleParams{Factor: 4}, "Upscale the image 4x, preserving detail"},
		{&core.StyleTransferParams{Style: "ukiyo-e"}, "Redraw the image in the style: ukiyo-e"},
	}
	for _, tc := range cases {
		got := instruction(renderer.Request{Params: tc.params})
		if got != tc.want {
			t.Errorf("instruction(%T) = %q, want %q", tc.params, got, tc.want)
		}
	}
}
