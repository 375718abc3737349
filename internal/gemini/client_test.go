package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/oukeidos/splitfill/internal/apperrors"
	"github.com/oukeidos/splitfill/internal/media"
	"google.golang.org/genai"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestNewClient_NoCredential(t *testing.T) {
	c, err := NewClient(context.Background(), Config{APIKey: "  "})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if !errors.Is(c.Configured(), ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential from Configured")
	}
	_, err = c.Expand(context.Background(), media.Image{Data: []byte{1}, MIMEType: "image/png"})
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential from Expand, got %v", err)
	}
	if !apperrors.Is(err, apperrors.KindAuth) {
		t.Fatalf("expected auth kind")
	}
	if c.Model() != DefaultModel {
		t.Fatalf("expected default model, got %q", c.Model())
	}
}

func TestClient_ExpandAgainstEndpoint(t *testing.T) {
	out := pngBytes(t, 16, 9)
	var hits atomic.Int32
	var gotKey, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role": "model",
					"parts": []any{
						map[string]any{"text": "here you go"},
						map[string]any{"inlineData": map[string]any{
							"mimeType": "image/png",
							"data":     base64.StdEncoding.EncodeToString(out),
						}},
					},
				},
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     12,
				"candidatesTokenCount": 1290,
				"totalTokenCount":      1302,
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{APIKey: "test-key", Endpoint: srv.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := c.Configured(); err != nil {
		t.Fatalf("expected configured client, got %v", err)
	}

	img, err := c.Expand(context.Background(), media.Image{Data: pngBytes(t, 4, 8), MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", hits.Load())
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if !strings.Contains(gotPath, "models/test-model:generateContent") {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	gen, _ := gotBody["generationConfig"].(map[string]any)
	imgCfg, _ := gen["imageConfig"].(map[string]any)
	if imgCfg["aspectRatio"] != TargetAspectRatio {
		t.Fatalf("expected aspect ratio %q in request, got %v", TargetAspectRatio, gen)
	}
	if img.MIMEType != "image/png" || img.Width != 16 || img.Height != 9 {
		t.Fatalf("unexpected image: %s %dx%d", img.MIMEType, img.Width, img.Height)
	}
	u := c.Usage()
	if u.Requests != 1 || u.Images != 1 || u.TotalTokens != 1302 || u.CandidatesTokens != 1290 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

func TestClient_ExpandClassifiesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{APIKey: "bad", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	_, err = c.Expand(context.Background(), media.Image{Data: pngBytes(t, 2, 2), MIMEType: "image/png"})
	assertErrorKind(t, err, apperrors.KindAuth)
	if strings.Contains(apperrors.PublicMessage(err), "API key not valid") {
		t.Fatalf("raw upstream message leaked: %q", apperrors.PublicMessage(err))
	}
}

func TestClient_ExpandRejectsEmptyImage(t *testing.T) {
	c := &Client{cfg: Config{Model: DefaultModel}, client: &genai.Client{}}
	_, err := c.Expand(context.Background(), media.Image{})
	assertErrorKind(t, err, apperrors.KindBadRequest)
}

func TestExtractImage(t *testing.T) {
	data := pngBytes(t, 3, 2)

	t.Run("NilResponse", func(t *testing.T) {
		_, err := extractImage(nil)
		if err == nil || err.Error() != "no response received from Gemini" {
			t.Fatalf("expected nil response error, got: %v", err)
		}
	})

	t.Run("EmptyCandidates", func(t *testing.T) {
		_, err := extractImage(&genai.GenerateContentResponse{})
		if err == nil || err.Error() != "no candidates returned from Gemini" {
			t.Fatalf("expected empty candidates error, got: %v", err)
		}
	})

	t.Run("Blocked", func(t *testing.T) {
		_, err := extractImage(&genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"},
		})
		if err == nil || !strings.Contains(err.Error(), "SAFETY") {
			t.Fatalf("expected blocked error, got: %v", err)
		}
	})

	t.Run("TextOnly", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: genai.NewContentFromText("I cannot do that", genai.RoleModel)},
			},
		}
		_, err := extractImage(resp)
		if err == nil || err.Error() != "no image parts found in Gemini response" {
			t.Fatalf("expected no image parts error, got: %v", err)
		}
	})

	t.Run("SkipsNonImageBlob", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []*genai.Part{
					{InlineData: &genai.Blob{MIMEType: "application/octet-stream", Data: []byte{0x01}}},
				}}},
				{Content: &genai.Content{Parts: []*genai.Part{
					genai.NewPartFromBytes(data, "image/png"),
				}}},
			},
		}
		img, err := extractImage(resp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if img.Width != 3 || img.Height != 2 {
			t.Fatalf("expected probed dimensions 3x2, got %dx%d", img.Width, img.Height)
		}
	})

	t.Run("SniffsMissingMIME", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []*genai.Part{
					{InlineData: &genai.Blob{Data: data}},
				}}},
			},
		}
		img, err := extractImage(resp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if img.MIMEType != "image/png" {
			t.Fatalf("expected sniffed image/png, got %q", img.MIMEType)
		}
	})
}

func TestMockClient(t *testing.T) {
	m := &MockClient{Result: media.Image{Data: []byte("x"), MIMEType: "image/png"}}
	img, err := m.Expand(context.Background(), media.Image{})
	if err != nil || string(img.Data) != "x" {
		t.Fatalf("unexpected mock result: %v %v", img, err)
	}
	m.Unconfigured = true
	if !errors.Is(m.Configured(), ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential")
	}
	if m.Calls() != 1 {
		t.Fatalf("expected 1 call, got %d", m.Calls())
	}
}
