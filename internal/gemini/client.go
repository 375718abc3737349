package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oukeidos/splitfill/internal/apperrors"
	"github.com/oukeidos/splitfill/internal/httpclient"
	"github.com/oukeidos/splitfill/internal/media"
	"google.golang.org/genai"
)

const (
	// DefaultModel is used when neither flags nor settings name a model.
	DefaultModel = "gemini-2.5-flash-image"
	// TargetAspectRatio is the shape every expanded half is generated at.
	TargetAspectRatio = "16:9"
)

// ExpandPrompt is sent with every half.
const ExpandPrompt = "Expand this image to fill a 16:9 frame. Keep the existing content " +
	"unchanged and continue the scene naturally into the new area, matching lighting, " +
	"perspective, colour and texture. Do not add text, borders or watermarks. " +
	"Return only the expanded image."

// ErrNoCredential is returned when no API key is available.
var ErrNoCredential = apperrors.New(apperrors.KindAuth,
	"No Gemini API key configured. Run 'splitfill env setup' or set GEMINI_API_KEY.", nil)

// Config selects the credential, endpoint and model for a Client.
type Config struct {
	APIKey string
	// Endpoint optionally replaces the default API base URL.
	Endpoint string
	Model    string
}

// Expander turns one half into an image at the target aspect ratio.
type Expander interface {
	Expand(ctx context.Context, img media.Image) (media.Image, error)
}

// Client handles communication with the Gemini API.
type Client struct {
	cfg    Config
	client *genai.Client

	mu    sync.Mutex
	usage Usage
}

// Ensure Client implements Expander
var _ Expander = (*Client)(nil)

// NewClient creates a new Gemini client. An empty API key is accepted;
// such a client reports ErrNoCredential from Configured and Expand.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	c := &Client{cfg: cfg}
	if cfg.APIKey == "" {
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpclient.GetDefaultClient(),
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: withTrailingSlash(cfg.Endpoint)}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.client = client
	return c, nil
}

// Model returns the model every request is sent to.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Configured reports ErrNoCredential when the client has no API key.
func (c *Client) Configured() error {
	if c == nil || c.client == nil {
		return ErrNoCredential
	}
	return nil
}

// Usage returns a snapshot of the accumulated usage.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Expand sends one half with the fixed prompt and returns the first image
// in the response. Failures are classified but never retried here.
func (c *Client) Expand(ctx context.Context, img media.Image) (media.Image, error) {
	if err := c.Configured(); err != nil {
		return media.Image{}, err
	}
	if img.Empty() {
		return media.Image{}, apperrors.BadRequest(fmt.Errorf("empty image payload"))
	}
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = media.DetectMIME("", img.Data)
	}

	ctx, cancel := context.WithTimeout(ctx, httpclient.DefaultTimeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(ExpandPrompt),
			genai.NewPartFromBytes(img.Data, mimeType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: TargetAspectRatio},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		return media.Image{}, classifyGeminiError(err)
	}
	c.recordUsage(resp)

	out, err := extractImage(resp)
	if err != nil {
		return media.Image{}, apperrors.Validation(err)
	}
	return out, nil
}

func (c *Client) recordUsage(resp *genai.GenerateContentResponse) {
	u := Usage{Requests: 1}
	if resp != nil && resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CandidatesTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	if _, err := extractImage(resp); err == nil {
		u.Images = 1
	}
	c.mu.Lock()
	c.usage.add(u)
	c.mu.Unlock()
}

func extractImage(resp *genai.GenerateContentResponse) (media.Image, error) {
	if resp == nil {
		return media.Image{}, fmt.Errorf("no response received from Gemini")
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return media.Image{}, fmt.Errorf("prompt blocked by Gemini: %s", resp.PromptFeedback.BlockReason)
		}
		return media.Image{}, fmt.Errorf("no candidates returned from Gemini")
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if !media.IsImage(mimeType) {
				mimeType = media.DetectMIME("", part.InlineData.Data)
				if !media.IsImage(mimeType) {
					continue
				}
			}
			out := media.Image{Data: part.InlineData.Data, MIMEType: mimeType}
			if w, h, err := media.Probe(out.Data); err == nil {
				out.Width, out.Height = w, h
			}
			return out, nil
		}
	}
	return media.Image{}, fmt.Errorf("no image parts found in Gemini response")
}

func withTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
