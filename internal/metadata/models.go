package metadata

// ImageModel describes a Gemini model that can return images.
type ImageModel struct {
	ID              string
	Label           string
	InputPerMillion float64
	// OutputPerMillion applies to text and image output tokens alike.
	OutputPerMillion float64
	// TokensPerImage is the output token charge for one generated image.
	TokensPerImage int
}

var ImageModels = []ImageModel{
	{
		ID:               "gemini-2.5-flash-image",
		Label:            "Gemini 2.5 Flash Image",
		InputPerMillion:  0.30,
		OutputPerMillion: 30.00,
		TokensPerImage:   1290,
	},
	{
		ID:               "gemini-2.5-flash-image-preview",
		Label:            "Gemini 2.5 Flash Image (preview)",
		InputPerMillion:  0.30,
		OutputPerMillion: 30.00,
		TokensPerImage:   1290,
	},
	{
		ID:               "gemini-3-pro-image-preview",
		Label:            "Gemini 3 Pro Image (preview)",
		InputPerMillion:  2.00,
		OutputPerMillion: 120.00,
		TokensPerImage:   1120,
	},
}

const (
	DefaultInputPerMillion  = 2.00
	DefaultOutputPerMillion = 120.00
	DefaultTokensPerImage   = 1290
)

func ImageModelIDs() []string {
	ids := make([]string, 0, len(ImageModels))
	for _, m := range ImageModels {
		ids = append(ids, m.ID)
	}
	return ids
}

// Pricing returns the catalogue entry for modelID, or conservative
// defaults and false when the model is unknown.
func Pricing(modelID string) (ImageModel, bool) {
	for _, m := range ImageModels {
		if m.ID == modelID {
			return m, true
		}
	}
	return ImageModel{
		ID:               "default",
		Label:            "Default Gemini image model",
		InputPerMillion:  DefaultInputPerMillion,
		OutputPerMillion: DefaultOutputPerMillion,
		TokensPerImage:   DefaultTokensPerImage,
	}, false
}

// EstimateCost prices a run from reported token counts. When the API did
// not report output tokens, images are charged at TokensPerImage each.
func EstimateCost(modelID string, promptTokens, outputTokens, images int) float64 {
	m, _ := Pricing(modelID)
	if outputTokens <= 0 {
		outputTokens = images * m.TokensPerImage
	}
	return float64(promptTokens)/1_000_000*m.InputPerMillion +
		float64(outputTokens)/1_000_000*m.OutputPerMillion
}
