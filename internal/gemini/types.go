package gemini

// Usage accumulates token counts reported by the API across calls.
type Usage struct {
	Requests         int
	Images           int
	PromptTokens     int
	CandidatesTokens int
	TotalTokens      int
}

func (u *Usage) add(o Usage) {
	u.Requests += o.Requests
	u.Images += o.Images
	u.PromptTokens += o.PromptTokens
	u.CandidatesTokens += o.CandidatesTokens
	u.TotalTokens += o.TotalTokens
}
