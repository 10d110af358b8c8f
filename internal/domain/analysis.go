package domain

// AnalysisRequest is constructed per call.
type AnalysisRequest struct {
	Prompt   string     `json:"prompt"`
	Category Category   `json:"category"`
	Provider ProviderID `json:"provider,omitempty"`
}

// AnalysisResult is either a success carrying Text or a failure carrying Failure.
type AnalysisResult struct {
	Text     string     `json:"text,omitempty"`
	Provider ProviderID `json:"provider,omitempty"`
	Model    string     `json:"model,omitempty"`
	Failure  *Failure   `json:"error,omitempty"`
}

// Succeeded builds a success result.
func Succeeded(text string, provider ProviderID, model string) AnalysisResult {
	return AnalysisResult{Text: text, Provider: provider, Model: model}
}

// Failed builds a failure result. Text is always empty.
func Failed(f *Failure, provider ProviderID, model string) AnalysisResult {
	return AnalysisResult{Provider: provider, Model: model, Failure: f}
}

// OK reports whether the result is a success.
func (r AnalysisResult) OK() bool {
	return r.Failure == nil
}

// Err returns the failure as an error, or nil.
func (r AnalysisResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}
