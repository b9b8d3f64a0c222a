package models

// TranslateItem is one (text, source, target) tuple in a batched call.
type TranslateItem struct {
	Text       string `json:"text"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
}

// TranslateResult is the translation of a single item.
type TranslateResult struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Cached     bool     `json:"cached,omitempty"`
}

// Transcription is the text recognized from an audio clip.
type Transcription struct {
	Text       string   `json:"text"`
	Language   string   `json:"language,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Detection is the language a provider recognized in a text.
type Detection struct {
	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Float returns a pointer to v, for optional confidence values.
func Float(v float64) *float64 {
	return &v
}
