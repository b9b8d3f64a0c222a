package models

import "time"

// CacheEntry stores a previously computed translation.
type CacheEntry struct {
	Key            string    `json:"key"`
	SourceText     string    `json:"source_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	Confidence     *float64  `json:"confidence,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Size        int64     `json:"size"`
	LastCleanup time.Time `json:"last_cleanup,omitzero"`
}
