package models

import "time"

// Session groups the translations produced during one recording run.
type Session struct {
	ID           string         `json:"id"`
	SourceLang   string         `json:"source_lang"`
	TargetLang   string         `json:"target_lang"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
	EntryCount   int            `json:"entry_count"`
	Translations []SessionEntry `json:"translations,omitempty"`
}

// SessionEntry is a single translated utterance within a session.
type SessionEntry struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	Confidence     *float64  `json:"confidence,omitempty"`
	DurationMs     int64     `json:"duration_ms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
