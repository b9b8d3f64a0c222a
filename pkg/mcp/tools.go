package mcp

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/kappaborg/Simultane-Translate/pkg/export"
	"github.com/kappaborg/Simultane-Translate/pkg/session"
)

type translateArgs struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type detectArgs struct {
	Text string `json:"text"`
}

type sessionsArgs struct {
	Limit      int    `json:"limit"`
	TargetLang string `json:"target_lang"`
}

type exportArgs struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"simultane_translate":      handleTranslate,
	"simultane_detect":         handleDetect,
	"simultane_limits":         handleLimits,
	"simultane_cache_stats":    handleCacheStats,
	"simultane_keys":           handleKeys,
	"simultane_usage":          handleUsage,
	"simultane_budget":         handleBudget,
	"simultane_sessions":       handleSessions,
	"simultane_session_export": handleSessionExport,
}

var toolDefinitions = []ToolDefinition{
	{
		Name:        "simultane_translate",
		Description: "Translate text between two languages. Long texts are split into sentence chunks; results are cached.",
		InputSchema: Schema{
			Type:     "object",
			Required: []string{"text", "target_lang"},
			Properties: map[string]Property{
				"text":        {Type: "string", Description: "Text to translate"},
				"source_lang": {Type: "string", Description: "Source language code, or auto (default)"},
				"target_lang": {Type: "string", Description: "Target language code, e.g. tr"},
			},
		},
	},
	{
		Name:        "simultane_detect",
		Description: "Detect the language of a text from its first 200 characters.",
		InputSchema: Schema{
			Type:     "object",
			Required: []string{"text"},
			Properties: map[string]Property{
				"text": {Type: "string", Description: "Text whose language to detect"},
			},
		},
	},
	{
		Name:        "simultane_limits",
		Description: "Show the rate-limit state: remaining requests, cooldown and time until calls are allowed again.",
		InputSchema: Schema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "simultane_cache_stats",
		Description: "Show translation cache statistics (entries, hits, misses, hit rate).",
		InputSchema: Schema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "simultane_keys",
		Description: "Show API key pool usage per provider. Keys are identified by fingerprint only.",
		InputSchema: Schema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "simultane_usage",
		Description: "Show remote call counts, errors and latency per provider, and budget status when enabled.",
		InputSchema: Schema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "simultane_budget",
		Description: "Show remote calls used and remaining per budget policy.",
		InputSchema: Schema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "simultane_sessions",
		Description: "List recent translation sessions.",
		InputSchema: Schema{
			Type: "object",
			Properties: map[string]Property{
				"limit":       {Type: "integer", Description: "Maximum sessions to list (optional)"},
				"target_lang": {Type: "string", Description: "Filter by target language (optional)"},
			},
		},
	},
	{
		Name:        "simultane_session_export",
		Description: "Export a session's translations as text, CSV or JSON.",
		InputSchema: Schema{
			Type:     "object",
			Required: []string{"session_id"},
			Properties: map[string]Property{
				"session_id": {Type: "string", Description: "The session to export"},
				"format":     {Type: "string", Description: "Output format (default txt)", Enum: []string{"txt", "csv", "json"}},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func decodeArgs(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return true
	}
	return json.Unmarshal(raw, v) == nil
}

func handleTranslate(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Translator == nil {
		return textResult("Translation is not configured.")
	}
	var args translateArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	if args.TargetLang == "" {
		return errorResult("target_lang is required")
	}
	if args.SourceLang == "" {
		args.SourceLang = "auto"
	}
	res, err := s.deps.Translator.TranslateLarge(ctx, args.Text, args.SourceLang, args.TargetLang)
	if err != nil {
		return errorResult("Translation failed: " + err.Error())
	}
	return textResult(res.Text)
}

func handleDetect(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Detector == nil {
		return textResult("Language detection is not configured.")
	}
	var args detectArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	if args.Text == "" {
		return errorResult("text is required")
	}
	res, err := s.deps.Detector.Detect(ctx, args.Text)
	if err != nil {
		return errorResult("Detection failed: " + err.Error())
	}
	return textResult(formatDetection(res))
}

func handleLimits(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Limits == nil {
		return textResult("Rate limiting is not configured.")
	}
	return textResult(formatLimits(s.deps.Limits.Status(ctx)))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.deps.Cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleKeys(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if len(s.deps.Keys) == 0 {
		return textResult("No key pools configured.")
	}
	var b bytes.Buffer
	for i, k := range s.deps.Keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatKeys(k.Provider(), k.Statuses(ctx)))
	}
	return textResult(b.String())
}

func handleUsage(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Usage == nil {
		return textResult("Usage tracking is not configured.")
	}
	rows, err := s.deps.Usage.Summary(ctx)
	if err != nil {
		return errorResult("Error fetching usage: " + err.Error())
	}
	out := formatUsage(rows)
	if s.deps.Budget != nil {
		statuses, err := s.deps.Budget.Status(ctx)
		if err != nil {
			return errorResult("Error fetching budget status: " + err.Error())
		}
		out += "\n" + formatBudgetStatus(statuses)
	}
	return textResult(out)
}

func handleBudget(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Budget == nil {
		return textResult("Budget enforcement is not configured.")
	}
	statuses, err := s.deps.Budget.Status(ctx)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	return textResult(formatBudgetStatus(statuses))
}

func handleSessions(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Sessions == nil {
		return textResult("Session history is not configured.")
	}
	var args sessionsArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	if args.Limit <= 0 {
		args.Limit = s.deps.HistoryLimit
	}
	list, err := s.deps.Sessions.List(ctx, session.ListOptions{Limit: args.Limit, TargetLang: args.TargetLang})
	if err != nil {
		return errorResult("Error fetching sessions: " + err.Error())
	}
	return textResult(formatSessions(list))
}

func handleSessionExport(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Sessions == nil {
		return textResult("Session history is not configured.")
	}
	var args exportArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	if args.SessionID == "" {
		return errorResult("session_id is required")
	}
	if args.Format == "" {
		args.Format = string(export.Text)
	}
	f, err := export.ParseFormat(args.Format)
	if err != nil {
		return errorResult(err.Error())
	}
	sess, err := s.deps.Sessions.Get(ctx, args.SessionID)
	if err != nil {
		return errorResult("Error fetching session: " + err.Error())
	}
	var b bytes.Buffer
	if err := export.Write(&b, sess, f); err != nil {
		return errorResult("Error exporting session: " + err.Error())
	}
	return textResult(b.String())
}
