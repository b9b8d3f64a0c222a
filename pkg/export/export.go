// Package export renders a session as plain text, CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
)

// Format is an export file format.
type Format string

const (
	Text Format = "txt"
	CSV  Format = "csv"
	JSON Format = "json"
)

// ErrUnsupportedFormat is returned for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

const (
	timeLayout = "2006-01-02 15:04:05"
	separator  = "=================================================="
)

// ParseFormat accepts "txt", "text", "csv" and "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "txt", "text":
		return Text, nil
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type for f.
func ContentType(f Format) string {
	switch f {
	case CSV:
		return "text/csv; charset=utf-8"
	case JSON:
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Filename returns a download name derived from the session start time.
func Filename(sess *models.Session, f Format) string {
	return fmt.Sprintf("translation-%s.%s", sess.StartedAt.UTC().Format("20060102-150405"), f)
}

// Write renders sess to w in format f.
func Write(w io.Writer, sess *models.Session, f Format) error {
	switch f {
	case Text:
		return writeText(w, sess)
	case CSV:
		return writeCSV(w, sess)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

func writeText(w io.Writer, sess *models.Session) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Translation Session: %s\n%s\n", sess.StartedAt.UTC().Format(timeLayout), separator)
	for i, e := range sess.Translations {
		if i > 0 {
			fmt.Fprintf(&b, "\n%s\n", separator)
		}
		fmt.Fprintf(&b, "[%d] Original (%s):\n%s\n\nTranslation (%s):\n%s\n",
			i+1, e.SourceLang, e.OriginalText, e.TargetLang, e.TranslatedText)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeCSV(w io.Writer, sess *models.Session) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Index", "Timestamp", "Source Language", "Original Text", "Target Language", "Translation", "Confidence"}); err != nil {
		return err
	}
	for i, e := range sess.Translations {
		conf := "N/A"
		if e.Confidence != nil && *e.Confidence > 0 {
			conf = strconv.FormatFloat(*e.Confidence, 'f', 2, 64)
		}
		rec := []string{
			strconv.Itoa(i + 1),
			e.CreatedAt.UTC().Format(timeLayout),
			e.SourceLang,
			e.OriginalText,
			e.TargetLang,
			e.TranslatedText,
			conf,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
