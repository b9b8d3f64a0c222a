package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{429, RateLimited},
		{401, Unauthorized},
		{403, Unauthorized},
		{400, BadInput},
		{413, BadInput},
		{504, Timeout},
		{500, Unknown},
		{502, Unknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			e := FromStatus(tt.status, "")
			assert.Equal(t, tt.want, e.Kind)
			assert.Equal(t, tt.status, StatusOf(e))
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.Equal(t, Timeout, KindOf(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.Equal(t, Unknown, KindOf(errors.New("connection reset")))

	wrapped := fmt.Errorf("translate: %w", FromStatus(429, "slow down"))
	assert.Equal(t, RateLimited, KindOf(wrapped))
	assert.Equal(t, 429, StatusOf(wrapped))
	assert.True(t, Retryable(wrapped))
	assert.False(t, Retryable(FromStatus(401, "")))
}

func TestStatusOfImpliedByKind(t *testing.T) {
	assert.Equal(t, 504, StatusOf(context.DeadlineExceeded))
	assert.Equal(t, 500, StatusOf(errors.New("boom")))
	assert.Equal(t, 400, StatusOf(Errorf(BadInput, "empty")))
	assert.Equal(t, 0, StatusOf(nil))
}

func TestCheckBatch(t *testing.T) {
	items := []models.TranslateItem{{Text: "a"}, {Text: "b"}}
	assert.NoError(t, CheckBatch(items, make([]models.TranslateResult, 2)))
	err := CheckBatch(items, make([]models.TranslateResult, 1))
	assert.Equal(t, Unknown, KindOf(err))
}

func TestValidateLanguage(t *testing.T) {
	for _, ok := range []string{"en", "tr", "pt-BR", "zh-Hant", "auto"} {
		assert.NoError(t, ValidateLanguage(ok), ok)
	}
	for _, bad := range []string{"", "not a language", "12345"} {
		err := ValidateLanguage(bad)
		assert.Equal(t, BadInput, KindOf(err), bad)
	}
}

func TestValidatePair(t *testing.T) {
	assert.NoError(t, ValidatePair("auto", "tr"))
	assert.NoError(t, ValidatePair("en", "de"))
	assert.Equal(t, BadInput, KindOf(ValidatePair("en", "auto")))
	assert.Equal(t, BadInput, KindOf(ValidatePair("en", "")))
	assert.Equal(t, BadInput, KindOf(ValidatePair("??", "tr")))
}

func TestGroupByPair(t *testing.T) {
	items := []models.TranslateItem{
		{Text: "a", SourceLang: "en", TargetLang: "tr"},
		{Text: "b", SourceLang: "en", TargetLang: "de"},
		{Text: "c", SourceLang: "en", TargetLang: "tr"},
	}
	order, groups := GroupByPair(items)
	assert.Equal(t, []string{"en>tr", "en>de"}, order)
	assert.Equal(t, []int{0, 2}, groups["en>tr"])
	assert.Equal(t, []int{1}, groups["en>de"])
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	h := http.Header{}
	h.Set("X-Key", "secret")
	require.NoError(t, PostJSON(context.Background(), srv.Client(), srv.URL, h, map[string]string{"q": "x"}, &out))
	assert.True(t, out.OK)
}

func TestPostJSONRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Too many requests"}`))
	}))
	defer srv.Close()

	var out any
	err := PostJSON(context.Background(), srv.Client(), srv.URL, nil, struct{}{}, &out)
	require.Error(t, err)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, RateLimited, pe.Kind)
	assert.Equal(t, 429, pe.StatusCode)
	assert.Equal(t, "retry after 30 seconds: Too many requests", pe.Message)
}

func TestPostJSONNestedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401000,"message":"invalid subscription key"}}`))
	}))
	defer srv.Close()

	var out any
	err := PostJSON(context.Background(), srv.Client(), srv.URL, nil, struct{}{}, &out)
	assert.Equal(t, Unauthorized, KindOf(err))
	assert.Contains(t, err.Error(), "invalid subscription key")
}

func TestPostJSONTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var out any
	err := PostJSON(ctx, srv.Client(), srv.URL, nil, struct{}{}, &out)
	assert.Equal(t, Timeout, KindOf(err))
}
