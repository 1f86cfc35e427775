package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "review_scraper/internal/adapters/http_server"
	"review_scraper/internal/domain"
)

type fakeScraper struct {
	out  []domain.Review
	err  error
	got  []domain.ScrapeRequest
	wait time.Duration
	// partialOnDeadline returns out when the context deadline passes, as the
	// aggregator does
	partialOnDeadline bool
}

func (f *fakeScraper) Aggregate(ctx context.Context, req domain.ScrapeRequest) ([]domain.Review, error) {
	f.got = append(f.got, req)
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			if f.partialOnDeadline && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return f.out, nil
			}
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

func newServer(s httpserver.Scraper, key string, timeout time.Duration) http.Handler {
	srv := httpserver.New(timeout)
	srv.MountHandlers(&httpserver.Handlers{S: s, Version: "9.9.9", APIKey: key})
	return srv.Mux()
}

func do(h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRootAndHealth(t *testing.T) {
	h := newServer(&fakeScraper{}, "", time.Minute)

	rec := do(h, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var root map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &root))
	assert.Equal(t, "ok", root["status"])
	assert.Equal(t, "Scraper API is running", root["message"])
	assert.Equal(t, "9.9.9", root["version"])
	assert.Contains(t, root["endpoints"], "scrape")

	rec = do(h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","version":"9.9.9"}`, rec.Body.String())
}

func TestScrape_Success(t *testing.T) {
	fs := &fakeScraper{out: []domain.Review{{
		Date: "2024-03-01", Username: "u", ReviewText: "hi", Rating: 5,
		Platform: domain.PlatformIOS, Language: domain.LanguageEnglish, SourceID: "secret",
	}}}
	h := newServer(fs, "", time.Minute)

	rec := do(h, http.MethodPost, "/scrape", `{"appleStore":"https://apps.apple.com/tw/app/x/id1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[{"date":"2024-03-01","username":"u","review":"hi","rating":5,"platform":"iOS","developerResponse":"","language":"en"}]}`,
		rec.Body.String())
	_, err := uuid.Parse(rec.Header().Get("X-Scrape-ID"))
	assert.NoError(t, err)
	require.Len(t, fs.got, 1)
	assert.Equal(t, "https://apps.apple.com/tw/app/x/id1", fs.got[0].AppleStore)
	assert.Empty(t, fs.got[0].GooglePlay)
}

func TestScrape_EmptyDataIsArray(t *testing.T) {
	h := newServer(&fakeScraper{}, "", time.Minute)

	rec := do(h, http.MethodPost, "/scrape", `{}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}

func TestScrape_MalformedBody(t *testing.T) {
	fs := &fakeScraper{}
	h := newServer(fs, "", time.Minute)

	rec := do(h, http.MethodPost, "/scrape", `{"appleStore":`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var d map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.NotEmpty(t, d["detail"])
	assert.Empty(t, fs.got)
}

func TestScrape_UnhandledFailure(t *testing.T) {
	h := newServer(&fakeScraper{err: errors.New("boom")}, "", time.Minute)

	rec := do(h, http.MethodPost, "/scrape", `{"googlePlay":"x"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"boom"}`, rec.Body.String())
}

func TestScrape_APIKey(t *testing.T) {
	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{name: "missing", auth: "", status: http.StatusForbidden},
		{name: "wrong", auth: "nope", status: http.StatusForbidden},
		{name: "raw key", auth: "s3cret", status: http.StatusOK},
		{name: "bearer key", auth: "Bearer s3cret", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newServer(&fakeScraper{}, "s3cret", time.Minute)
			hdr := map[string]string{}
			if tt.auth != "" {
				hdr["Authorization"] = tt.auth
			}
			rec := do(h, http.MethodPost, "/scrape", `{}`, hdr)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusForbidden {
				assert.JSONEq(t, `{"detail":"Could not validate credentials"}`, rec.Body.String())
			}
		})
	}
}

func TestScrape_NoKeyConfiguredSkipsAuth(t *testing.T) {
	h := newServer(&fakeScraper{}, "", time.Minute)
	rec := do(h, http.MethodPost, "/scrape", `{}`, map[string]string{"Authorization": "anything"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newServer(&fakeScraper{}, "s3cret", time.Minute)

	rec := do(h, http.MethodOptions, "/scrape", "", map[string]string{
		"Origin":                         "https://dashboard.example",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "authorization,content-type",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "authorization,content-type", rec.Header().Get("Access-Control-Allow-Headers"))

	rec = do(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestScrape_DeadlineStillAnswers(t *testing.T) {
	partial := []domain.Review{{Date: "2024-03-01", Platform: domain.PlatformAndroid}}
	fs := &fakeScraper{wait: 5 * time.Second, out: partial, partialOnDeadline: true}
	h := newServer(fs, "", 50*time.Millisecond)

	start := time.Now()
	rec := do(h, http.MethodPost, "/scrape", `{"appleStore":"x","googlePlay":"y"}`, nil)

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool            `json:"success"`
		Data    []domain.Review `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 1)
}
