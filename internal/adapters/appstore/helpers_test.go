package appstore_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"review_scraper/internal/adapters/appstore"
	"review_scraper/internal/domain"
)

const testStoreURL = "https://apps.apple.com/tw/app/some-app/id123456"

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func landingHTML(token string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head>
<meta name="web-experience-app/config/environment" content="%%7B%%22MEDIA_API%%22%%3A%%7B%%22token%%22%%3A%%22%s%%22%%7D%%7D">
</head><body></body></html>`, token)
}

type apiItem struct {
	ID   string
	Date string
	Text string
	Resp string
}

func pageJSON(items []apiItem, next string) string {
	data := make([]map[string]any, 0, len(items))
	for _, it := range items {
		attrs := map[string]any{
			"date":     it.Date,
			"review":   it.Text,
			"rating":   4,
			"userName": "user-" + it.ID,
			"title":    "t",
		}
		if it.Resp != "" {
			attrs["developerResponse"] = map[string]any{"id": 1, "body": it.Resp}
		}
		data = append(data, map[string]any{"id": it.ID, "type": "user-reviews", "attributes": attrs})
	}
	body := map[string]any{"data": data}
	if next != "" {
		body["next"] = next
	}
	b, _ := json.Marshal(body)
	return string(b)
}

// fakeStore serves the landing page and a reviews API driven by reviews(offset, hit).
type fakeStore struct {
	srv         *httptest.Server
	landingHits int32
	reviewHits  int32
	landingCode int
	token       string
	reviews     func(offset string, hit int32) (int, string)
	mu          sync.Mutex
	authHeaders []string
	userAgents  []string
}

func newFakeStore(t *testing.T, token string, reviews func(offset string, hit int32) (int, string)) *fakeStore {
	t.Helper()
	fs := &fakeStore{landingCode: http.StatusOK, token: token, reviews: reviews}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.userAgents = append(fs.userAgents, r.UserAgent())
		fs.mu.Unlock()
		switch {
		case strings.HasPrefix(r.URL.Path, "/tw/app/"):
			atomic.AddInt32(&fs.landingHits, 1)
			w.WriteHeader(fs.landingCode)
			_, _ = w.Write([]byte(landingHTML(fs.token)))
		case strings.HasPrefix(r.URL.Path, "/v1/catalog/tw/apps/123456/reviews"):
			hit := atomic.AddInt32(&fs.reviewHits, 1)
			fs.mu.Lock()
			fs.authHeaders = append(fs.authHeaders, r.Header.Get("Authorization"))
			fs.mu.Unlock()
			code, body := fs.reviews(r.URL.Query().Get("offset"), hit)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_, _ = w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

type countingThrottle struct{ n int32 }

func (c *countingThrottle) Wait(ctx context.Context) error {
	atomic.AddInt32(&c.n, 1)
	return ctx.Err()
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return true
}

type fixedClassifier struct{}

func (fixedClassifier) Classify(string) domain.Language { return domain.LanguageEnglish }

func newClient(fs *fakeStore, th *countingThrottle, sl *recordingSleeper, maxReviews int) *appstore.Client {
	return appstore.New(appstore.Options{
		LandingBase: fs.srv.URL,
		APIBase:     fs.srv.URL,
		MaxReviews:  maxReviews,
		BaseDelay:   10 * time.Second,
		Throttle:    th,
		Sleep:       sl.Sleep,
		Rand:        rand.New(rand.NewPCG(1, 2)),
		Classifier:  fixedClassifier{},
	})
}
