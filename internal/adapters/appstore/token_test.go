package appstore_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"slices"
	"testing"
	"time"

	"review_scraper/internal/adapters/appstore"
	"review_scraper/internal/domain"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		want   string
		wantOk bool
	}{
		{
			name:   "meta tag in head",
			html:   `<html><head><meta name="web-experience-app/config/environment" content="%7B%22MEDIA_API%22%3A%7B%22token%22%3A%22test-token-123%22%7D%7D"></head></html>`,
			want:   "test-token-123",
			wantOk: true,
		},
		{
			name:   "meta tag without token",
			html:   `<meta name="web-experience-app/config/environment" content="%7B%22appVersion%22%3A1%7D">`,
			wantOk: false,
		},
		{
			name:   "different meta name",
			html:   `<meta name="different-config" content="%7B%22token%22%3A%22test%22%7D">`,
			wantOk: false,
		},
		{
			name:   "no meta at all",
			html:   `<html><head><title>Test</title></head><body>No token here</body></html>`,
			wantOk: false,
		},
		{
			name:   "empty",
			html:   "",
			wantOk: false,
		},
		{
			name: "token on second line",
			html: `<html>
<meta name="web-experience-app/config/environment" content="%7B%22MEDIA_API%22%3A%7B%22token%22%3A%22abc.def.ghi%22%7D%7D">
<body>Content</body>`,
			want:   "abc.def.ghi",
			wantOk: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := appstore.ExtractBearerToken([]byte(tt.html))
			if got != tt.want || ok != tt.wantOk {
				t.Fatalf("ExtractBearerToken() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}

func TestAcquireToken(t *testing.T) {
	tok := signedToken(t, time.Now().Add(time.Hour))
	fs := newFakeStore(t, tok, nil)
	cl := newClient(fs, &countingThrottle{}, &recordingSleeper{}, 250)

	sf, _ := appstore.ParseURL(testStoreURL)
	got, err := cl.AcquireToken(context.Background(), sf)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "bearer "+tok {
		t.Fatalf("unexpected token %q", got)
	}
	if len(fs.userAgents) != 1 || fs.userAgents[0] == "" || fs.userAgents[0] == "Go-http-client/1.1" {
		t.Fatalf("expected a browser user agent, got %v", fs.userAgents)
	}
}

func TestAcquireToken_Failures(t *testing.T) {
	sf, _ := appstore.ParseURL(testStoreURL)

	t.Run("non-200 landing", func(t *testing.T) {
		fs := newFakeStore(t, signedToken(t, time.Now().Add(time.Hour)), nil)
		fs.landingCode = http.StatusForbidden
		cl := newClient(fs, &countingThrottle{}, &recordingSleeper{}, 250)

		_, err := cl.AcquireToken(context.Background(), sf)
		if !errors.Is(err, domain.ErrAuthentication) {
			t.Fatalf("expected ErrAuthentication, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		fs := newFakeStore(t, signedToken(t, time.Now().Add(-time.Hour)), nil)
		cl := newClient(fs, &countingThrottle{}, &recordingSleeper{}, 250)

		_, err := cl.AcquireToken(context.Background(), sf)
		if !errors.Is(err, domain.ErrAuthentication) {
			t.Fatalf("expected ErrAuthentication, got %v", err)
		}
	})

	t.Run("opaque token is accepted", func(t *testing.T) {
		fs := newFakeStore(t, "not-a-jwt", nil)
		cl := newClient(fs, &countingThrottle{}, &recordingSleeper{}, 250)

		got, err := cl.AcquireToken(context.Background(), sf)
		if err != nil || got != "bearer not-a-jwt" {
			t.Fatalf("got (%q, %v)", got, err)
		}
	})
}

func TestPickUserAgent_DeterministicForSeed(t *testing.T) {
	a := rand.New(rand.NewPCG(7, 7))
	b := rand.New(rand.NewPCG(7, 7))
	var seqA, seqB []string
	for range 10 {
		seqA = append(seqA, appstore.PickUserAgent(a))
		seqB = append(seqB, appstore.PickUserAgent(b))
	}
	if !slices.Equal(seqA, seqB) {
		t.Fatalf("same seed produced different sequences")
	}
}
