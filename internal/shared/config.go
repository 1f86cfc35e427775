package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

type Locale struct {
	Lang    string `validate:"required"`
	Country string `validate:"required,len=2"`
}

type Config struct {
	AppEnv         string
	ServiceVersion string
	HTTPAddr       string `validate:"required"`
	MetricsAddr    string
	APIKey         string
	RequestTimeout time.Duration `validate:"gt=0"`

	MaxReviews      int           `validate:"min=1"`
	OutboundTimeout time.Duration `validate:"gt=0"`
	TieBreak        string        `validate:"oneof=ios android"`
	Parallel        bool

	AppleMaxRetries int           `validate:"min=1"`
	AppleBaseDelay  time.Duration `validate:"gte=0"`
	ApplePageDelay  time.Duration `validate:"gte=0"`
	AppleLocale     string        `validate:"required"`

	PlayLocales   []Locale      `validate:"required,min=1,dive"`
	PlayPageDelay time.Duration `validate:"gte=0"`

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration `validate:"gte=0"`

	OTLPEndpoint string
	OTLPInsecure bool

	WarmTargets []Target
	WarmWorkers int `validate:"min=1"`
}

// Target is one apple/play URL pair for the cache warmer.
type Target struct {
	AppleStore string
	GooglePlay string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer env value")
		}
		return def
	}
	c := Config{
		AppEnv:          env("APP_ENV", "prod"),
		ServiceVersion:  env("SERVICE_VERSION", "1.0.0"),
		HTTPAddr:        listenAddr(),
		MetricsAddr:     env("METRICS_ADDR", ""),
		APIKey:          env("API_KEY", ""),
		RequestTimeout:  duration("REQUEST_TIMEOUT", 0),
		MaxReviews:      atoi("MAX_REVIEWS", 250),
		OutboundTimeout: duration("OUTBOUND_TIMEOUT", 20*time.Second),
		TieBreak:        strings.ToLower(env("TIE_BREAK", "ios")),
		Parallel:        boolean("SCRAPE_PARALLEL", true),
		AppleMaxRetries: atoi("APPLE_MAX_RETRIES", 5),
		AppleBaseDelay:  duration("APPLE_BASE_DELAY", 10*time.Second),
		ApplePageDelay:  duration("APPLE_PAGE_DELAY", 500*time.Millisecond),
		AppleLocale:     env("APPLE_LOCALE", "en-GB"),
		PlayLocales:     parseLocales(env("PLAY_LOCALES", "zh_TW:tw,en:tw")),
		PlayPageDelay:   duration("PLAY_PAGE_DELAY", 500*time.Millisecond),
		RedisAddr:       env("REDIS_ADDR", ""),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         atoi("REDIS_DB", 0),
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 0)) * time.Second,
		OTLPEndpoint:    env("OTLP_ENDPOINT", ""),
		OTLPInsecure:    boolean("OTLP_INSECURE", false),
		WarmTargets:     parseTargets(env("WARM_TARGETS", "")),
		WarmWorkers:     atoi("WARM_WORKERS", 4),
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = c.ScrapeBudget()
	}
	if c.APIKey == "" {
		log.Warn().Msg("API_KEY is empty; /scrape is open to everyone")
	}
	return c
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Store paging constants the budget is computed from; they mirror the client
// defaults.
const (
	applePageSize  = 20
	playPageSize   = 199
	playMaxRetries = 4
	playBackoffSum = 2100 * time.Millisecond // 200+400+800ms plus 50% jitter
	budgetMargin   = 30 * time.Second
)

// ScrapeBudget is the longest a scrape can legitimately take: every page of
// every platform exhausting its retries with the longest waits and timeouts.
// Platforms add up when they run sequentially.
func (c Config) ScrapeBudget() time.Duration {
	ceilDiv := func(a, b int) int { return (a + b - 1) / b }

	r := time.Duration(c.AppleMaxRetries)
	applePage := (r-1)*r/2*c.AppleBaseDelay + r*c.OutboundTimeout
	applePages := time.Duration(ceilDiv(c.MaxReviews, applePageSize))
	apple := applePages*applePage + (applePages-1)*c.ApplePageDelay

	playPage := playMaxRetries*c.OutboundTimeout + playBackoffSum
	playPages := time.Duration(len(c.PlayLocales) * ceilDiv(c.MaxReviews, playPageSize))
	play := playPages*playPage + playPages*c.PlayPageDelay

	if c.Parallel {
		return max(apple, play) + budgetMargin
	}
	return apple + play + budgetMargin
}

// CacheEnabled reports whether scrape results should go through Redis.
func (c Config) CacheEnabled() bool {
	return c.RedisAddr != "" && c.CacheTTL > 0
}

// PORT wins over HTTP_ADDR so the service runs unchanged on PaaS hosts.
func listenAddr() string {
	if p := os.Getenv("PORT"); p != "" {
		return ":" + p
	}
	return env("HTTP_ADDR", ":8000")
}

// parseLocales reads "lang:country,lang:country".
func parseLocales(s string) []Locale {
	var out []Locale
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		l, c, _ := strings.Cut(part, ":")
		out = append(out, Locale{Lang: strings.TrimSpace(l), Country: strings.ToLower(strings.TrimSpace(c))})
	}
	return out
}

// parseTargets reads "appleURL|playURL;appleURL|playURL". Either side may be empty.
func parseTargets(s string) []Target {
	var out []Target
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		a, p, _ := strings.Cut(part, "|")
		out = append(out, Target{AppleStore: strings.TrimSpace(a), GooglePlay: strings.TrimSpace(p)})
	}
	return out
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func duration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring invalid duration env value")
	}
	return def
}

func boolean(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
