package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	stringutil "stampgate/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	// ServiceJWTSecret authenticates the issuance service. Empty disables the check.
	ServiceJWTSecret string
	ServiceJWTIssuer string
	CORSOrigins      []string
}

type GitHub struct {
	ClientID     string
	ClientSecret string
	OAuthURL     string
	APIURL       string
}

type Facebook struct {
	AppID     string
	AppSecret string
	GraphURL  string
}

type Staking struct {
	URL string
}

// External holds the resilience settings shared by every outbound adapter.
type External struct {
	Timeout         time.Duration
	RatePerSecond   float64 // 0 disables pacing
	Burst           int
	BreakerFailures int // 0 disables the circuit breaker
	BreakerCooldown time.Duration
}

// TierThresholds are decimal token amounts for the bronze, silver and gold tiers.
type TierThresholds struct {
	Bronze string `yaml:"bronze"`
	Silver string `yaml:"silver"`
	Gold   string `yaml:"gold"`
}

// Rats parses the three thresholds.
func (t TierThresholds) Rats() (bronze, silver, gold *big.Rat, err error) {
	parse := func(name, v string) (*big.Rat, error) {
		r, ok := new(big.Rat).SetString(strings.TrimSpace(v))
		if !ok {
			return nil, fmt.Errorf("%s threshold %q is not a decimal", name, v)
		}
		if r.Sign() < 0 {
			return nil, fmt.Errorf("%s threshold %q is negative", name, v)
		}
		return r, nil
	}
	if bronze, err = parse("bronze", t.Bronze); err != nil {
		return nil, nil, nil, err
	}
	if silver, err = parse("silver", t.Silver); err != nil {
		return nil, nil, nil, err
	}
	if gold, err = parse("gold", t.Gold); err != nil {
		return nil, nil, nil, err
	}
	return bronze, silver, gold, nil
}

// Thresholds are the per-condition limits. They can come from a YAML file and
// are then overridden by environment variables.
type Thresholds struct {
	SelfStaking      TierThresholds `yaml:"self_staking"`
	CommunityStaking TierThresholds `yaml:"community_staking"`
	MinFriends       int            `yaml:"min_friends"`
	MinCommits       int            `yaml:"min_commits"`
}

// Config is built once at startup and passed down by value.
type Config struct {
	Server         Server
	GitHub         GitHub
	Facebook       Facebook
	Staking        Staking
	External       External
	Thresholds     Thresholds
	MaxConcurrency int
}

// maxMinCommits is GitHub's per_page ceiling. The commits listing fetches
// MinCommits entries in one page.
const maxMinCommits = 100

// DefaultThresholds returns the stock limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SelfStaking:      TierThresholds{Bronze: "1", Silver: "5", Gold: "50"},
		CommunityStaking: TierThresholds{Bronze: "10", Silver: "100", Gold: "500"},
		MinFriends:       100,
		MinCommits:       5,
	}
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load builds a Config using getenv, reading the thresholds file named by
// STAMPGATE_THRESHOLDS_FILE when set.
func Load(getenv func(string) string) (Config, error) {
	env := envReader{getenv: getenv}

	cfg := Config{
		Server: Server{
			Addr:             env.str("STAMPGATE_ADDR", ":8080"),
			LogLevel:         env.str("STAMPGATE_LOG_LEVEL", "info"),
			ShutdownTimeout:  env.duration("STAMPGATE_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:   env.duration("STAMPGATE_REQUEST_TIMEOUT", 30*time.Second),
			ServiceJWTSecret: env.str("STAMPGATE_SERVICE_JWT_SECRET", ""),
			ServiceJWTIssuer: env.str("STAMPGATE_SERVICE_JWT_ISSUER", ""),
			CORSOrigins:      env.list("STAMPGATE_CORS_ORIGINS"),
		},
		GitHub: GitHub{
			ClientID:     env.str("GITHUB_CLIENT_ID", ""),
			ClientSecret: env.str("GITHUB_CLIENT_SECRET", ""),
			OAuthURL:     env.str("GITHUB_OAUTH_URL", "https://github.com"),
			APIURL:       env.str("GITHUB_API_URL", "https://api.github.com"),
		},
		Facebook: Facebook{
			AppID:     env.str("FACEBOOK_APP_ID", ""),
			AppSecret: env.str("FACEBOOK_APP_SECRET", ""),
			GraphURL:  env.str("FACEBOOK_GRAPH_URL", "https://graph.facebook.com"),
		},
		Staking: Staking{
			URL: env.str("STAKING_SERVICE_URL", "http://localhost:8090"),
		},
		External: External{
			Timeout:         env.duration("EXTERNAL_TIMEOUT", 10*time.Second),
			RatePerSecond:   env.float("EXTERNAL_RATE_PER_SECOND", 20),
			Burst:           env.int("EXTERNAL_BURST", 10),
			BreakerFailures: env.int("EXTERNAL_BREAKER_FAILURES", 5),
			BreakerCooldown: env.duration("EXTERNAL_BREAKER_COOLDOWN", 30*time.Second),
		},
		Thresholds:     DefaultThresholds(),
		MaxConcurrency: env.int("STAMPGATE_MAX_CONCURRENCY", 8),
	}

	if path := getenv("STAMPGATE_THRESHOLDS_FILE"); path != "" {
		if err := cfg.Thresholds.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.Thresholds.applyEnv(&env)

	if len(env.errs) > 0 {
		return Config{}, errors.Join(env.errs...)
	}
	return cfg, nil
}

// loadFile overlays values present in a YAML file onto t.
func (t *Thresholds) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read thresholds file: %w", err)
	}
	var file Thresholds
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse thresholds file: %w", err)
	}
	t.SelfStaking.overlay(file.SelfStaking)
	t.CommunityStaking.overlay(file.CommunityStaking)
	if file.MinFriends != 0 {
		t.MinFriends = file.MinFriends
	}
	if file.MinCommits != 0 {
		t.MinCommits = file.MinCommits
	}
	return nil
}

func (t *TierThresholds) overlay(o TierThresholds) {
	if o.Bronze != "" {
		t.Bronze = o.Bronze
	}
	if o.Silver != "" {
		t.Silver = o.Silver
	}
	if o.Gold != "" {
		t.Gold = o.Gold
	}
}

func (t *Thresholds) applyEnv(env *envReader) {
	t.SelfStaking.overlay(TierThresholds{
		Bronze: env.str("SELF_STAKING_BRONZE", ""),
		Silver: env.str("SELF_STAKING_SILVER", ""),
		Gold:   env.str("SELF_STAKING_GOLD", ""),
	})
	t.CommunityStaking.overlay(TierThresholds{
		Bronze: env.str("COMMUNITY_STAKING_BRONZE", ""),
		Silver: env.str("COMMUNITY_STAKING_SILVER", ""),
		Gold:   env.str("COMMUNITY_STAKING_GOLD", ""),
	})
	t.MinFriends = env.int("MIN_FRIENDS", t.MinFriends)
	t.MinCommits = env.int("MIN_COMMITS", t.MinCommits)
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	var errs []error
	if _, _, _, err := c.Thresholds.SelfStaking.Rats(); err != nil {
		errs = append(errs, fmt.Errorf("self staking: %w", err))
	}
	if _, _, _, err := c.Thresholds.CommunityStaking.Rats(); err != nil {
		errs = append(errs, fmt.Errorf("community staking: %w", err))
	}
	if c.Thresholds.MinFriends <= 0 {
		errs = append(errs, errors.New("min friends must be positive"))
	}
	if c.Thresholds.MinCommits <= 0 {
		errs = append(errs, errors.New("min commits must be positive"))
	}
	if c.Thresholds.MinCommits > maxMinCommits {
		errs = append(errs, fmt.Errorf("min commits must not exceed %d", maxMinCommits))
	}
	if c.External.Timeout <= 0 {
		errs = append(errs, errors.New("external timeout must be positive"))
	}
	if c.External.RatePerSecond < 0 {
		errs = append(errs, errors.New("external rate must not be negative"))
	}
	return errors.Join(errs...)
}

// envReader collects parse errors instead of silently ignoring bad values.
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) list(key string) []string {
	return stringutil.SplitList(e.getenv(key))
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}
