package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	jwttoken "stampgate/internal/jwt_token"
	"stampgate/internal/platform/config"
	"stampgate/internal/platform/health"
	httptransport "stampgate/internal/transport/http"
	fbclient "stampgate/internal/verification/clients/facebook"
	ghclient "stampgate/internal/verification/clients/github"
	stclient "stampgate/internal/verification/clients/staking"
	"stampgate/internal/verification/dispatcher"
	"stampgate/internal/verification/handler"
	"stampgate/internal/verification/metrics"
	"stampgate/internal/verification/providers"
	"stampgate/internal/verification/providers/adapters"
	fbprovider "stampgate/internal/verification/providers/facebook"
	ghprovider "stampgate/internal/verification/providers/github"
	stprovider "stampgate/internal/verification/providers/staking"
	"stampgate/internal/verification/service"
	"stampgate/internal/verification/tracer"
	"stampgate/pkg/platform/circuit"
	"stampgate/pkg/platform/middleware/request"
)

// app is the fully wired server.
type app struct {
	router   http.Handler
	registry *providers.Registry
}

// adapterFactory builds one outbound adapter per external system, each with
// its own rate limiter and circuit breaker.
type adapterFactory struct {
	cfg     config.External
	client  adapters.HTTPDoer
	metrics *metrics.Metrics
	health  *health.Handler
	logger  *slog.Logger
}

// build returns an adapter for system. name distinguishes several endpoints of
// one system in breaker names and readiness checks. classify is nil for
// systems whose failures are fully described by the status code.
func (f adapterFactory) build(name, system, baseURL string, classify adapters.ErrorClassifier) *adapters.HTTPAdapter {
	adapterCfg := adapters.HTTPAdapterConfig{
		System:        system,
		BaseURL:       baseURL,
		Timeout:       f.cfg.Timeout,
		HTTPClient:    f.client,
		Observer:      f.metrics,
		Logger:        f.logger,
		ClassifyError: classify,
	}
	if f.cfg.RatePerSecond > 0 {
		burst := max(f.cfg.Burst, 1)
		adapterCfg.Limiter = rate.NewLimiter(rate.Limit(f.cfg.RatePerSecond), burst)
	}
	if f.cfg.BreakerFailures > 0 {
		b := circuit.New(name,
			circuit.WithFailureThreshold(f.cfg.BreakerFailures),
			circuit.WithCooldown(f.cfg.BreakerCooldown),
		)
		adapterCfg.Breaker = b
		f.health.RegisterCheck("upstream_"+name, health.BreakerCheck(b))
	}
	return adapters.NewHTTPAdapter(adapterCfg)
}

// buildProviders registers every condition type with its thresholds.
func buildProviders(cfg config.Config, f adapterFactory, logger *slog.Logger) ([]providers.Provider, error) {
	oauth := f.build("github_oauth", ghclient.System, cfg.GitHub.OAuthURL, nil)
	api := f.build("github_api", ghclient.System, cfg.GitHub.APIURL, nil)
	github := ghclient.New(oauth, api, cfg.GitHub.ClientID, cfg.GitHub.ClientSecret)

	graph := f.build(fbclient.System, fbclient.System, cfg.Facebook.GraphURL, fbclient.ClassifyGraphError)
	facebook := fbclient.New(graph, cfg.Facebook.AppID, cfg.Facebook.AppSecret)
	staking := stclient.New(f.build(stclient.System, stclient.System, cfg.Staking.URL, nil))

	selfBronze, selfSilver, selfGold, err := cfg.Thresholds.SelfStaking.Rats()
	if err != nil {
		return nil, fmt.Errorf("self staking thresholds: %w", err)
	}
	communityBronze, communitySilver, communityGold, err := cfg.Thresholds.CommunityStaking.Rats()
	if err != nil {
		return nil, fmt.Errorf("community staking thresholds: %w", err)
	}
	tiers := append(
		stprovider.Tiers(stclient.PoolSelf, selfBronze, selfSilver, selfGold),
		stprovider.Tiers(stclient.PoolCommunity, communityBronze, communitySilver, communityGold)...,
	)

	fbCfg := fbprovider.Config{MinFriends: cfg.Thresholds.MinFriends}
	all := []providers.Provider{
		ghprovider.NewCommitsProvider(github, ghprovider.Config{MinCommits: cfg.Thresholds.MinCommits}, ghprovider.WithLogger(logger)),
		fbprovider.NewAccountProvider(facebook, fbCfg, fbprovider.WithLogger(logger)),
		fbprovider.NewFriendsProvider(facebook, fbCfg, fbprovider.WithLogger(logger)),
	}
	all = append(all, stprovider.NewProviders(staking, tiers, stprovider.WithLogger(logger))...)
	return all, nil
}

// buildApp wires config into a router. reg receives every metric.
// client may be nil, in which case each adapter builds its own.
func buildApp(cfg config.Config, reg *prometheus.Registry, client adapters.HTTPDoer, logger *slog.Logger) (*app, error) {
	m := metrics.New(reg)
	healthHandler := health.New()
	tr := tracer.NewOTel()

	factory := adapterFactory{
		cfg:     cfg.External,
		client:  client,
		metrics: m,
		health:  healthHandler,
		logger:  logger,
	}
	all, err := buildProviders(cfg, factory, logger)
	if err != nil {
		return nil, err
	}
	registry, err := providers.NewRegistry(all...)
	if err != nil {
		return nil, err
	}
	healthHandler.RegisterCheck("registry", func() error {
		if len(registry.Types()) == 0 {
			return fmt.Errorf("no providers registered")
		}
		return nil
	})

	d := dispatcher.New(registry,
		dispatcher.WithLogger(logger),
		dispatcher.WithMetrics(m),
		dispatcher.WithTracer(tr),
		dispatcher.WithMaxConcurrency(cfg.MaxConcurrency),
	)
	svc := service.New(d,
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithTracer(tr),
	)

	routerCfg := httptransport.RouterConfig{
		Verification:   handler.New(svc, registry, logger),
		Health:         healthHandler,
		Gatherer:       reg,
		HTTPMetrics:    request.NewMetrics(reg),
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	}
	if cfg.Server.ServiceJWTSecret != "" {
		routerCfg.TokenValidator = jwttoken.NewJWTService(cfg.Server.ServiceJWTSecret, cfg.Server.ServiceJWTIssuer, 0)
	} else {
		logger.Warn("service token check disabled: STAMPGATE_SERVICE_JWT_SECRET is empty")
	}

	return &app{router: httptransport.NewRouter(routerCfg), registry: registry}, nil
}
