package main

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/taralshah99/email-dossier-cli/internal/analysis"
	"github.com/taralshah99/email-dossier-cli/internal/auth"
	"github.com/taralshah99/email-dossier-cli/internal/metadata"
	"github.com/taralshah99/email-dossier-cli/internal/pipeline"
	"github.com/taralshah99/email-dossier-cli/internal/store"
	anthropicpkg "github.com/taralshah99/email-dossier-cli/pkg/anthropic"
	"github.com/taralshah99/email-dossier-cli/pkg/gmail"
	"github.com/taralshah99/email-dossier-cli/pkg/perplexity"
	gapi "google.golang.org/api/gmail/v1"
)

// pipelineEnv holds the initialized store, auth manager, and the factory
// for per-session coordinators, shared by the run/serve commands.
type pipelineEnv struct {
	Store store.Store
	Auth  *auth.Manager
	Gate  *pipeline.SessionGate
	Gmail gmail.Client

	// NewCoordinator builds a coordinator sharing the env's services.
	// Each browser session (or one-shot run) gets its own.
	NewCoordinator func() *pipeline.Coordinator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for the given mode, opens the store, and
// wires the Gmail, Anthropic, and Perplexity clients into the pipeline
// services. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	mgr := initAuthManager()

	// Gmail needs an authorized HTTP client, which only exists after
	// login. The lazy wrapper defers construction to first use so serve
	// can start before the user has authenticated.
	gmailClient := &lazyGmailClient{
		mgr: mgr,
		opts: []gmail.Option{
			gmail.WithRateLimit(cfg.Gmail.RateLimitPerSec, burstFor(cfg.Gmail.RateLimitPerSec)),
		},
	}

	metaSvc := metadata.NewService(gmailClient,
		metadata.WithMaxResults(cfg.Gmail.MaxResults),
		metadata.WithFetchParallelism(cfg.Gmail.FetchParallelism),
	)

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)

	analyzer := analysis.NewAnalyzer(anthropicClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	writer := analysis.NewDossierWriter(anthropicClient, perplexityClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)

	gate := pipeline.NewSessionGate(authAdapter{svc: mgr},
		time.Duration(cfg.Pipeline.AuthCacheTTLSecs)*time.Second)

	return &pipelineEnv{
		Store: st,
		Auth:  mgr,
		Gate:  gate,
		Gmail: gmailClient,
		NewCoordinator: func() *pipeline.Coordinator {
			return pipeline.NewCoordinator(gate, metaSvc, metaSvc, analyzer, writer)
		},
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

func initAuthManager() *auth.Manager {
	var opts []auth.Option
	if cfg.Auth.SessionMaxAgeHours > 0 {
		opts = append(opts, auth.WithSessionMaxAge(time.Duration(cfg.Auth.SessionMaxAgeHours)*time.Hour))
	}
	return auth.NewManager(cfg.Auth.ClientID, cfg.Auth.ClientSecret, cfg.Auth.RedirectURL, cfg.Auth.TokenFile, opts...)
}

func burstFor(rps float64) int {
	burst := int(rps / 2)
	if burst < 1 {
		burst = 1
	}
	return burst
}

// authAdapter exposes the auth manager through the pipeline's gate
// contract.
type authAdapter struct {
	svc auth.Service
}

func (a authAdapter) Status(ctx context.Context) (pipeline.AuthStatus, error) {
	st, err := a.svc.Status(ctx)
	if err != nil {
		return pipeline.AuthStatus{}, err
	}
	return pipeline.AuthStatus{Authenticated: st.Authenticated, Email: st.Email}, nil
}

// lazyGmailClient builds the real Gmail client on first use, once an
// authorized HTTP client is available.
type lazyGmailClient struct {
	mgr  *auth.Manager
	opts []gmail.Option

	mu   sync.Mutex
	real gmail.Client
}

func (l *lazyGmailClient) client(ctx context.Context) (gmail.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.real != nil {
		return l.real, nil
	}

	httpClient, err := l.mgr.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gmail.NewClient(ctx, httpClient, l.opts...)
	if err != nil {
		return nil, err
	}
	l.real = c
	return c, nil
}

func (l *lazyGmailClient) SearchThreads(ctx context.Context, query string, maxResults int64) ([]*gapi.Thread, error) {
	c, err := l.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.SearchThreads(ctx, query, maxResults)
}

func (l *lazyGmailClient) GetThread(ctx context.Context, threadID string) (*gapi.Thread, error) {
	c, err := l.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetThread(ctx, threadID)
}

func (l *lazyGmailClient) Profile(ctx context.Context) (*gapi.Profile, error) {
	c, err := l.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.Profile(ctx)
}
