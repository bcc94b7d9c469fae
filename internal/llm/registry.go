package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/thinkdifferentdot/maybe/internal/common"
	"github.com/thinkdifferentdot/maybe/internal/config"
)

// Credential environment variables. A non-empty variable wins over the stored setting.
const (
	EnvOpenAIKey    = "OPENAI_ACCESS_TOKEN"
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
)

// providerOrder is the declaration order used when no provider is preferred.
var providerOrder = []string{config.ProviderOpenAI, config.ProviderGemini, config.ProviderAnthropic}

// Registry builds the configured providers and hands them out by name.
type Registry struct {
	getenv     func(string) string
	httpClient *http.Client
	usage      UsageRecorder
	logger     *slog.Logger
	providers  map[string]Provider
	limiters   map[string]*rateLimiter
	gemini     geminiBackend
	settings   config.Settings
	mu         sync.Mutex
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithGetenv replaces os.Getenv for credential lookup.
func WithGetenv(getenv func(string) string) RegistryOption {
	return func(r *Registry) { r.getenv = getenv }
}

// WithHTTPClient sets the client used by the HTTP-based adapters.
func WithHTTPClient(client *http.Client) RegistryOption {
	return func(r *Registry) { r.httpClient = client }
}

// WithUsageRecorder records every provider call.
func WithUsageRecorder(usage UsageRecorder) RegistryOption {
	return func(r *Registry) { r.usage = usage }
}

// WithLogger sets the logger handed to adapters.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

func withGeminiBackend(backend geminiBackend) RegistryOption {
	return func(r *Registry) { r.gemini = backend }
}

// NewRegistry creates a registry over settings.
func NewRegistry(settings config.Settings, opts ...RegistryOption) *Registry {
	r := &Registry{
		getenv:    os.Getenv,
		settings:  settings,
		providers: make(map[string]Provider),
		limiters:  make(map[string]*rateLimiter),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = newHTTPClient(settings.LLM.Timeout)
	}
	r.logger = common.LoggerOrDefault(r.logger)
	return r
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// APIKey returns the credential for a provider, preferring the environment.
func (r *Registry) APIKey(name string) string {
	var env, stored string
	switch name {
	case config.ProviderOpenAI:
		env, stored = EnvOpenAIKey, r.settings.LLM.OpenAI.APIKey
	case config.ProviderGemini:
		env, stored = EnvGeminiKey, r.settings.LLM.Gemini.APIKey
	case config.ProviderAnthropic:
		env, stored = EnvAnthropicKey, r.settings.LLM.Anthropic.APIKey
	default:
		return ""
	}
	if v := strings.TrimSpace(r.getenv(env)); v != "" {
		return v
	}
	return strings.TrimSpace(stored)
}

// Get returns the named provider. It fails with ErrProviderNotFound for an
// unknown name and ErrProviderNotEnabled when the provider has no credential.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}

	if !slices.Contains(providerOrder, name) {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	key := r.APIKey(name)
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotEnabled, name)
	}

	limiter := newRateLimiter(r.settings.LLM.RateLimit)
	opts := gatewayOptions{
		usage:   r.usage,
		limiter: limiter,
		logger:  r.logger,
		policy:  r.settings.Categorization,
	}

	var (
		p   *gateway
		err error
	)
	switch name {
	case config.ProviderOpenAI:
		p, err = newOpenAIProvider(key, r.settings.LLM, r.httpClient, opts)
	case config.ProviderAnthropic:
		p, err = newAnthropicProvider(key, r.settings.LLM, r.httpClient, opts)
	case config.ProviderGemini:
		if r.gemini != nil {
			p = newGeminiProviderWithBackend(r.gemini, r.settings.LLM, opts)
		} else {
			p, err = newGeminiProvider(key, r.settings.LLM, opts)
		}
	}
	if err != nil {
		limiter.Close()
		return nil, err
	}

	r.providers[name] = p
	r.limiters[name] = limiter
	return p, nil
}

// List returns every configured provider, the preferred one first and the
// rest in declaration order. Providers without credentials are omitted.
func (r *Registry) List() []Provider {
	order := make([]string, 0, len(providerOrder))
	preferred := r.settings.LLM.PreferredProvider
	for _, n := range providerOrder {
		if n == preferred {
			order = append(order, n)
		}
	}
	for _, n := range providerOrder {
		if n != preferred {
			order = append(order, n)
		}
	}

	var providers []Provider
	for _, name := range order {
		if r.APIKey(name) == "" {
			continue
		}
		p, err := r.Get(name)
		if err != nil {
			r.logger.Warn("Skipping LLM provider", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}
	return providers
}

// Preferred returns the first provider of List.
func (r *Registry) Preferred() (Provider, error) {
	providers := r.List()
	if len(providers) == 0 {
		return nil, common.ErrNoProvider
	}
	return providers[0], nil
}

// Close releases the rate limiters of the providers handed out so far.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, l := range r.limiters {
		l.Close()
		delete(r.limiters, name)
		delete(r.providers, name)
	}
}
