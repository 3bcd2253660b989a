package cli

import (
	"context"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/acl"
	"github.com/m-mizutani/knowbot/pkg/adapter/graph"
	"github.com/m-mizutani/knowbot/pkg/adapter/nlm"
	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"github.com/m-mizutani/knowbot/pkg/session"
	"github.com/m-mizutani/knowbot/pkg/usecase/chat"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"
)

// config holds configuration values
type config struct {
	// Access control
	aclConfig      string
	aclGCSEndpoint string
	aclWatch       bool
	aclInterval    time.Duration

	// Directory
	graphClientID     string
	graphClientSecret string
	tenantID          string
	graphTimeout      time.Duration
	graphCacheTTL     time.Duration
	graphCacheSize    int
	testMode          bool
	testUserGroups    string

	// Backend
	nlmURL         string
	nlmAPIKey      string
	nlmModel       string
	nlmTimeout     time.Duration
	enableRewrite  bool
	enableFollowup bool

	// Sessions
	sessionTTL        time.Duration
	sessionSize       int
	memoryTTL         time.Duration
	memorySize        int
	memoryMaxMessages int
}

// aclFlags returns flags for the access-control policy
func aclFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "acl-config",
			Usage:       "Path or gs://bucket/object of the ACL policy",
			Value:       "config/acl.yaml",
			Sources:     cli.EnvVars("ACL_CONFIG_PATH"),
			Destination: &cfg.aclConfig,
		},
		&cli.StringFlag{
			Name:        "acl-gcs-endpoint",
			Usage:       "Cloud Storage endpoint override (emulator)",
			Sources:     cli.EnvVars("ACL_GCS_ENDPOINT"),
			Destination: &cfg.aclGCSEndpoint,
		},
	}
}

// reloadFlags returns flags controlling ACL hot reload
func reloadFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "acl-watch",
			Usage:       "Reload the ACL policy when the local file changes",
			Value:       true,
			Sources:     cli.EnvVars("ACL_WATCH"),
			Destination: &cfg.aclWatch,
		},
		&cli.DurationFlag{
			Name:        "acl-reload-interval",
			Usage:       "Reload the ACL policy periodically (0 disables)",
			Sources:     cli.EnvVars("ACL_RELOAD_INTERVAL"),
			Destination: &cfg.aclInterval,
		},
	}
}

// directoryFlags returns flags for Microsoft Graph and the test directory
func directoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "graph-client-id",
			Usage:       "Entra ID app client id for Microsoft Graph",
			Sources:     cli.EnvVars("GRAPH_CLIENT_ID"),
			Destination: &cfg.graphClientID,
		},
		&cli.StringFlag{
			Name:        "graph-client-secret",
			Usage:       "Entra ID app client secret for Microsoft Graph",
			Sources:     cli.EnvVars("GRAPH_CLIENT_SECRET"),
			Destination: &cfg.graphClientSecret,
		},
		&cli.StringFlag{
			Name:        "tenant-id",
			Usage:       "Entra ID tenant id",
			Sources:     cli.EnvVars("MICROSOFT_APP_TENANT_ID"),
			Destination: &cfg.tenantID,
		},
		&cli.DurationFlag{
			Name:        "graph-timeout",
			Usage:       "Timeout of a single Graph request",
			Value:       graph.DefaultTimeout,
			Sources:     cli.EnvVars("GRAPH_TIMEOUT"),
			Destination: &cfg.graphTimeout,
		},
		&cli.DurationFlag{
			Name:        "graph-cache-ttl",
			Usage:       "How long user lookups are cached",
			Value:       graph.DefaultCacheTTL,
			Sources:     cli.EnvVars("GRAPH_CACHE_TTL"),
			Destination: &cfg.graphCacheTTL,
		},
		&cli.IntFlag{
			Name:        "graph-cache-maxsize",
			Usage:       "Maximum number of cached user lookups",
			Value:       graph.DefaultCacheCapacity,
			Sources:     cli.EnvVars("GRAPH_CACHE_MAXSIZE"),
			Destination: &cfg.graphCacheSize,
		},
		&cli.BoolFlag{
			Name:        "test-mode",
			Usage:       "Answer Agent Playground users with a mock identity",
			Sources:     cli.EnvVars("TEST_MODE"),
			Destination: &cfg.testMode,
		},
		&cli.StringFlag{
			Name:        "test-user-groups",
			Usage:       "Comma separated group ids of the mock identity",
			Sources:     cli.EnvVars("TEST_USER_GROUPS"),
			Destination: &cfg.testUserGroups,
		},
	}
}

// backendFlags returns flags for the nlm-proxy backend
func backendFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "nlm-proxy-url",
			Usage:       "Base URL of the OpenAI compatible nlm-proxy (empty runs in echo mode)",
			Sources:     cli.EnvVars("NLM_PROXY_URL"),
			Destination: &cfg.nlmURL,
		},
		&cli.StringFlag{
			Name:        "nlm-proxy-api-key",
			Usage:       "API key for nlm-proxy",
			Sources:     cli.EnvVars("NLM_PROXY_API_KEY"),
			Destination: &cfg.nlmAPIKey,
		},
		&cli.StringFlag{
			Name:        "nlm-model-name",
			Usage:       "Model name sent to nlm-proxy",
			Value:       nlm.DefaultModel,
			Sources:     cli.EnvVars("NLM_MODEL_NAME"),
			Destination: &cfg.nlmModel,
		},
		&cli.DurationFlag{
			Name:        "nlm-timeout",
			Usage:       "Timeout of a backend request",
			Value:       nlm.DefaultTimeout,
			Sources:     cli.EnvVars("NLM_TIMEOUT"),
			Destination: &cfg.nlmTimeout,
		},
		&cli.BoolFlag{
			Name:        "enable-rewrite",
			Usage:       "Rewrite follow-up questions using conversation memory",
			Value:       true,
			Sources:     cli.EnvVars("ENABLE_REWRITE"),
			Destination: &cfg.enableRewrite,
		},
		&cli.BoolFlag{
			Name:        "enable-followup",
			Usage:       "Suggest follow-up questions after each answer",
			Sources:     cli.EnvVars("ENABLE_FOLLOWUP"),
			Destination: &cfg.enableFollowup,
		},
	}
}

// sessionFlags returns flags for continuation tokens and conversation memory
func sessionFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "Lifetime of a backend continuation token",
			Value:       session.DefaultContinuationTTL,
			Sources:     cli.EnvVars("SESSION_TTL"),
			Destination: &cfg.sessionTTL,
		},
		&cli.IntFlag{
			Name:        "session-maxsize",
			Usage:       "Maximum number of continuation tokens",
			Value:       session.DefaultContinuationCapacity,
			Sources:     cli.EnvVars("SESSION_MAXSIZE"),
			Destination: &cfg.sessionSize,
		},
		&cli.DurationFlag{
			Name:        "memory-ttl",
			Usage:       "Lifetime of a conversation history",
			Value:       session.DefaultMemoryTTL,
			Sources:     cli.EnvVars("MEMORY_TTL"),
			Destination: &cfg.memoryTTL,
		},
		&cli.IntFlag{
			Name:        "memory-maxsize",
			Usage:       "Maximum number of conversation histories",
			Value:       session.DefaultMemoryCapacity,
			Sources:     cli.EnvVars("MEMORY_MAXSIZE"),
			Destination: &cfg.memorySize,
		},
		&cli.IntFlag{
			Name:        "memory-max-messages",
			Usage:       "Messages kept per conversation (0 keeps all)",
			Value:       session.DefaultMemoryMaxMessages,
			Sources:     cli.EnvVars("MEMORY_MAX_MESSAGES"),
			Destination: &cfg.memoryMaxMessages,
		},
	}
}

// aclEnabled reports whether identities can be resolved at all. Without a
// directory the bot runs in echo mode.
func (cfg *config) aclEnabled() bool {
	return (cfg.graphClientID != "" && cfg.graphClientSecret != "") || cfg.testMode
}

// newPolicyStore loads the ACL policy
func (cfg *config) newPolicyStore(ctx context.Context) (*acl.Store, func(), error) {
	if cfg.aclConfig == "" {
		return nil, nil, goerr.New("acl-config is required")
	}

	var opts []option.ClientOption
	if cfg.aclGCSEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.aclGCSEndpoint), option.WithoutAuthentication())
	}

	src, err := acl.NewSource(ctx, cfg.aclConfig, opts...)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if closer, ok := src.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logging.From(ctx).Warn("failed to close ACL source", "error", err)
			}
		}
	}

	store, err := acl.NewStore(ctx, src)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	logging.From(ctx).Info("acl_config_loaded",
		"source", store.Source(),
		"notebooks", len(store.Notebooks()))
	return store, cleanup, nil
}

// newWatcher reloads the policy on SIGHUP, on file changes of a local
// policy and on the optional interval.
func (cfg *config) newWatcher(store *acl.Store, hook func(string, error)) *acl.Watcher {
	opts := []acl.WatcherOption{acl.WithSignals(syscall.SIGHUP)}
	if cfg.aclWatch && !strings.HasPrefix(cfg.aclConfig, "gs://") {
		opts = append(opts, acl.WithFile(cfg.aclConfig))
	}
	if cfg.aclInterval > 0 {
		opts = append(opts, acl.WithInterval(cfg.aclInterval))
	}
	if hook != nil {
		opts = append(opts, acl.WithReloadHook(hook))
	}
	return acl.NewWatcher(store, opts...)
}

// newDirectory creates the directory chain: playground ids go to the mock,
// the rest to Graph, and lookups are cached.
func (cfg *config) newDirectory(cacheHook func(bool)) (interfaces.Directory, error) {
	var live, mock interfaces.Directory

	if cfg.graphClientID != "" && cfg.graphClientSecret != "" {
		if cfg.tenantID == "" {
			return nil, goerr.New("tenant-id is required for Microsoft Graph")
		}
		live = graph.New(cfg.graphClientID, cfg.graphClientSecret, cfg.tenantID,
			graph.WithTimeout(cfg.graphTimeout))
	}
	if cfg.testMode {
		mock = graph.NewMock(graph.ParseGroupList(cfg.testUserGroups))
	}
	if live == nil && mock == nil {
		return nil, goerr.New("graph credentials or test-mode are required")
	}

	var opts []graph.CachedOption
	if cacheHook != nil {
		opts = append(opts, graph.WithCacheHook(cacheHook))
	}
	return graph.NewCached(graph.NewRouter(live, mock), cfg.graphCacheSize, cfg.graphCacheTTL, opts...), nil
}

// newBackend returns nil when no backend URL is configured
func (cfg *config) newBackend() interfaces.Backend {
	if cfg.nlmURL == "" {
		return nil
	}
	return nlm.New(cfg.nlmURL, cfg.nlmAPIKey, cfg.nlmModel, nlm.WithTimeout(cfg.nlmTimeout))
}

// chatOptions collects orchestrator options shared by serve and chat
func (cfg *config) chatOptions(dir interfaces.Directory, store *acl.Store, metrics chat.Metrics) []chat.Option {
	opts := []chat.Option{
		chat.WithRewrite(cfg.enableRewrite),
		chat.WithFollowup(cfg.enableFollowup),
		chat.WithContinuation(session.NewContinuation(cfg.sessionSize, cfg.sessionTTL)),
		chat.WithMemory(session.NewMemory(cfg.memorySize, cfg.memoryTTL, cfg.memoryMaxMessages)),
	}
	if dir != nil && store != nil {
		opts = append(opts, chat.WithDirectory(dir), chat.WithPolicy(store))
	}
	if backend := cfg.newBackend(); backend != nil {
		opts = append(opts, chat.WithBackend(backend))
	}
	if metrics != nil {
		opts = append(opts, chat.WithMetrics(metrics))
	}
	return opts
}
