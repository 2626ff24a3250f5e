package bootstrap

import (
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/answers"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/audit"
	appconfig "github.com/wolfman30/mentalcare-crisis-engine/internal/config"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/conversation"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/http/handlers"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/lexicon"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// BuildLexicons loads the crisis lexicons from LEXICON_DIR, or the embedded set when
// unset. The returned watcher is non-nil only when LEXICON_WATCH is enabled and a
// directory is configured; the caller starts and stops it.
func BuildLexicons(cfg *appconfig.Config, logger *logging.Logger) (*lexicon.Registry, *lexicon.Watcher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	defaultLang := "es"
	dir := ""
	watch := false
	if cfg != nil {
		if cfg.DefaultLanguage != "" {
			defaultLang = cfg.DefaultLanguage
		}
		dir = strings.TrimSpace(cfg.LexiconDir)
		watch = cfg.LexiconWatch
	}

	var (
		lexicons []*lexicon.Lexicon
		err      error
	)
	if dir == "" {
		lexicons, err = lexicon.Embedded()
	} else {
		lexicons, err = lexicon.LoadDir(dir)
	}
	if err != nil {
		return nil, nil, err
	}
	registry, err := lexicon.NewRegistry(defaultLang, lexicons...)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("crisis lexicons loaded",
		"source", lexiconSource(dir),
		"languages", registry.Languages(),
		"default_language", registry.DefaultLanguage(),
	)

	if dir == "" || !watch {
		return registry, nil, nil
	}
	watcher, err := lexicon.NewWatcher(dir, registry, logger)
	if err != nil {
		return nil, nil, err
	}
	return registry, watcher, nil
}

func lexiconSource(dir string) string {
	if dir == "" {
		return "embedded"
	}
	return dir
}

// AuditStores is the emergency audit persistence chain. Postgres and Fallback are
// nil when their backends are not configured.
type AuditStores struct {
	Sink     audit.Sink
	Postgres *audit.PostgresStore
	Fallback *audit.RedisFallback
}

// BuildAuditStores picks the strongest available chain: Postgres, then the Redis
// fallback list, then the structured log. The log is always the last resort.
func BuildAuditStores(pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) AuditStores {
	if logger == nil {
		logger = logging.Default()
	}
	logSink := audit.NewLogSink(logger)

	var stores AuditStores
	if pool != nil {
		stores.Postgres = audit.NewPostgresStore(pool)
	}
	if redisClient != nil {
		stores.Fallback = audit.NewRedisFallback(redisClient)
	}

	switch {
	case stores.Postgres != nil && stores.Fallback != nil:
		stores.Sink = audit.NewFallbackSink(stores.Postgres, audit.NewFallbackSink(stores.Fallback, logSink))
	case stores.Postgres != nil:
		stores.Sink = audit.NewFallbackSink(stores.Postgres, logSink)
	case stores.Fallback != nil:
		logger.Warn("no database configured, emergency activations are kept in the redis fallback list")
		stores.Sink = audit.NewFallbackSink(stores.Fallback, logSink)
	default:
		logger.Warn("no audit storage configured, emergency activations are only logged")
		stores.Sink = logSink
	}
	return stores
}

// Listers returns the audit readers for the admin handler. Missing backends come
// back as untyped nil interfaces so callers can compare them against nil.
func (s AuditStores) Listers() (handlers.EmergencyLogLister, handlers.PendingLogLister) {
	var (
		store   handlers.EmergencyLogLister
		pending handlers.PendingLogLister
	)
	if s.Postgres != nil {
		store = s.Postgres
	}
	if s.Fallback != nil {
		pending = s.Fallback
	}
	return store, pending
}

// BuildStateStore persists escalation state in Redis when available.
func BuildStateStore(redisClient *redis.Client, cfg *appconfig.Config) conversation.StateStore {
	if redisClient == nil {
		return conversation.NewMemoryStateStore()
	}
	ttl := conversation.DefaultStateTTL
	if cfg != nil && cfg.StateTTL > 0 {
		ttl = cfg.StateTTL
	}
	return conversation.NewRedisStateStore(redisClient, ttl)
}

// BuildCustomStore keeps users' custom questions in Redis when available.
func BuildCustomStore(redisClient *redis.Client) answers.CustomStore {
	if redisClient == nil {
		return answers.NewMemoryCustomStore()
	}
	return answers.NewRedisCustomStore(redisClient)
}
