package jobstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/proofpulse/internal/cache"
	"github.com/ppiankov/proofpulse/internal/model"
)

// Job-scoped keys
const (
	KeyStatus      = "status"
	KeyMessage     = "message"
	KeyType        = "type"
	KeyRaw         = "raw"
	KeyCreatedAt   = "created_at"
	KeyClientID    = "client_id"
	KeyText        = "text"
	KeyTimestamps  = "timestamps"
	KeyClaims      = "claims"
	KeyEvidence    = "evidence"
	KeyReports     = "gemini_report"
	KeyFinalResult = "final_result"
	KeyLock        = "lock"
)

// EvidenceKey is the per-claim evidence key
func EvidenceKey(claimID string) string { return "evidence:" + claimID }

// ReportKey is the per-claim score report key
func ReportKey(claimID string) string { return "gemini:" + claimID }

var (
	// ErrStoreUnavailable is returned when the configured backend cannot be reached
	ErrStoreUnavailable = errors.New("job store unavailable")

	// ErrInvalidJobID is returned for a job id that could address another job's keys
	ErrInvalidJobID = errors.New("invalid job id")

	// ErrUndecodable marks a stored value that does not decode into the requested type
	ErrUndecodable = errors.New("stored value is undecodable")
)

// StatusInfo is a job's status and its human-readable message
type StatusInfo struct {
	Status  model.Status `json:"status"`
	Message string       `json:"message"`
}

// Store is the typed, job-namespaced view over a cache backend.
// Every write carries the configured TTL.
type Store struct {
	cache    cache.Cache
	ttl      time.Duration
	backend  string
	degraded bool
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an already constructed cache backend
func New(c cache.Cache, backend string, ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &Store{
		cache:   c,
		ttl:     ttl,
		backend: backend,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open selects and connects the backend named in cfg. The choice is made
// once here; a Store never swaps its backend afterwards.
func Open(ctx context.Context, cfg model.StoreConfig, opts ...Option) (*Store, error) {
	log := New(nil, "", cfg.TTL, opts...).logger

	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return New(cache.NewMemoryCache(cfg.TTL, 10*time.Minute), "memory", cfg.TTL, opts...), nil

	case "sqlite":
		sc, err := cache.OpenSQLiteCache(cfg.Path, cfg.TTL)
		if err != nil {
			return nil, eris.Wrapf(err, "open sqlite store %s", cfg.Path)
		}
		// Rows left by a previous process are never read again once expired
		if n, err := sc.Sweep(ctx); err != nil {
			log.Warn("sqlite sweep failed", zap.Error(err))
		} else if n > 0 {
			log.Info("swept expired sqlite rows", zap.Int64("rows", n))
		}
		return New(sc, "sqlite", cfg.TTL, opts...), nil

	case "redis", "valkey", "":
		rc, err := cache.NewRedisCache(cfg.URL, cfg.TTL)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err = rc.Ping(pingCtx)
			cancel()
			if err == nil {
				return New(rc, "redis", cfg.TTL, opts...), nil
			}
			_ = rc.Close()
		}
		if !cfg.FallbackToMemory {
			return nil, eris.Wrapf(ErrStoreUnavailable, "redis at %s: %v", cfg.URL, err)
		}
		log.Warn("redis unreachable, using in-memory store",
			zap.String("url", cfg.URL), zap.Error(err))
		s := New(cache.NewMemoryCache(cfg.TTL, 10*time.Minute), "memory", cfg.TTL, opts...)
		s.degraded = true
		return s, nil

	default:
		return nil, eris.Errorf("unknown store backend %q (supported: redis, memory, sqlite)", cfg.Backend)
	}
}

// Backend names the selected backend
func (s *Store) Backend() string { return s.backend }

// Degraded reports whether the store fell back to the in-memory backend
func (s *Store) Degraded() bool { return s.degraded }

// TTL is the retention applied to job data
func (s *Store) TTL() time.Duration { return s.ttl }

// Close releases the backend
func (s *Store) Close() error { return s.cache.Close() }

func jobKey(jobID, key string) string {
	return "job:" + jobID + ":" + key
}

// ValidJobID reports whether jobID names exactly one key namespace. The
// separator is rejected so that "a:b" can never share a prefix with "a".
func ValidJobID(jobID string) bool {
	return jobID != "" && !strings.Contains(jobID, ":")
}

func jobPrefix(jobID string) string {
	return "job:" + jobID + ":"
}

func settingsKey(clientID string) string {
	return "settings:" + clientID
}

// SetStatus writes status and message together
func (s *Store) SetStatus(ctx context.Context, jobID string, status model.Status, message string) error {
	return s.SetMany(ctx, jobID, map[string]any{
		KeyStatus:  string(status),
		KeyMessage: message,
	})
}

// GetStatus reads status and message
func (s *Store) GetStatus(ctx context.Context, jobID string) (StatusInfo, bool, error) {
	vals, err := s.GetMany(ctx, jobID, []string{KeyStatus, KeyMessage})
	if err != nil {
		return StatusInfo{}, false, err
	}
	st, ok := vals[KeyStatus]
	if !ok {
		return StatusInfo{}, false, nil
	}
	return StatusInfo{
		Status:  model.Status(st.String()),
		Message: vals[KeyMessage].String(),
	}, true, nil
}

// SetData stores one job field
func (s *Store) SetData(ctx context.Context, jobID, key string, value any) error {
	data, err := encodeValue(value)
	if err != nil {
		return eris.Wrapf(err, "set %s for job %s", key, jobID)
	}
	if err := s.cache.Set(ctx, jobKey(jobID, key), data, s.ttl); err != nil {
		return eris.Wrapf(err, "set %s for job %s", key, jobID)
	}
	return nil
}

// GetValue returns the stored value without decoding it
func (s *Store) GetValue(ctx context.Context, jobID, key string) (Value, bool, error) {
	data, found, err := s.cache.Get(ctx, jobKey(jobID, key))
	if err != nil {
		return Value{}, false, eris.Wrapf(err, "get %s for job %s", key, jobID)
	}
	return Value{raw: data}, found, nil
}

// GetData decodes one job field into dst. A value that cannot be decoded
// into dst is logged and reported with ErrUndecodable; callers treat it as
// a cache miss.
func (s *Store) GetData(ctx context.Context, jobID, key string, dst any) (bool, error) {
	v, found, err := s.GetValue(ctx, jobID, key)
	if err != nil || !found {
		return false, err
	}
	if err := v.Decode(dst); err != nil {
		s.logger.Warn("undecodable job value",
			zap.String("job_id", jobID), zap.String("key", key), zap.Error(err))
		return true, eris.Wrapf(ErrUndecodable, "%s for job %s", key, jobID)
	}
	return true, nil
}

// GetString reads a text field, falling back to the raw payload
func (s *Store) GetString(ctx context.Context, jobID, key string) (string, bool, error) {
	var out string
	found, err := s.GetData(ctx, jobID, key, &out)
	return out, found, err
}

// Exists reports whether a job field is present
func (s *Store) Exists(ctx context.Context, jobID, key string) (bool, error) {
	ok, err := s.cache.Exists(ctx, jobKey(jobID, key))
	if err != nil {
		return false, eris.Wrapf(err, "exists %s for job %s", key, jobID)
	}
	return ok, nil
}

// SetMany stores several job fields in one backend call
func (s *Store) SetMany(ctx context.Context, jobID string, values map[string]any) error {
	encoded := make(map[string][]byte, len(values))
	for key, val := range values {
		data, err := encodeValue(val)
		if err != nil {
			return eris.Wrapf(err, "set %s for job %s", key, jobID)
		}
		encoded[jobKey(jobID, key)] = data
	}
	if err := s.cache.SetMany(ctx, encoded, s.ttl); err != nil {
		return eris.Wrapf(err, "set many for job %s", jobID)
	}
	return nil
}

// GetMany reads several job fields; absent keys are omitted
func (s *Store) GetMany(ctx context.Context, jobID string, keys []string) (map[string]Value, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = jobKey(jobID, k)
	}
	raw, err := s.cache.GetMany(ctx, full)
	if err != nil {
		return nil, eris.Wrapf(err, "get many for job %s", jobID)
	}
	out := make(map[string]Value, len(raw))
	for i, k := range keys {
		if data, ok := raw[full[i]]; ok {
			out[k] = Value{raw: data}
		}
	}
	return out, nil
}

// Initialize seeds a new job and marks it INGESTED in a single write
func (s *Store) Initialize(ctx context.Context, jobID string, inputType model.InputType, raw, clientID string) error {
	values := map[string]any{
		KeyType:      string(inputType),
		KeyRaw:       raw,
		KeyCreatedAt: s.now().UTC().Format(time.RFC3339Nano),
		KeyStatus:    string(model.StatusIngested),
		KeyMessage:   "Job created successfully",
	}
	if clientID != "" {
		values[KeyClientID] = clientID
	}
	return s.SetMany(ctx, jobID, values)
}

// CreatedAt returns the ingestion time of a job
func (s *Store) CreatedAt(ctx context.Context, jobID string) (time.Time, bool, error) {
	raw, found, err := s.GetString(ctx, jobID, KeyCreatedAt)
	if err != nil || !found {
		return time.Time{}, found, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, true, eris.Wrapf(ErrUndecodable, "created_at %q for job %s", raw, jobID)
	}
	return t, true, nil
}

// Purge removes every key of one job and returns how many were deleted
func (s *Store) Purge(ctx context.Context, jobID string) (int, error) {
	if !ValidJobID(jobID) {
		return 0, eris.Wrapf(ErrInvalidJobID, "purge %q", jobID)
	}
	keys, err := s.cache.Keys(ctx, jobPrefix(jobID))
	if err != nil {
		return 0, eris.Wrapf(err, "list keys for job %s", jobID)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		return 0, eris.Wrapf(err, "purge job %s", jobID)
	}
	return len(keys), nil
}

// HealthCheck reports whether the backend answers
func (s *Store) HealthCheck(ctx context.Context) bool {
	if err := s.cache.Ping(ctx); err != nil {
		s.logger.Warn("job store health check failed", zap.Error(err))
		return false
	}
	return true
}

// TryLock takes the per-job advisory lock for owner. It reports false when
// another owner already holds it.
func (s *Store) TryLock(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	ok, err := s.cache.SetNX(ctx, jobKey(jobID, KeyLock), []byte(owner), ttl)
	if err != nil {
		return false, eris.Wrapf(err, "lock job %s", jobID)
	}
	return ok, nil
}

// Unlock releases the advisory lock if owner still holds it
func (s *Store) Unlock(ctx context.Context, jobID, owner string) error {
	key := jobKey(jobID, KeyLock)
	held, found, err := s.cache.Get(ctx, key)
	if err != nil {
		return eris.Wrapf(err, "read lock for job %s", jobID)
	}
	if !found || string(held) != owner {
		return nil
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		return eris.Wrapf(err, "unlock job %s", jobID)
	}
	return nil
}

// GetSettings reads a client's stored preferences
func (s *Store) GetSettings(ctx context.Context, clientID string) (model.ClientSettings, bool, error) {
	var out model.ClientSettings
	data, found, err := s.cache.Get(ctx, settingsKey(clientID))
	if err != nil {
		return out, false, eris.Wrapf(err, "get settings for %s", clientID)
	}
	if !found {
		return out, false, nil
	}
	if err := (Value{raw: data}).Decode(&out); err != nil {
		s.logger.Warn("undecodable client settings", zap.String("client_id", clientID), zap.Error(err))
		return model.ClientSettings{}, false, nil
	}
	return out, true, nil
}

// SetSettings stores a client's preferences; they outlive job data 24x
func (s *Store) SetSettings(ctx context.Context, clientID string, settings model.ClientSettings) error {
	data, err := encodeValue(settings)
	if err != nil {
		return eris.Wrapf(err, "set settings for %s", clientID)
	}
	if err := s.cache.Set(ctx, settingsKey(clientID), data, s.ttl*24); err != nil {
		return eris.Wrapf(err, "set settings for %s", clientID)
	}
	return nil
}
