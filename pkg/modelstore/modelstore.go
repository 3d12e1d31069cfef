// Package modelstore persists absolute behavior models so that later runs
// and other tools can retrieve them by ID. Models are stored as JSON
// records in a local directory, Redis or S3.
package modelstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/config"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
	"github.com/behaviorflow/behaviorflow/pkg/resilience"
)

// Backend defines the interface for model storage backends.
type Backend interface {
	// Save persists a record, replacing any record with the same ID.
	Save(ctx context.Context, rec *Record) error

	// Load retrieves a record by model ID.
	Load(ctx context.Context, id string) (*Record, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the records of one session, or all records when
	// sessionID is empty, ordered by creation time.
	List(ctx context.Context, sessionID string) ([]*Record, error)

	// Name returns the backend name for logging.
	Name() string

	// Close releases connections held by the backend.
	Close() error
}

// Record is the stored form of one model.
type Record struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	CreatedAt time.Time      `json:"created_at"`
	Model     model.Document `json:"model"`
}

// NewRecord wraps a model into a record stamped with the current time.
func NewRecord(m *model.AbsoluteBehaviorModel) *Record {
	now := time.Now().UTC()
	doc := m.ToDocument()
	doc.CreatedAt = now
	return &Record{
		ID:        m.ID,
		SessionID: m.SessionID,
		CreatedAt: now,
		Model:     doc,
	}
}

// ToModel rebuilds the model graph from the record.
func (r *Record) ToModel() (*model.AbsoluteBehaviorModel, error) {
	return model.FromDocument(r.Model)
}

// SaveAll stores every model and returns the saved records in order.
func SaveAll(ctx context.Context, b Backend, models []*model.AbsoluteBehaviorModel) ([]*Record, error) {
	records := make([]*Record, 0, len(models))
	for _, m := range models {
		rec := NewRecord(m)
		if err := b.Save(ctx, rec); err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func encodeRecord(rec *Record) ([]byte, error) {
	if err := checkID(rec.ID); err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreWrite, "failed to marshal record").
			WithContext("id", rec.ID)
	}
	return data, nil
}

func decodeRecord(id string, data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreRead, "failed to unmarshal record").
			WithContext("id", id)
	}
	return &rec, nil
}

// checkID rejects IDs that cannot be used as file names or object keys.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return errors.New(errors.CodeStoreWrite, "invalid model id").
			WithContext("id", id)
	}
	return nil
}

func filterSession(records []*Record, sessionID string) []*Record {
	if sessionID == "" {
		return records
	}
	out := records[:0]
	for _, r := range records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

func sortRecords(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// MultiBackend writes to a primary and, best effort, a secondary backend.
type MultiBackend struct {
	primary   Backend
	secondary Backend
	logger    *slog.Logger
}

// NewMultiBackend creates a backend that writes to both primary and secondary.
func NewMultiBackend(primary, secondary Backend) *MultiBackend {
	return &MultiBackend{
		primary:   primary,
		secondary: secondary,
		logger:    slog.Default(),
	}
}

// Save writes to both backends (primary first). A secondary failure is
// logged and does not fail the save.
func (m *MultiBackend) Save(ctx context.Context, rec *Record) error {
	if err := m.primary.Save(ctx, rec); err != nil {
		return err
	}
	if err := m.secondary.Save(ctx, rec); err != nil {
		m.logger.Warn("secondary store save failed",
			"backend", m.secondary.Name(),
			"id", rec.ID,
			"error", err,
		)
	}
	return nil
}

// Load reads from primary and falls back to secondary.
func (m *MultiBackend) Load(ctx context.Context, id string) (*Record, error) {
	rec, err := m.primary.Load(ctx, id)
	if err == nil {
		return rec, nil
	}
	return m.secondary.Load(ctx, id)
}

// Delete removes from both backends.
func (m *MultiBackend) Delete(ctx context.Context, id string) error {
	err1 := m.primary.Delete(ctx, id)
	err2 := m.secondary.Delete(ctx, id)
	if err1 != nil {
		return err1
	}
	return err2
}

// List returns the primary's records.
func (m *MultiBackend) List(ctx context.Context, sessionID string) ([]*Record, error) {
	return m.primary.List(ctx, sessionID)
}

// Name returns the combined backend names.
func (m *MultiBackend) Name() string {
	return m.primary.Name() + "+" + m.secondary.Name()
}

// Close closes both backends.
func (m *MultiBackend) Close() error {
	var errs errors.MultiError
	errs.Add(m.primary.Close())
	errs.Add(m.secondary.Close())
	return errs.Combined()
}

// Open creates the backend selected by cfg.Backend. Remote backends are
// wrapped in a ResilientBackend. When cfg.Secondary is set, the result is a
// MultiBackend over both stores.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	primary, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Secondary == nil {
		return primary, nil
	}

	secondary, err := openBackend(ctx, *cfg.Secondary)
	if err != nil {
		primary.Close()
		return nil, errors.Wrap(err, errors.CodeStoreInit, "open secondary store")
	}
	return NewMultiBackend(primary, secondary), nil
}

func openBackend(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalBackend(cfg.Local.Dir)
	case "redis":
		rc := DefaultRedisConfig(cfg.Redis.Address)
		rc.Password = cfg.Redis.Password
		rc.Database = cfg.Redis.Database
		rc.TTL = cfg.Redis.TTL
		if cfg.Redis.Prefix != "" {
			rc.Prefix = cfg.Redis.Prefix
		}
		b, err := NewRedisBackend(ctx, rc)
		if err != nil {
			return nil, err
		}
		return NewResilientBackend(b, resilience.DefaultRetryPolicy(), nil), nil
	case "s3":
		sc := DefaultS3Config(cfg.S3.Bucket)
		sc.Region = cfg.S3.Region
		sc.Endpoint = cfg.S3.Endpoint
		sc.UsePathStyle = cfg.S3.UsePathStyle
		if cfg.S3.Prefix != "" {
			sc.Prefix = cfg.S3.Prefix
		}
		b, err := NewS3Backend(ctx, sc)
		if err != nil {
			return nil, err
		}
		return NewResilientBackend(b, resilience.DefaultRetryPolicy(), nil), nil
	default:
		return nil, errors.New(errors.CodeStoreInit, fmt.Sprintf("unsupported store backend %q", cfg.Backend))
	}
}
