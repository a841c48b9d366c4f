package storage

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meme-cmd/memexp2000/db"
	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/store"
	"github.com/meme-cmd/memexp2000/telemetry"
)

const defaultListLimit = 1000

// SQLStore implements Store on the GORM-backed SQLite database.
type SQLStore struct {
	database *db.DB
	logger   zerolog.Logger
}

// NewSQLStore creates a Store over the given database.
func NewSQLStore(database *db.DB, logger zerolog.Logger) *SQLStore {
	return &SQLStore{
		database: database,
		logger:   logger.With().Str("component", "object_store").Logger(),
	}
}

// Get returns the raw JSON for key, or a NOT_FOUND coded error.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	key = NormalizeKey(key)

	var obj store.Object
	err := s.database.Client().WithContext(ctx).
		Where("key = ?", key).
		First(&obj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			telemetry.StorageOps.WithLabelValues("get", "not_found").Inc()
			return nil, errors.NewNotFound("object not found: "+key, nil)
		}
		telemetry.StorageOps.WithLabelValues("get", "error").Inc()
		return nil, errors.NewStorage("failed to read object "+key, err)
	}

	telemetry.StorageOps.WithLabelValues("get", "ok").Inc()
	return obj.Data, nil
}

// Put creates or overwrites the object at key.
func (s *SQLStore) Put(ctx context.Context, key string, data []byte) error {
	key = NormalizeKey(key)

	err := s.database.Client().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&store.Object{Key: key, Data: data}).Error
	if err != nil {
		telemetry.StorageOps.WithLabelValues("put", "error").Inc()
		return errors.NewStorage("failed to write object "+key, err)
	}

	telemetry.StorageOps.WithLabelValues("put", "ok").Inc()
	return nil
}

// PutIfAbsent stores data only when no object exists at key. The conditional
// insert is what gives the replay guard its first-writer-wins semantics.
func (s *SQLStore) PutIfAbsent(ctx context.Context, key string, data []byte) (bool, error) {
	key = NormalizeKey(key)

	result := s.database.Client().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&store.Object{Key: key, Data: data})
	if result.Error != nil {
		telemetry.StorageOps.WithLabelValues("put_if_absent", "error").Inc()
		return false, errors.NewStorage("failed to reserve object "+key, result.Error)
	}

	telemetry.StorageOps.WithLabelValues("put_if_absent", "ok").Inc()
	return result.RowsAffected > 0, nil
}

// List returns up to limit keys under prefix, ordered by key, starting after
// cursor. The cursor is the last key of the previous page.
func (s *SQLStore) List(ctx context.Context, prefix string, limit int, cursor string) (*ListResult, error) {
	prefix = NormalizeKey(prefix)
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := s.database.Client().WithContext(ctx).
		Model(&store.Object{}).
		Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("key asc").
		Limit(limit + 1)
	if cursor != "" {
		query = query.Where("key > ?", NormalizeKey(cursor))
	}

	var objects []store.Object
	if err := query.Find(&objects).Error; err != nil {
		telemetry.StorageOps.WithLabelValues("list", "error").Inc()
		return nil, errors.NewStorage("failed to list objects under "+prefix, err)
	}
	telemetry.StorageOps.WithLabelValues("list", "ok").Inc()

	result := &ListResult{}
	for i, obj := range objects {
		if i == limit {
			result.NextCursor = result.Objects[limit-1].Key
			break
		}
		result.Objects = append(result.Objects, ObjectInfo{
			Key:          obj.Key,
			LastModified: obj.UpdatedAt,
		})
	}

	return result, nil
}

// escapeLike escapes SQL LIKE wildcards so prefixes containing them match
// literally.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
