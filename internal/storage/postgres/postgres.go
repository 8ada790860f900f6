// Package postgres implements the Storage Port on top of GORM and
// PostgreSQL. Records are stored as opaque JSON blobs keyed by
// (namespace, id); filtering is done in Go after a namespace-scoped
// load, the same way the teacher's NATS KeyValue adapter filtered client
// side over a full key scan. Id allocation uses a per-namespace
// sequence table so NextId is atomic without taking any engine-level
// lock.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schemaregistry/internal/storage"
)

// row is the physical shape of every record, regardless of namespace.
type row struct {
	Namespace string `gorm:"column:namespace;primaryKey"`
	ID        int64  `gorm:"column:id;primaryKey"`
	Data      []byte `gorm:"column:data"`
}

func (row) TableName() string { return "storage_records" }

// sequence backs NextId: one row per namespace, incremented atomically.
type sequence struct {
	Namespace string `gorm:"column:namespace;primaryKey"`
	Value     int64  `gorm:"column:value"`
}

func (sequence) TableName() string { return "storage_sequences" }

// Config is the connection configuration for the Postgres adapter,
// shaped like Aleph-Alpha-std's pkg/postgres.Config.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DbName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a GORM/Postgres-backed Storage Port.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL, runs the storage adapter's own migrations,
// and returns a ready Store.
func Open(cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DbName, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying db handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&row{}, &sequence{}); err != nil {
		return nil, fmt.Errorf("migrate storage tables: %w", err)
	}

	return &Store{db: db}, nil
}

// NextId atomically increments and returns the sequence for namespace.
func (s *Store) NextId(ctx context.Context, namespace string) (int64, error) {
	var value int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Raw(`
			INSERT INTO storage_sequences (namespace, value) VALUES (?, 1)
			ON CONFLICT (namespace) DO UPDATE SET value = storage_sequences.value + 1
			RETURNING value`, namespace).Scan(&value).Error
	})
	if err != nil {
		return 0, fmt.Errorf("allocate next id for namespace %q: %w", namespace, err)
	}
	return value, nil
}

func (s *Store) Get(ctx context.Context, namespace string, id int64) (storage.Record, bool, error) {
	var r row
	err := s.db.WithContext(ctx).Where("namespace = ? AND id = ?", namespace, id).First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%d: %w", namespace, id, err)
	}
	rec, err := decode(r.Data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *Store) Find(ctx context.Context, namespace string, filters []storage.Filter) ([]storage.Record, error) {
	all, err := s.List(ctx, namespace)
	if err != nil {
		return nil, err
	}
	var out []storage.Record
	for _, rec := range all {
		if matches(rec, filters) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) List(ctx context.Context, namespace string) ([]storage.Record, error) {
	var rows []row
	if err := s.db.WithContext(ctx).Where("namespace = ?", namespace).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	out := make([]storage.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := decode(r.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Add(ctx context.Context, namespace string, record storage.Record) error {
	id := toInt64(record["id"])
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record for %s: %w", namespace, err)
	}
	r := row{Namespace: namespace, ID: id, Data: data}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("add %s/%d: %w", namespace, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, namespace string, id int64, record storage.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record for %s: %w", namespace, err)
	}
	r := row{Namespace: namespace, ID: id, Data: data}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data"}),
	}).Create(&r).Error
	if err != nil {
		return fmt.Errorf("update %s/%d: %w", namespace, id, err)
	}
	return nil
}

func decode(data []byte) (storage.Record, error) {
	var rec storage.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func matches(rec storage.Record, filters []storage.Filter) bool {
	for _, f := range filters {
		if !equalValue(rec[f.Column], f.Value) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := toFloatOk(a)
	bf, bok := toFloatOk(b)
	return aok && bok && af == bf
}

func toFloatOk(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) int64 {
	f, _ := toFloatOk(v)
	return int64(f)
}
