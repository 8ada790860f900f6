// Package engine implements the Schema Lifecycle Engine: the write path
// (dedup, version assignment, compatibility checking, field indexing) and
// the read path (metadata/version/search lookups) described by the
// registry's data model. It is grounded on the original registry's
// DefaultSchemaRegistry, generalized from one global write lock to a
// per-schema-name striped lock and corrected against the two ordering
// flaws noted for that implementation: dedup now runs before id
// allocation, and findSchemaMetadata queries the metadata namespace.
package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"schemaregistry/internal/cache"
	"schemaregistry/internal/notify"
	"schemaregistry/internal/regerr"
	"schemaregistry/internal/schema/types"
	"schemaregistry/internal/storage"
)

// Engine is the schema lifecycle core. It is safe for concurrent use.
type Engine struct {
	store     storage.Port
	providers map[types.SchemaType]types.Provider
	cache     *cache.Cache
	log       *zap.Logger
	notifier  notify.Notifier

	stripeMu sync.Mutex
	stripes  map[string]*sync.Mutex
}

// New creates an Engine backed by store, serving compatibility and
// fingerprinting through providers (keyed by their own Type()), and
// caching version lookups in versionCache. Lifecycle events are
// published through notify.NoOp{}; use WithNotifier to attach a real
// backend.
func New(store storage.Port, providers []types.Provider, versionCache *cache.Cache, log *zap.Logger) *Engine {
	byType := make(map[types.SchemaType]types.Provider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &Engine{
		store:     store,
		providers: byType,
		cache:     versionCache,
		log:       log,
		notifier:  notify.NoOp{},
		stripes:   make(map[string]*sync.Mutex),
	}
}

// WithNotifier attaches n as the engine's lifecycle event publisher.
func (e *Engine) WithNotifier(n notify.Notifier) *Engine {
	e.notifier = n
	return e
}

// lockFor returns the mutex striped to schemaName, creating it on first
// use. Striping per name lets writes to distinct schemas proceed
// concurrently while still serializing the read-modify-write sequence
// that I2 and I3 require for any one schema.
func (e *Engine) lockFor(schemaName string) *sync.Mutex {
	e.stripeMu.Lock()
	defer e.stripeMu.Unlock()
	mu, ok := e.stripes[schemaName]
	if !ok {
		mu = &sync.Mutex{}
		e.stripes[schemaName] = mu
	}
	return mu
}

func (e *Engine) providerFor(t types.SchemaType) (types.Provider, error) {
	p, ok := e.providers[t]
	if !ok {
		return nil, fmt.Errorf("%w: no provider registered for dialect %q", regerr.ErrConfiguration, t)
	}
	return p, nil
}

// AddSchemaMetadata registers meta if no metadata exists under its name,
// or returns the id of the existing row (idempotent by name, I1).
func (e *Engine) AddSchemaMetadata(ctx context.Context, meta types.SchemaMetadata) (int64, error) {
	mu := e.lockFor(meta.Name)
	mu.Lock()
	defer mu.Unlock()
	return e.addSchemaMetadataLocked(ctx, meta)
}

func (e *Engine) addSchemaMetadataLocked(ctx context.Context, meta types.SchemaMetadata) (int64, error) {
	existing, found, err := e.getSchemaMetadataRecord(ctx, meta.Name)
	if err != nil {
		return 0, err
	}
	if found {
		return existing.Id, nil
	}

	id, err := e.store.NextId(ctx, storage.NamespaceSchemaMetadata)
	if err != nil {
		return 0, fmt.Errorf("%w: allocate schema metadata id: %v", regerr.ErrIO, err)
	}
	meta.Id = id
	meta.Timestamp = time.Now()

	rec, err := storage.ToRecord(meta)
	if err != nil {
		return 0, fmt.Errorf("%w: encode schema metadata: %v", regerr.ErrIO, err)
	}
	if err := e.store.Add(ctx, storage.NamespaceSchemaMetadata, rec); err != nil {
		return 0, fmt.Errorf("%w: persist schema metadata: %v", regerr.ErrIO, err)
	}
	return id, nil
}

// AddSchemaVersion registers text as a new (or deduplicated) version of
// meta, upserting the metadata row if it does not already exist. The
// dialect and compatibility policy used are those of the stored row.
func (e *Engine) AddSchemaVersion(ctx context.Context, meta types.SchemaMetadata, text, description string) (int, error) {
	mu := e.lockFor(meta.Name)
	mu.Lock()
	defer mu.Unlock()

	metadataId, err := e.addSchemaMetadataLocked(ctx, meta)
	if err != nil {
		return 0, err
	}
	stored, found, err := e.getSchemaMetadataRecord(ctx, meta.Name)
	if err != nil {
		return 0, err
	}
	if found {
		meta = stored
	}
	return e.createSchemaVersionLocked(ctx, meta, metadataId, text, description)
}

// AddSchemaVersionByName registers text as a new (or deduplicated)
// version of the schema named name. Unlike AddSchemaVersion, it fails
// with ErrSchemaNotFound when no metadata exists under that name.
func (e *Engine) AddSchemaVersionByName(ctx context.Context, name, text, description string) (int, error) {
	mu := e.lockFor(name)
	mu.Lock()
	defer mu.Unlock()

	existing, found, err := e.getSchemaMetadataRecord(ctx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: schema metadata %q", regerr.ErrSchemaNotFound, name)
	}
	return e.createSchemaVersionLocked(ctx, existing, existing.Id, text, description)
}

// createSchemaVersionLocked implements §4.3 steps 2-7. Callers must hold
// the stripe lock for meta.Name.
func (e *Engine) createSchemaVersionLocked(ctx context.Context, meta types.SchemaMetadata, metadataId int64, text, description string) (int, error) {
	provider, err := e.providerFor(meta.Type)
	if err != nil {
		return 0, err
	}

	fpBytes, err := provider.Fingerprint(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", regerr.ErrInvalidSchema, err)
	}
	fingerprint := hex.EncodeToString(fpBytes)

	existingVersions, err := e.findAllVersionsById(ctx, metadataId)
	if err != nil {
		return 0, err
	}

	// I3: dedup before allocating anything. Run before any id is
	// allocated so a duplicate submission leaves no gap in the version
	// sequence.
	if v, ok := e.findByFingerprint(existingVersions, fingerprint); ok {
		return v, nil
	}

	var latest *types.SchemaVersionInfo
	for i := range existingVersions {
		if latest == nil || existingVersions[i].Version > latest.Version {
			latest = &existingVersions[i]
		}
	}
	if latest != nil {
		ok, err := provider.IsCompatible(text, []string{latest.SchemaText}, meta.Compatibility)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", regerr.ErrInvalidSchema, err)
		}
		if !ok {
			return 0, fmt.Errorf("%w: candidate does not satisfy %s against latest version of %q",
				regerr.ErrIncompatibleSchema, meta.Compatibility, meta.Name)
		}
	}

	version := 1
	if latest != nil {
		version = latest.Version + 1
	}

	versionId, err := e.store.NextId(ctx, storage.NamespaceSchemaVersion)
	if err != nil {
		return 0, fmt.Errorf("%w: allocate schema version id: %v", regerr.ErrIO, err)
	}

	info := types.SchemaVersionInfo{
		Id:               versionId,
		SchemaMetadataId: metadataId,
		Name:             meta.Name,
		Version:          version,
		SchemaText:       text,
		Fingerprint:      fingerprint,
		Description:      description,
		Timestamp:        time.Now(),
	}
	rec, err := storage.ToRecord(info)
	if err != nil {
		return 0, fmt.Errorf("%w: encode schema version: %v", regerr.ErrIO, err)
	}
	if err := e.store.Add(ctx, storage.NamespaceSchemaVersion, rec); err != nil {
		return 0, fmt.Errorf("%w: persist schema version: %v", regerr.ErrIO, err)
	}

	fields, err := provider.Fields(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", regerr.ErrInvalidSchema, err)
	}
	for _, field := range fields {
		fieldId, err := e.store.NextId(ctx, storage.NamespaceFieldIndex)
		if err != nil {
			return 0, fmt.Errorf("%w: allocate field index id: %v", regerr.ErrIO, err)
		}
		fieldRec := types.SchemaFieldIndex{
			Id:              fieldId,
			SchemaVersionId: versionId,
			FieldName:       field.Name,
			FieldNamespace:  field.Namespace,
			FieldType:       field.Type,
			Timestamp:       time.Now(),
		}
		rec, err := storage.ToRecord(fieldRec)
		if err != nil {
			return 0, fmt.Errorf("%w: encode field index row: %v", regerr.ErrIO, err)
		}
		if err := e.store.Add(ctx, storage.NamespaceFieldIndex, rec); err != nil {
			return 0, fmt.Errorf("%w: persist field index row: %v", regerr.ErrIO, err)
		}
	}

	if err := e.notifier.Publish(ctx, notify.SchemaVersionRegistered{SchemaName: meta.Name, Version: version}); err != nil {
		e.log.Warn("publish schema version registered event failed",
			zap.String("name", meta.Name), zap.Int("version", version), zap.Error(err))
	}

	return version, nil
}

// findByFingerprint returns the version of the first entry in versions
// whose fingerprint matches. More than one match indicates an I3
// violation upstream; it is logged and the first is returned rather than
// surfaced to the caller, per the internal-inconsistency policy.
func (e *Engine) findByFingerprint(versions []types.SchemaVersionInfo, fingerprint string) (int, bool) {
	var matchCount int
	var found *types.SchemaVersionInfo
	for i := range versions {
		if versions[i].Fingerprint == fingerprint {
			matchCount++
			if found == nil {
				found = &versions[i]
			}
		}
	}
	if matchCount > 1 {
		e.log.Warn("more than one schema version shares a fingerprint",
			zap.String("fingerprint", fingerprint), zap.Int("count", matchCount))
	}
	if found == nil {
		return 0, false
	}
	return found.Version, true
}

// GetSchemaMetadata returns the metadata registered under name, if any.
func (e *Engine) GetSchemaMetadata(ctx context.Context, name string) (*types.SchemaMetadata, bool, error) {
	meta, found, err := e.getSchemaMetadataRecord(ctx, name)
	if err != nil || !found {
		return nil, found, err
	}
	return &meta, true, nil
}

func (e *Engine) getSchemaMetadataRecord(ctx context.Context, name string) (types.SchemaMetadata, bool, error) {
	recs, err := e.store.Find(ctx, storage.NamespaceSchemaMetadata, []storage.Filter{{Column: "name", Value: name}})
	if err != nil {
		return types.SchemaMetadata{}, false, fmt.Errorf("%w: find schema metadata: %v", regerr.ErrIO, err)
	}
	if len(recs) == 0 {
		return types.SchemaMetadata{}, false, nil
	}
	if len(recs) > 1 {
		e.log.Warn("more than one schema metadata row shares a name", zap.String("name", name), zap.Int("count", len(recs)))
	}
	var meta types.SchemaMetadata
	if err := storage.FromRecord(recs[0], &meta); err != nil {
		return types.SchemaMetadata{}, false, fmt.Errorf("%w: decode schema metadata: %v", regerr.ErrIO, err)
	}
	return meta, true, nil
}

// UpdateCompatibility changes the compatibility policy stored on name's
// metadata. It does not re-check existing versions against the new
// policy; the new policy only governs versions submitted from this point
// on, matching the config-endpoint semantics the CLI's set-compat command
// exposes.
func (e *Engine) UpdateCompatibility(ctx context.Context, name string, level types.CompatibilityLevel) error {
	mu := e.lockFor(name)
	mu.Lock()
	defer mu.Unlock()

	meta, found, err := e.getSchemaMetadataRecord(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: schema metadata %q", regerr.ErrSchemaNotFound, name)
	}

	meta.Compatibility = level
	rec, err := storage.ToRecord(meta)
	if err != nil {
		return fmt.Errorf("%w: encode schema metadata: %v", regerr.ErrIO, err)
	}
	if err := e.store.Update(ctx, storage.NamespaceSchemaMetadata, meta.Id, rec); err != nil {
		return fmt.Errorf("%w: persist schema metadata: %v", regerr.ErrIO, err)
	}
	return nil
}

// FindSchemaMetadata lists every SchemaMetadata when filters is empty, or
// every one matching all filter entries otherwise. Queries the metadata
// namespace directly; the original implementation queried the version
// namespace for non-empty filters, a bug this engine does not reproduce.
func (e *Engine) FindSchemaMetadata(ctx context.Context, filters map[string]string) ([]types.SchemaMetadata, error) {
	var recs []storage.Record
	var err error
	if len(filters) == 0 {
		recs, err = e.store.List(ctx, storage.NamespaceSchemaMetadata)
	} else {
		fs := make([]storage.Filter, 0, len(filters))
		for k, v := range filters {
			fs = append(fs, storage.Filter{Column: k, Value: v})
		}
		recs, err = e.store.Find(ctx, storage.NamespaceSchemaMetadata, fs)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find schema metadata: %v", regerr.ErrIO, err)
	}

	out := make([]types.SchemaMetadata, 0, len(recs))
	for _, rec := range recs {
		var meta types.SchemaMetadata
		if err := storage.FromRecord(rec, &meta); err != nil {
			return nil, fmt.Errorf("%w: decode schema metadata: %v", regerr.ErrIO, err)
		}
		out = append(out, meta)
	}
	return out, nil
}

// FindAllVersions returns every SchemaVersionInfo registered under name.
func (e *Engine) FindAllVersions(ctx context.Context, name string) ([]types.SchemaVersionInfo, error) {
	recs, err := e.store.Find(ctx, storage.NamespaceSchemaVersion, []storage.Filter{{Column: "name", Value: name}})
	if err != nil {
		return nil, fmt.Errorf("%w: find schema versions: %v", regerr.ErrIO, err)
	}
	return decodeVersions(recs)
}

func (e *Engine) findAllVersionsById(ctx context.Context, schemaMetadataId int64) ([]types.SchemaVersionInfo, error) {
	recs, err := e.store.Find(ctx, storage.NamespaceSchemaVersion, []storage.Filter{{Column: "schemaMetadataId", Value: schemaMetadataId}})
	if err != nil {
		return nil, fmt.Errorf("%w: find schema versions: %v", regerr.ErrIO, err)
	}
	return decodeVersions(recs)
}

func decodeVersions(recs []storage.Record) ([]types.SchemaVersionInfo, error) {
	out := make([]types.SchemaVersionInfo, 0, len(recs))
	for _, rec := range recs {
		var v types.SchemaVersionInfo
		if err := storage.FromRecord(rec, &v); err != nil {
			return nil, fmt.Errorf("%w: decode schema version: %v", regerr.ErrIO, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetLatestSchemaVersionInfo returns the highest-numbered version of
// name, or nil if none exist.
func (e *Engine) GetLatestSchemaVersionInfo(ctx context.Context, name string) (*types.SchemaVersionInfo, error) {
	versions, err := e.FindAllVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	var latest *types.SchemaVersionInfo
	for i := range versions {
		if latest == nil || versions[i].Version > latest.Version {
			latest = &versions[i]
		}
	}
	return latest, nil
}

// GetSchemaVersion fingerprints text and returns the version number
// under which that exact text is already registered for name.
func (e *Engine) GetSchemaVersion(ctx context.Context, name, text string) (int, error) {
	meta, found, err := e.getSchemaMetadataRecord(ctx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: schema metadata %q", regerr.ErrSchemaNotFound, name)
	}

	provider, err := e.providerFor(meta.Type)
	if err != nil {
		return 0, err
	}
	fpBytes, err := provider.Fingerprint(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", regerr.ErrInvalidSchema, err)
	}
	fingerprint := hex.EncodeToString(fpBytes)

	versions, err := e.findAllVersionsById(ctx, meta.Id)
	if err != nil {
		return 0, err
	}
	if v, ok := e.findByFingerprint(versions, fingerprint); ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w: schema metadata %q has no version matching the given text", regerr.ErrSchemaNotFound, name)
}

// GetSchemaVersionInfo resolves key through the version cache, which
// loads from storage on a miss.
func (e *Engine) GetSchemaVersionInfo(ctx context.Context, key types.SchemaVersionKey) (*types.SchemaVersionInfo, error) {
	v, err := e.cache.Get(ctx, cache.Key{Name: key.SchemaName, Version: key.Version}, e.loadVersionInfo)
	if err != nil {
		return nil, err
	}
	info := v.(types.SchemaVersionInfo)
	return &info, nil
}

func (e *Engine) loadVersionInfo(ctx context.Context, key cache.Key) (any, error) {
	meta, found, err := e.getSchemaMetadataRecord(ctx, key.Name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: schema metadata %q", regerr.ErrSchemaNotFound, key.Name)
	}

	recs, err := e.store.Find(ctx, storage.NamespaceSchemaVersion, []storage.Filter{
		{Column: "schemaMetadataId", Value: meta.Id},
		{Column: "version", Value: key.Version},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: find schema version: %v", regerr.ErrIO, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: schema metadata %q has no version %d", regerr.ErrSchemaNotFound, key.Name, key.Version)
	}
	if len(recs) > 1 {
		e.log.Warn("more than one schema version shares a (metadataId, version) pair",
			zap.String("name", key.Name), zap.Int("version", key.Version), zap.Int("count", len(recs)))
	}

	var v types.SchemaVersionInfo
	if err := storage.FromRecord(recs[0], &v); err != nil {
		return nil, fmt.Errorf("%w: decode schema version: %v", regerr.ErrIO, err)
	}
	return v, nil
}

// FindSchemasWithFields resolves field-index rows matching the non-empty
// members of query back to their owning (name, version) pairs.
func (e *Engine) FindSchemasWithFields(ctx context.Context, query types.SchemaFieldQuery) ([]types.SchemaVersionKey, error) {
	var filters []storage.Filter
	if query.Namespace != "" {
		filters = append(filters, storage.Filter{Column: "fieldNamespace", Value: query.Namespace})
	}
	if query.Name != "" {
		filters = append(filters, storage.Filter{Column: "fieldName", Value: query.Name})
	}
	if query.Type != "" {
		filters = append(filters, storage.Filter{Column: "fieldType", Value: query.Type})
	}

	recs, err := e.store.Find(ctx, storage.NamespaceFieldIndex, filters)
	if err != nil {
		return nil, fmt.Errorf("%w: find field index rows: %v", regerr.ErrIO, err)
	}

	seen := make(map[types.SchemaVersionKey]bool)
	var out []types.SchemaVersionKey
	for _, rec := range recs {
		var field types.SchemaFieldIndex
		if err := storage.FromRecord(rec, &field); err != nil {
			return nil, fmt.Errorf("%w: decode field index row: %v", regerr.ErrIO, err)
		}
		key, found, err := e.resolveVersionKey(ctx, field.SchemaVersionId)
		if err != nil {
			return nil, err
		}
		if !found || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out, nil
}

func (e *Engine) resolveVersionKey(ctx context.Context, schemaVersionId int64) (types.SchemaVersionKey, bool, error) {
	rec, found, err := e.store.Get(ctx, storage.NamespaceSchemaVersion, schemaVersionId)
	if err != nil {
		return types.SchemaVersionKey{}, false, fmt.Errorf("%w: get schema version: %v", regerr.ErrIO, err)
	}
	if !found {
		return types.SchemaVersionKey{}, false, nil
	}
	var v types.SchemaVersionInfo
	if err := storage.FromRecord(rec, &v); err != nil {
		return types.SchemaVersionKey{}, false, fmt.Errorf("%w: decode schema version: %v", regerr.ErrIO, err)
	}
	return types.SchemaVersionKey{SchemaName: v.Name, Version: v.Version}, true, nil
}

// IsCompatible reports whether text would be accepted as a successor to
// every existing version of name under its stored policy.
func (e *Engine) IsCompatible(ctx context.Context, name, text string) (bool, error) {
	meta, found, err := e.getSchemaMetadataRecord(ctx, name)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("%w: schema metadata %q", regerr.ErrSchemaNotFound, name)
	}

	versions, err := e.findAllVersionsById(ctx, meta.Id)
	if err != nil {
		return false, err
	}
	texts := make([]string, len(versions))
	for i, v := range versions {
		texts[i] = v.SchemaText
	}

	provider, err := e.providerFor(meta.Type)
	if err != nil {
		return false, err
	}
	return provider.IsCompatible(text, texts, meta.Compatibility)
}

// IsCompatibleVersion reports whether text would be accepted as a
// successor to exactly the one version identified by key.
func (e *Engine) IsCompatibleVersion(ctx context.Context, key types.SchemaVersionKey, text string) (bool, error) {
	existing, err := e.GetSchemaVersionInfo(ctx, key)
	if err != nil {
		return false, err
	}

	meta, found, err := e.getSchemaMetadataRecord(ctx, key.SchemaName)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("%w: schema metadata %q", regerr.ErrSchemaNotFound, key.SchemaName)
	}

	provider, err := e.providerFor(meta.Type)
	if err != nil {
		return false, err
	}
	return provider.IsCompatible(text, []string{existing.SchemaText}, meta.Compatibility)
}
