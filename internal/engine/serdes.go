package engine

import (
	"context"
	"fmt"
	"time"

	"schemaregistry/internal/filestore"
	"schemaregistry/internal/regerr"
	"schemaregistry/internal/schema/types"
	"schemaregistry/internal/storage"
)

// SerDesManager binds uploaded serializer/deserializer artifacts to
// schema identities. Grounded on the original registry's file-storage
// and serdes-mapping methods, corrected against the brittle deserializer
// selection predicate noted for that implementation.
type SerDesManager struct {
	store storage.Port
	files filestore.Port
}

// NewSerDesManager creates a SerDesManager backed by store for metadata
// and files for artifact bytes.
func NewSerDesManager(store storage.Port, files filestore.Port) *SerDesManager {
	return &SerDesManager{store: store, files: files}
}

// UploadFile stores content in the file store under a freshly generated
// id and returns that id; callers resolve artifacts by the returned id on
// download. The whole artifact is passed as one byte slice, not streamed.
func (m *SerDesManager) UploadFile(ctx context.Context, name string, content []byte) (string, error) {
	id, err := m.files.Upload(ctx, name, content)
	if err != nil {
		return "", fmt.Errorf("%w: upload file: %v", regerr.ErrIO, err)
	}
	return id, nil
}

// DownloadFile returns the bytes stored under fileId.
func (m *SerDesManager) DownloadFile(ctx context.Context, fileId string) ([]byte, error) {
	content, err := m.files.Download(ctx, fileId)
	if err != nil {
		return nil, fmt.Errorf("%w: download file: %v", regerr.ErrIO, err)
	}
	return content, nil
}

// DownloadJar resolves the serdes record for serDesId, then returns its
// artifact bytes from the file store.
func (m *SerDesManager) DownloadJar(ctx context.Context, serDesId int64) ([]byte, error) {
	info, found, err := m.GetSerDesInfo(ctx, serDesId)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: serdes %d", regerr.ErrSerDesNotFound, serDesId)
	}
	return m.DownloadFile(ctx, info.FileId)
}

// AddSerDesInfo allocates an id, stamps a timestamp, and persists info.
func (m *SerDesManager) AddSerDesInfo(ctx context.Context, info types.SerDesInfo) (int64, error) {
	id, err := m.store.NextId(ctx, storage.NamespaceSerDesInfo)
	if err != nil {
		return 0, fmt.Errorf("%w: allocate serdes id: %v", regerr.ErrIO, err)
	}
	info.Id = id
	info.Timestamp = time.Now()

	rec, err := storage.ToRecord(info)
	if err != nil {
		return 0, fmt.Errorf("%w: encode serdes info: %v", regerr.ErrIO, err)
	}
	if err := m.store.Add(ctx, storage.NamespaceSerDesInfo, rec); err != nil {
		return 0, fmt.Errorf("%w: persist serdes info: %v", regerr.ErrIO, err)
	}
	return id, nil
}

// GetSerDesInfo is a primary-key lookup by serdes id.
func (m *SerDesManager) GetSerDesInfo(ctx context.Context, id int64) (types.SerDesInfo, bool, error) {
	rec, found, err := m.store.Get(ctx, storage.NamespaceSerDesInfo, id)
	if err != nil {
		return types.SerDesInfo{}, false, fmt.Errorf("%w: get serdes info: %v", regerr.ErrIO, err)
	}
	if !found {
		return types.SerDesInfo{}, false, nil
	}
	var info types.SerDesInfo
	if err := storage.FromRecord(rec, &info); err != nil {
		return types.SerDesInfo{}, false, fmt.Errorf("%w: decode serdes info: %v", regerr.ErrIO, err)
	}
	return info, true, nil
}

// MapSerDesWithSchema binds serDesId to schemaMetadataId, failing with
// ErrSerDesNotFound if no such serdes record exists.
func (m *SerDesManager) MapSerDesWithSchema(ctx context.Context, schemaMetadataId, serDesId int64) error {
	_, found, err := m.GetSerDesInfo(ctx, serDesId)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: serdes %d", regerr.ErrSerDesNotFound, serDesId)
	}

	mapping := types.SchemaSerDesMapping{
		SchemaMetadataId: schemaMetadataId,
		SerDesId:         serDesId,
		Timestamp:        time.Now(),
	}
	rec, err := storage.ToRecord(mapping)
	if err != nil {
		return fmt.Errorf("%w: encode schema serdes mapping: %v", regerr.ErrIO, err)
	}
	if err := m.store.Add(ctx, storage.NamespaceSerDesMapping, rec); err != nil {
		return fmt.Errorf("%w: persist schema serdes mapping: %v", regerr.ErrIO, err)
	}
	return nil
}

// GetSchemaSerializers lists the serdes artifacts bound to
// schemaMetadataId that are flagged as serializers.
func (m *SerDesManager) GetSchemaSerializers(ctx context.Context, schemaMetadataId int64) ([]types.SerDesInfo, error) {
	return m.getSerDesInfos(ctx, schemaMetadataId, true)
}

// GetSchemaDeserializers lists the serdes artifacts bound to
// schemaMetadataId that are flagged as deserializers. Selection is
// serDes.IsSerializer == requested directly, rather than the equivalent
// but harder-to-read (requested && serDes.IsSerializer) || !serDes.IsSerializer
// form the original registry used.
func (m *SerDesManager) GetSchemaDeserializers(ctx context.Context, schemaMetadataId int64) ([]types.SerDesInfo, error) {
	return m.getSerDesInfos(ctx, schemaMetadataId, false)
}

func (m *SerDesManager) getSerDesInfos(ctx context.Context, schemaMetadataId int64, isSerializer bool) ([]types.SerDesInfo, error) {
	recs, err := m.store.Find(ctx, storage.NamespaceSerDesMapping, []storage.Filter{
		{Column: "schemaMetadataId", Value: schemaMetadataId},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: find schema serdes mappings: %v", regerr.ErrIO, err)
	}

	var out []types.SerDesInfo
	for _, rec := range recs {
		var mapping types.SchemaSerDesMapping
		if err := storage.FromRecord(rec, &mapping); err != nil {
			return nil, fmt.Errorf("%w: decode schema serdes mapping: %v", regerr.ErrIO, err)
		}
		info, found, err := m.GetSerDesInfo(ctx, mapping.SerDesId)
		if err != nil {
			return nil, err
		}
		if found && info.IsSerializer == isSerializer {
			out = append(out, info)
		}
	}
	return out, nil
}
