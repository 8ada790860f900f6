// Package rest is a thin Gin adapter over the schema lifecycle engine.
// It carries no logic of its own beyond request decoding, error-kind to
// status-code mapping, and response shaping, in the teacher's routes.go
// idiom.
package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schemaregistry/internal/engine"
	"schemaregistry/internal/regerr"
	"schemaregistry/internal/schema/types"
)

// Server holds the dependencies every handler closes over.
type Server struct {
	engine *engine.Engine
	serdes *engine.SerDesManager
	log    *zap.Logger
}

// New creates a Server wrapping eng and serdes, logging through log.
func New(eng *engine.Engine, serdes *engine.SerDesManager, log *zap.Logger) *Server {
	return &Server{engine: eng, serdes: serdes, log: log}
}

// SchemaRequest is the payload for registering or checking a schema.
type SchemaRequest struct {
	Schema        string `json:"schema"`
	SchemaType    string `json:"schemaType,omitempty"`
	Compatibility string `json:"compatibility,omitempty"`
	Description   string `json:"description,omitempty"`
}

// SchemaResponse returns the assigned version number.
type SchemaResponse struct {
	Version int `json:"version"`
}

// SchemaVersionResponse is one version row.
type SchemaVersionResponse struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Schema      string `json:"schema"`
	Fingerprint string `json:"fingerprint"`
	Description string `json:"description,omitempty"`
}

// CompatibilityResponse indicates a compatibility check result.
type CompatibilityResponse struct {
	IsCompatible bool `json:"is_compatible"`
}

// ConfigResponse returns a schema's compatibility policy.
type ConfigResponse struct {
	CompatibilityLevel string `json:"compatibilityLevel"`
}

// SerDesRequest registers a serdes binding. FileId must come from a prior
// call to POST /files.
type SerDesRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	FileId       string `json:"fileId"`
	ClassName    string `json:"className"`
	IsSerializer bool   `json:"isSerializer"`
}

// SerDesResponse returns the assigned serdes id.
type SerDesResponse struct {
	Id int64 `json:"id"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// SetupRouter builds a Gin router wired to s's handlers.
func (s *Server) SetupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/vnd.schemaregistry.v1+json")
		c.Next()
	})

	r.GET("/schemas", s.listSchemas)

	schemaGroup := r.Group("/schemas/:name")
	{
		schemaGroup.POST("/versions", s.addSchemaVersion)
		schemaGroup.GET("/versions", s.listVersions)
		schemaGroup.GET("/versions/:version", s.getSchemaVersion)
		schemaGroup.GET("/config", s.getConfig)
		schemaGroup.PUT("/config", s.updateConfig)
		schemaGroup.POST("/compatibility", s.checkCompatibility)
		schemaGroup.POST("/compatibility/:version", s.checkCompatibilityAgainstVersion)
	}

	r.GET("/search/fields", s.findSchemasWithFields)

	r.POST("/files", s.uploadFile)
	r.GET("/files/:id", s.downloadFile)
	r.POST("/serdes", s.addSerDesInfo)
	r.GET("/serdes/:id", s.getSerDesInfo)
	r.GET("/serdes/:id/jar", s.downloadJar)
	r.POST("/schemas/:name/serdes/:serDesId", s.mapSerDesWithSchema)
	r.GET("/schemas/:name/serializers", s.getSchemaSerializers)
	r.GET("/schemas/:name/deserializers", s.getSchemaDeserializers)

	return r
}

func (s *Server) listSchemas(c *gin.Context) {
	metas, err := s.engine.FindSchemaMetadata(c.Request.Context(), nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	names := make([]string, 0, len(metas))
	for _, m := range metas {
		names = append(names, m.Name)
	}
	c.JSON(http.StatusOK, names)
}

func (s *Server) addSchemaVersion(c *gin.Context) {
	name := c.Param("name")

	var req SchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42201, Message: "invalid JSON"})
		return
	}

	var (
		version int
		err     error
	)
	if req.SchemaType != "" {
		meta := types.SchemaMetadata{
			Name:          name,
			Type:          types.SchemaType(req.SchemaType),
			Compatibility: types.CompatibilityLevel(req.Compatibility),
		}
		if meta.Compatibility == "" {
			meta.Compatibility = types.Backward
		}
		version, err = s.engine.AddSchemaVersion(c.Request.Context(), meta, req.Schema, req.Description)
	} else {
		version, err = s.engine.AddSchemaVersionByName(c.Request.Context(), name, req.Schema, req.Description)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SchemaResponse{Version: version})
}

func (s *Server) listVersions(c *gin.Context) {
	name := c.Param("name")
	versions, err := s.engine.FindAllVersions(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]int, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.Version)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getSchemaVersion(c *gin.Context) {
	name := c.Param("name")
	versionParam := c.Param("version")

	var info *types.SchemaVersionInfo
	var err error
	if versionParam == "latest" {
		info, err = s.engine.GetLatestSchemaVersionInfo(c.Request.Context(), name)
		if err == nil && info == nil {
			err = errors.New("no versions found")
		}
	} else {
		version, parseErr := parseVersion(versionParam)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42202, Message: "invalid version"})
			return
		}
		info, err = s.engine.GetSchemaVersionInfo(c.Request.Context(), types.SchemaVersionKey{SchemaName: name, Version: version})
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, SchemaVersionResponse{
		Name:        info.Name,
		Version:     info.Version,
		Schema:      info.SchemaText,
		Fingerprint: info.Fingerprint,
		Description: info.Description,
	})
}

func (s *Server) getConfig(c *gin.Context) {
	name := c.Param("name")
	meta, found, err := s.engine.GetSchemaMetadata(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		s.fail(c, regerr.ErrSchemaNotFound)
		return
	}
	c.JSON(http.StatusOK, ConfigResponse{CompatibilityLevel: string(meta.Compatibility)})
}

// ConfigRequest sets a schema's compatibility policy going forward. It
// does not retroactively re-validate existing versions.
type ConfigRequest struct {
	CompatibilityLevel string `json:"compatibilityLevel"`
}

func (s *Server) updateConfig(c *gin.Context) {
	name := c.Param("name")
	var req ConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42201, Message: "invalid JSON"})
		return
	}
	if err := s.engine.UpdateCompatibility(c.Request.Context(), name, types.CompatibilityLevel(req.CompatibilityLevel)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ConfigResponse{CompatibilityLevel: req.CompatibilityLevel})
}

func (s *Server) checkCompatibility(c *gin.Context) {
	name := c.Param("name")
	var req SchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42201, Message: "invalid JSON"})
		return
	}

	compatible, err := s.engine.IsCompatible(c.Request.Context(), name, req.Schema)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, CompatibilityResponse{IsCompatible: compatible})
}

func (s *Server) checkCompatibilityAgainstVersion(c *gin.Context) {
	name := c.Param("name")
	version, err := parseVersion(c.Param("version"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42202, Message: "invalid version"})
		return
	}

	var req SchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42201, Message: "invalid JSON"})
		return
	}

	compatible, err := s.engine.IsCompatibleVersion(c.Request.Context(), types.SchemaVersionKey{SchemaName: name, Version: version}, req.Schema)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, CompatibilityResponse{IsCompatible: compatible})
}

func (s *Server) findSchemasWithFields(c *gin.Context) {
	query := types.SchemaFieldQuery{
		Name:      c.Query("name"),
		Namespace: c.Query("namespace"),
		Type:      c.Query("type"),
	}
	keys, err := s.engine.FindSchemasWithFields(c.Request.Context(), query)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (s *Server) uploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42203, Message: "file field required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer file.Close()

	buf := make([]byte, header.Size)
	if _, err := file.Read(buf); err != nil {
		s.fail(c, err)
		return
	}

	id, err := s.serdes.UploadFile(c.Request.Context(), header.Filename, buf)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fileId": id})
}

func (s *Server) downloadFile(c *gin.Context) {
	content, err := s.serdes.DownloadFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", content)
}

func (s *Server) downloadJar(c *gin.Context) {
	id, err := parseId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42204, Message: "invalid serdes id"})
		return
	}
	content, err := s.serdes.DownloadJar(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/java-archive", content)
}

func (s *Server) addSerDesInfo(c *gin.Context) {
	var req SerDesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42201, Message: "invalid JSON"})
		return
	}
	id, err := s.serdes.AddSerDesInfo(c.Request.Context(), types.SerDesInfo{
		Name:         req.Name,
		Description:  req.Description,
		FileId:       req.FileId,
		ClassName:    req.ClassName,
		IsSerializer: req.IsSerializer,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SerDesResponse{Id: id})
}

func (s *Server) getSerDesInfo(c *gin.Context) {
	id, err := parseId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42204, Message: "invalid serdes id"})
		return
	}
	info, found, err := s.serdes.GetSerDesInfo(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		s.fail(c, regerr.ErrSerDesNotFound)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) mapSerDesWithSchema(c *gin.Context) {
	meta, found, err := s.engine.GetSchemaMetadata(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		s.fail(c, regerr.ErrSchemaNotFound)
		return
	}
	serDesId, err := parseId(c.Param("serDesId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 42204, Message: "invalid serdes id"})
		return
	}
	if err := s.serdes.MapSerDesWithSchema(c.Request.Context(), meta.Id, serDesId); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getSchemaSerializers(c *gin.Context) {
	s.listSerDes(c, true)
}

func (s *Server) getSchemaDeserializers(c *gin.Context) {
	s.listSerDes(c, false)
}

func (s *Server) listSerDes(c *gin.Context, serializers bool) {
	meta, found, err := s.engine.GetSchemaMetadata(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		s.fail(c, regerr.ErrSchemaNotFound)
		return
	}

	var infos []types.SerDesInfo
	if serializers {
		infos, err = s.serdes.GetSchemaSerializers(c.Request.Context(), meta.Id)
	} else {
		infos, err = s.serdes.GetSchemaDeserializers(c.Request.Context(), meta.Id)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}

// fail maps an engine error kind to an HTTP status and logs unexpected
// failures, replacing the teacher's brittle err.Error()-string
// comparisons with errors.Is against the registry's sentinel taxonomy.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, regerr.ErrSchemaNotFound), errors.Is(err, regerr.ErrSerDesNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{ErrorCode: 40401, Message: err.Error()})
	case errors.Is(err, regerr.ErrInvalidSchema):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{ErrorCode: 42200, Message: err.Error()})
	case errors.Is(err, regerr.ErrIncompatibleSchema):
		c.JSON(http.StatusConflict, ErrorResponse{ErrorCode: 40901, Message: err.Error()})
	case errors.Is(err, regerr.ErrConfiguration):
		c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: 40001, Message: err.Error()})
	default:
		s.log.Error("unhandled registry error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{ErrorCode: 50000, Message: err.Error()})
	}
}

func parseVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func parseId(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
