package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forgekit/assetpipe/pkg/assetdb"
	"github.com/forgekit/assetpipe/pkg/chash"
	"github.com/forgekit/assetpipe/pkg/guid"
)

// version is set via -ldflags at build time.
var version = "dev"

// SetVersion sets the version string (called from main).
func SetVersion(v string) { version = v }

// HealthResponse is the response for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the response for /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatsResponse summarizes the pipeline's job pool.
type StatsResponse struct {
	PoolWorkers int  `json:"pool_workers"`
	PoolRunning bool `json:"pool_running"`
	QueuedJobs  int  `json:"queued_jobs"`
}

// ArtifactRef names one compiled output of an asset.
type ArtifactRef struct {
	ContentHash string `json:"content_hash"`
	TypeHash    uint32 `json:"type_hash"`
}

// AssetResponse represents an AssetRecord in API responses.
type AssetResponse struct {
	GUID             string        `json:"guid"`
	SourceURI        string        `json:"source_uri"`
	FriendlyName     string        `json:"friendly_name,omitempty"`
	IsDirectory      bool          `json:"is_directory"`
	MainArtifact     ArtifactRef   `json:"main_artifact"`
	Artifacts        []ArtifactRef `json:"artifacts"`
	SrcTimestamp     int64         `json:"src_timestamp"`
	SidecarTimestamp int64         `json:"sidecar_timestamp"`
	SourceHash       string        `json:"source_hash"`
}

// SearchResultItem represents a single search-index match.
type SearchResultItem struct {
	GUID         string `json:"guid"`
	URI          string `json:"uri"`
	FriendlyName string `json:"friendly_name,omitempty"`
	TypeHash     uint32 `json:"type_hash"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Query   string             `json:"query"`
	Results []SearchResultItem `json:"results"`
	Total   int                `json:"total"`
}

// RefreshRequest is the request body for /refresh.
type RefreshRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "assetpiped"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		PoolWorkers: s.pipe.PoolWorkers(),
		PoolRunning: s.pipe.PoolRunning(),
		QueuedJobs:  s.pipe.QueuedJobs(),
	})
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	g, err := guid.Parse(chi.URLParam(r, "guid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guid")
		return
	}

	var rec *assetdb.Record
	err = s.pipe.DB().WithRead(func(tx *assetdb.ReadTxn) error {
		r, err := tx.GetAsset(g)
		rec = r
		return err
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(rec))
}

func (s *Server) handleGetAssetByPath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}

	var rec *assetdb.Record
	err := s.pipe.DB().WithRead(func(tx *assetdb.ReadTxn) error {
		r, err := tx.GetAssetByPath(path)
		rec = r
		return err
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(rec))
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	raw, err := hex.DecodeString(chi.URLParam(r, "hash"))
	if err != nil || len(raw) != chash.Size {
		writeError(w, http.StatusBadRequest, "invalid artifact hash")
		return
	}
	var h chash.Hash
	copy(h[:], raw)

	data, err := s.pipe.Artifacts().Get(h)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleReimportAsset(w http.ResponseWriter, r *http.Request) {
	g, err := guid.Parse(chi.URLParam(r, "guid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid guid")
		return
	}
	if err := s.pipe.Reimport(g); err != nil {
		writeError(w, http.StatusInternalServerError, "reimport failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	s.pipe.Refresh(req.Path)
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 20

	results := s.pipe.Search().Search(query, limit)
	items := make([]SearchResultItem, 0, len(results))
	for _, e := range results {
		items = append(items, SearchResultItem{
			GUID:         e.GUID.String(),
			URI:          e.URI,
			FriendlyName: e.FriendlyName,
			TypeHash:     e.TypeHash,
		})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: query, Results: items, Total: len(items)})
}

func toAssetResponse(rec *assetdb.Record) AssetResponse {
	artifacts := make([]ArtifactRef, 0, len(rec.Artifacts))
	for _, a := range rec.Artifacts {
		artifacts = append(artifacts, ArtifactRef{ContentHash: a.ContentHash.String(), TypeHash: a.TypeHash.Hash})
	}
	return AssetResponse{
		GUID:             rec.GUID.String(),
		SourceURI:        rec.SourceURI,
		FriendlyName:     rec.FriendlyName,
		IsDirectory:      rec.IsDirectory,
		MainArtifact:     ArtifactRef{ContentHash: rec.MainArtifact.ContentHash.String(), TypeHash: rec.MainArtifact.TypeHash.Hash},
		Artifacts:        artifacts,
		SrcTimestamp:     rec.SrcTimestamp,
		SidecarTimestamp: rec.SidecarTimestamp,
		SourceHash:       rec.SourceHash.String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
