package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/adminjobs/internal/core"
	"github.com/JonMunkholm/adminjobs/internal/format"
)

// entityInfo describes one importable/exportable entity kind.
type entityInfo struct {
	Kind          core.EntityKind `json:"kind"`
	Label         string          `json:"label"`
	Columns       []string        `json:"columns"`
	ImportColumns []string        `json:"importColumns"`
}

// handleListEntities lists the registered entity kinds.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	adapters := s.service.Entities()
	out := make([]entityInfo, len(adapters))
	for i, a := range adapters {
		out[i] = entityInfo{
			Kind:          a.Kind(),
			Label:         core.LabelOf(a),
			Columns:       a.Columns(),
			ImportColumns: core.TemplateColumns(a),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": out})
}

// handleDownloadTemplate returns an empty CSV with the import header row.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	kind := entityParam(r)
	adapter, ok := s.service.Adapter(kind)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownEntity, kind))
		return
	}

	fw, err := format.NewWriter(format.CSV)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := fw.WriteHeader(core.TemplateColumns(adapter)); err != nil {
		s.respondError(w, r, err)
		return
	}
	data, err := fw.Close()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeDownload(w, core.Download{
		FileName:    string(kind) + "_import_template." + format.CSV.Extension(),
		ContentType: format.CSV.ContentType(),
		Bytes:       data,
	})
}

// handleListHistory pages through the tenant's import/export history.
// Query: type=import|export, entity, page, pageSize.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var op *core.OperationType
	if raw := strings.TrimSpace(q.Get("type")); raw != "" {
		parsed, err := core.ParseOperationType(raw)
		if err != nil {
			s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidFilters, err))
			return
		}
		op = &parsed
	}

	page, err := s.service.ListHistory(r.Context(), tenantOf(r), op,
		core.EntityKind(strings.TrimSpace(q.Get("entity"))),
		parseIntParam(r, "page", 1),
		parseIntParam(r, "pageSize", 0),
	)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	writeJSON(w, http.StatusOK, page)
}

// healthResponse reports pool occupancy.
type healthResponse struct {
	Status string          `json:"status"`
	Pool   core.PoolStatus `json:"pool"`
}

// handleHealth answers 200 while the pool accepts work and 503 once it is
// shutting down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.service.PoolStatus()
	if st.Closed {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "draining", Pool: st})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Pool: st})
}
