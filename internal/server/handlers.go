package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/logger"
	"github.com/koustreak/geori/internal/postgis"
	"github.com/koustreak/geori/internal/rowsource"
	"github.com/koustreak/geori/internal/schema"
)

type tableInfo struct {
	Schema         string          `json:"schema"`
	Name           string          `json:"name"`
	Columns        []schema.Column `json:"columns"`
	GeometryColumn string          `json:"geometry_column,omitempty"`
	SRID           int             `json:"srid,omitempty"`
	GeometryType   string          `json:"geometry_type,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Handle().Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables, err := s.db.Tables(r.Context(), r.URL.Query().Get("schema"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) describeTable(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	tbl, err := s.db.Table(ctx, chi.URLParam(r, "table"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	d := tbl.Descriptor()
	info := tableInfo{Schema: d.Schema, Name: d.Name, Columns: d.Columns}
	if geom, ok := d.GeometryColumn(); ok {
		info.GeometryColumn = geom
		if info.SRID, err = tbl.SRID(ctx); err != nil {
			s.writeError(w, r, err)
			return
		}
		if info.GeometryType, err = tbl.GeometryType(ctx); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) tableRows(w http.ResponseWriter, r *http.Request) {
	spec, err := s.parseQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	tbl, err := s.db.Table(ctx, chi.URLParam(r, "table"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, f := range spec.Fields {
		if _, ok := tbl.Descriptor().Lookup(f); !ok {
			s.writeError(w, r, errs.Newf(errs.ErrKindUnknownColumn, "column %q does not exist in %s", f, tbl.Name()))
			return
		}
	}

	res, err := tbl.Query(ctx, spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	src, err := rowsource.FromRows(res)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rows, err := rowsource.Collect(src)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	header := src.Header()
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(header))
		for i, col := range header {
			if b, ok := row[i].([]byte); ok {
				m[col] = string(b)
			} else {
				m[col] = row[i]
			}
		}
		out = append(out, m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out, "count": len(out)})
}

// parseQuery builds a QuerySpec from query parameters. The row limit is
// always applied and capped at MaxRows.
func (s *Server) parseQuery(r *http.Request) (postgis.QuerySpec, error) {
	q := r.URL.Query()
	spec := postgis.QuerySpec{IncludeGeometry: true, Limit: s.maxRows}

	if f := q.Get("fields"); f != "" {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				spec.Fields = append(spec.Fields, name)
			}
		}
	}
	if g := q.Get("geom"); g != "" {
		b, err := strconv.ParseBool(g)
		if err != nil {
			return spec, errs.Newf(errs.ErrKindInvalidInput, "geom must be a boolean, got %q", g)
		}
		spec.IncludeGeometry = b
	}
	if v := q.Get("srid"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return spec, errs.Newf(errs.ErrKindInvalidInput, "srid must be a non-negative integer, got %q", v)
		}
		spec.TargetSRID = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return spec, errs.Newf(errs.ErrKindInvalidInput, "limit must be a positive integer, got %q", v)
		}
		spec.Limit = min(n, s.maxRows)
	}
	return spec, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, nil)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: errs.KindOf(err).String()})
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput, errs.ErrKindUnknownColumn:
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
