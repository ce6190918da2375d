package host

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hakawati/hakawati/internal/store"
)

// sqlRequest names the database by resource name or "sqlite:" descriptor.
type sqlRequest struct {
	DB     string `json:"db"`
	Query  string `json:"query"`
	Values []any  `json:"values"`
}

type executeResult struct {
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId"`
}

// database resolves a published *sql.DB by resource name or descriptor.
func (a *App) database(ref string) (*sql.DB, error) {
	name := ref
	if strings.HasPrefix(ref, store.DescriptorScheme) {
		name = store.ResourceName(ref)
	}
	v, ok := a.Resource(name)
	if !ok {
		return nil, fmt.Errorf("database %q is not loaded", ref)
	}
	db, ok := v.(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("resource %q is not a database", name)
	}
	return db, nil
}

func (a *App) decodeSQL(w http.ResponseWriter, r *http.Request) (*sql.DB, sqlRequest, bool) {
	var req sqlRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return nil, req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return nil, req, false
	}
	db, err := a.database(req.DB)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "unknown_database", err.Error())
		return nil, req, false
	}
	for i, v := range req.Values {
		req.Values[i] = bindValue(v)
	}
	return db, req, true
}

func (a *App) handleExecute(w http.ResponseWriter, r *http.Request) {
	db, req, ok := a.decodeSQL(w, r)
	if !ok {
		return
	}
	res, err := db.ExecContext(r.Context(), req.Query, req.Values...)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "sql_error", err.Error())
		return
	}
	var out executeResult
	out.RowsAffected, _ = res.RowsAffected()
	out.LastInsertID, _ = res.LastInsertId()
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleSelect(w http.ResponseWriter, r *http.Request) {
	db, req, ok := a.decodeSQL(w, r)
	if !ok {
		return
	}
	rows, err := db.QueryContext(r.Context(), req.Query, req.Values...)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "sql_error", err.Error())
		return
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "sql_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// scanRows returns every row as a column-name keyed object. BLOB columns
// encode as base64 strings.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// bindValue maps decoded JSON onto SQLite bind types: integral numbers bind
// as INTEGER, others as REAL, and arrays or objects as their JSON text.
func bindValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any, []any:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		_ = enc.Encode(x)
		return strings.TrimSuffix(buf.String(), "\n")
	default:
		return v
	}
}
