package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orbital-ai/orbital/internal/data"
	"github.com/orbital-ai/orbital/internal/types"
)

func datasetIDParam(r *http.Request) (types.DatasetID, bool) {
	id := chi.URLParam(r, "datasetID")
	return types.DatasetID(id), types.IsUUID(id)
}

// UploadDataset ingests one or more CSV files as a new dataset. Each file
// becomes a table named after the file.
func (h *Handler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(data.MaxUploadBytes); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		Error(w, http.StatusBadRequest, "no files uploaded; use form field 'files'")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = strings.TrimSuffix(files[0].Filename, ".csv")
	}

	ds := &types.Dataset{
		ID:        types.NewDatasetID(),
		Name:      name,
		Owner:     r.FormValue("createdBy"),
		Visibility: types.Visibility(r.FormValue("visibility")),
	}
	prefix := data.DatasetTablePrefix(ds.ID)

	for _, fh := range files {
		if fh.Size > data.MaxUploadBytes {
			Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file %q exceeds the upload limit", fh.Filename))
			return
		}
		f, err := fh.Open()
		if err != nil {
			Error(w, http.StatusBadRequest, "open upload: "+err.Error())
			return
		}
		table, err := data.ParseCSV(f)
		f.Close()
		if err != nil {
			Error(w, http.StatusBadRequest, fmt.Sprintf("parse %q: %s", fh.Filename, err))
			return
		}

		short := data.SanitizeTableName(fh.Filename)
		physical := prefix + short
		rowCount, err := h.engine.LoadTable(r.Context(), physical, table)
		if err != nil {
			Error(w, http.StatusInternalServerError, fmt.Sprintf("load %q: %s", fh.Filename, err))
			return
		}
		cols, err := h.engine.TableColumns(r.Context(), physical)
		if err != nil {
			Error(w, http.StatusInternalServerError, err.Error())
			return
		}
		ds.Tables = append(ds.Tables, types.TableInfo{
			Name:         short,
			PhysicalName: physical,
			RowCount:     rowCount,
			Columns:      cols,
		})
	}

	if err := h.store.CreateDataset(r.Context(), ds); err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusCreated, ds)
}

// ListDatasets returns datasets visible to the caller.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.store.ListDatasets(r.Context(), r.URL.Query().Get("createdBy"))
	if err != nil {
		storeError(w, err)
		return
	}
	if datasets == nil {
		datasets = []*types.Dataset{}
	}
	JSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

// GetDataset returns dataset metadata with table descriptors.
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dataset id")
		return
	}
	ds, err := h.store.GetDataset(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, ds)
}

// UpdateDataset changes name and/or visibility.
func (h *Handler) UpdateDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dataset id")
		return
	}
	var req struct {
		Name       *string           `json:"name"`
		Visibility *types.Visibility `json:"visibility"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == nil && req.Visibility == nil {
		Error(w, http.StatusBadRequest, "nothing to update")
		return
	}
	ds, err := h.store.UpdateDataset(r.Context(), id, req.Name, req.Visibility)
	if err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, ds)
}

// DeleteDataset removes the dataset metadata and drops its tables. Sessions
// still referencing it simply lose access; their derived tables remain.
func (h *Handler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dataset id")
		return
	}
	ds, err := h.store.GetDataset(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	for _, t := range ds.Tables {
		if err := h.engine.DropTable(r.Context(), t.PhysicalName); err != nil {
			Error(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err := h.store.DeleteDataset(r.Context(), id); err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PreviewTable pages through a dataset table's rows.
func (h *Handler) PreviewTable(w http.ResponseWriter, r *http.Request) {
	id, ok := datasetIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dataset id")
		return
	}
	ds, err := h.store.GetDataset(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}

	short := chi.URLParam(r, "table")
	var physical string
	for _, t := range ds.Tables {
		if t.Name == short {
			physical = t.PhysicalName
			break
		}
	}
	if physical == "" {
		Error(w, http.StatusNotFound, fmt.Sprintf("table %q not found in dataset", short))
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > data.MaxResultRows {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	// Dataset tables are readable without session scoping; build a one-off
	// loader bound to just this dataset.
	loader := data.NewLoader(h.engine, types.SessionID(""), []*types.Dataset{ds})
	rows, cols, err := loader.GetRows(r.Context(), short, limit, offset)
	if err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"data":     rows,
		"columns":  cols,
		"rowCount": len(rows),
		"offset":   offset,
	})
}

// PromoteDerivedTable copies a session's derived table into a new durable
// dataset.
func (h *Handler) PromoteDerivedTable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID   string `json:"sessionId"`
		Table       string `json:"table"`
		DatasetName string `json:"datasetName"`
		CreatedBy   string `json:"createdBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !types.IsUUID(req.SessionID) || req.Table == "" {
		Error(w, http.StatusBadRequest, "sessionId and table are required")
		return
	}

	sessionID := types.SessionID(req.SessionID)
	loader := data.NewLoader(h.engine, sessionID, nil)
	derived, err := loader.ListDerivedTables(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	var src *types.DerivedTable
	for i := range derived {
		if derived[i].Name == req.Table {
			src = &derived[i]
			break
		}
	}
	if src == nil {
		Error(w, http.StatusNotFound, fmt.Sprintf("derived table %q not found in session", req.Table))
		return
	}

	name := strings.TrimSpace(req.DatasetName)
	if name == "" {
		name = req.Table
	}
	ds := &types.Dataset{
		ID:          types.NewDatasetID(),
		Name:        name,
		Owner:       req.CreatedBy,
		DerivedFrom: req.SessionID,
	}
	physical := data.DatasetTablePrefix(ds.ID) + req.Table
	if err := h.engine.CopyTable(r.Context(), src.PhysicalName, physical); err != nil {
		Error(w, http.StatusInternalServerError, "promote table: "+err.Error())
		return
	}
	ds.Tables = []types.TableInfo{{
		Name:         req.Table,
		PhysicalName: physical,
		RowCount:     src.RowCount,
		Columns:      src.Columns,
	}}
	if err := h.store.CreateDataset(r.Context(), ds); err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusCreated, ds)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
