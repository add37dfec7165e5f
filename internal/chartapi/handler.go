// Package chartapi serves the chart-data HTTP endpoints.
package chartapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tidb-charts/internal/chartresult"
	"tidb-charts/internal/chartsvc"
	"tidb-charts/internal/logging"
	"tidb-charts/internal/planner"
)

// Route paths served by Handler.
const (
	ChartDataPath   = "/api/chart-data"
	ChartExportPath = "/api/chart-data/export"
	ChartSchemaPath = "/api/chart-schema"
)

// ChartService is the part of chartsvc.Service the handlers use.
type ChartService interface {
	ChartData(ctx context.Context, req planner.ChartRequest) (*chartresult.Response, error)
	Describe(ctx context.Context, table string) (*chartsvc.TableDescription, error)
}

// Handler serves chart data, exports and table schemas.
type Handler struct {
	svc ChartService
}

// NewHandler creates chart HTTP handlers backed by svc.
func NewHandler(svc ChartService) *Handler {
	return &Handler{svc: svc}
}

// Register mounts every chart route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(ChartDataPath, h.ChartData)
	mux.HandleFunc(ChartExportPath, h.Export)
	mux.HandleFunc(ChartSchemaPath, h.Schema)
}

// ChartData answers GET /api/chart-data.
func (h *Handler) ChartData(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	resp, err := h.chartData(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) chartData(r *http.Request) (*chartresult.Response, error) {
	req, err := ParseChartRequest(r.URL.Query())
	if err != nil {
		return nil, err
	}
	return h.svc.ChartData(r.Context(), req)
}

// SchemaColumn describes one exposed column for axis pickers.
type SchemaColumn struct {
	Name    string `json:"name"`
	SQLType string `json:"sqlType"`
	Kind    string `json:"kind"`
}

// SchemaResponse is the body of GET /api/chart-schema.
type SchemaResponse struct {
	Success      bool           `json:"success"`
	Table        string         `json:"table"`
	IsView       bool           `json:"isView"`
	BucketColumn string         `json:"bucketColumn,omitempty"`
	Columns      []SchemaColumn `json:"columns"`
}

// Schema answers GET /api/chart-schema with the filtered live columns.
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	table := r.URL.Query().Get("table")
	if table == "" {
		writeError(w, r, &planner.InvalidRequestError{Param: "table", Message: "Missing required parameter: table"})
		return
	}

	desc, err := h.svc.Describe(r.Context(), table)
	if err != nil {
		writeError(w, r, err)
		return
	}

	columns := make([]SchemaColumn, 0, len(desc.Table.Columns))
	for _, col := range desc.Table.Columns {
		columns = append(columns, SchemaColumn{
			Name:    col.Name,
			SQLType: col.ColumnType,
			Kind:    col.Kind.String(),
		})
	}
	writeJSON(w, r, http.StatusOK, SchemaResponse{
		Success:      true,
		Table:        desc.Table.Name,
		IsView:       desc.Table.IsView,
		BucketColumn: desc.Profile.BucketColumn,
		Columns:      columns,
	})
}

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeJSON(w, r, http.StatusMethodNotAllowed, chartresult.NewErrorResponse(
		errors.New("method "+r.Method+" not allowed"),
	))
	return false
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.FromContext(r.Context())
	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("error_kind", chartsvc.ErrorKind(err)),
		slog.Int("status", status),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("chart request failed", attrs...)
	} else {
		logger.Debug("chart request rejected", attrs...)
	}

	writeJSON(w, r, status, chartresult.ErrorResponse{Success: false, Error: messageFor(err)})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Warn("failed to write response", slog.String("error", err.Error()))
	}
}
