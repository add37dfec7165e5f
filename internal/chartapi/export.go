package chartapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tidb-charts/internal/chartresult"
	"tidb-charts/internal/planner"
)

// Export formats accepted by the format parameter.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const xlsxSheet = "data"

// Export answers GET /api/chart-data/export with the same rows as
// /api/chart-data, as a CSV or XLSX attachment.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX {
		writeError(w, r, &planner.InvalidRequestError{
			Param:   "format",
			Message: "Invalid format: " + format + ". Allowed: csv, xlsx",
		})
		return
	}

	req, err := ParseChartRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.svc.ChartData(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	header := append([]string{req.CategoryAxis}, req.ValueAxes...)
	var body bytes.Buffer
	var contentType string
	switch format {
	case FormatXLSX:
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = writeXLSX(&body, header, resp.Data)
	default:
		contentType = "text/csv; charset=utf-8"
		err = writeCSV(&body, header, resp.Data)
	}
	if err != nil {
		writeError(w, r, fmt.Errorf("export %s: %w", format, err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, exportFileName(req.Table), format))
	w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body.Bytes())
	}
}

func writeCSV(buf *bytes.Buffer, header []string, rows []chartresult.Row) error {
	writer := csv.NewWriter(buf)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		record = record[:0]
		record = append(record, formatCell(row.Category))
		for _, v := range row.Values {
			record = append(record, formatCell(v))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeXLSX(buf *bytes.Buffer, header []string, rows []chartresult.Row) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return err
	}

	headerCells := make([]interface{}, len(header))
	for i, name := range header {
		headerCells[i] = name
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &headerCells); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cells := make([]interface{}, 0, len(row.Values)+1)
		cells = append(cells, row.Category)
		cells = append(cells, row.Values...)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	return f.Write(buf)
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

func exportFileName(table string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, table)
	if name == "" {
		return "chart-data"
	}
	return name
}
