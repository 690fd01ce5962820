package http

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
)

// ExportCSVHandler serves the full record set as CSV.
type ExportCSVHandler struct {
	service ReadService
	logger  *log.Logger
}

// NewExportCSVHandler constructs a ExportCSVHandler.
func NewExportCSVHandler(service ReadService, logger *log.Logger) (*ExportCSVHandler, error) {
	if service == nil {
		return nil, errors.New("export csv handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ExportCSVHandler{service: service, logger: logger}, nil
}

// ServeHTTP handles GET /api/v1/exports/telemetry.csv.
func (h *ExportCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	records, err := h.service.ListAll(r.Context())
	if err != nil {
		h.logger.Printf("export csv: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query telemetry store")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"device_id",
		"timestamp",
		"battery_level",
		"latitude",
		"longitude",
		"speed",
		"temperature",
		"status",
		"battery_health_status",
	})
	for _, record := range records {
		_ = writer.Write([]string{
			record.DeviceID,
			record.Timestamp,
			formatFloat(record.BatteryLevel),
			formatFloat(record.Location.Latitude),
			formatFloat(record.Location.Longitude),
			formatFloat(record.Speed),
			formatFloat(record.Temperature),
			record.Status,
			record.BatteryHealthStatus,
		})
	}
	writer.Flush()
}

// ExportXLSXHandler serves the full record set as a spreadsheet.
type ExportXLSXHandler struct {
	service ReadService
	logger  *log.Logger
}

// NewExportXLSXHandler constructs a ExportXLSXHandler.
func NewExportXLSXHandler(service ReadService, logger *log.Logger) (*ExportXLSXHandler, error) {
	if service == nil {
		return nil, errors.New("export xlsx handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ExportXLSXHandler{service: service, logger: logger}, nil
}

// ServeHTTP handles GET /api/v1/exports/telemetry.xlsx.
func (h *ExportXLSXHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	records, err := h.service.ListAll(r.Context())
	if err != nil {
		h.logger.Printf("export xlsx: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query telemetry store")
		return
	}

	payload, err := buildTelemetryXLSX(records)
	if err != nil {
		h.logger.Printf("export xlsx: render: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to render export")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="telemetry.xlsx"`)
	_, _ = w.Write(payload)
}

// ExportSummaryPDFHandler serves the fleet summary as a PDF report.
type ExportSummaryPDFHandler struct {
	service ReadService
	logger  *log.Logger
}

// NewExportSummaryPDFHandler constructs a ExportSummaryPDFHandler.
func NewExportSummaryPDFHandler(service ReadService, logger *log.Logger) (*ExportSummaryPDFHandler, error) {
	if service == nil {
		return nil, errors.New("export pdf handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ExportSummaryPDFHandler{service: service, logger: logger}, nil
}

// ServeHTTP handles GET /api/v1/exports/summary.pdf.
func (h *ExportSummaryPDFHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summary, err := h.service.Summarize(r.Context())
	if err != nil {
		if errors.Is(err, telemetry.ErrStoreNotFound) {
			writeError(w, http.StatusNotFound, "no devices found")
			return
		}
		h.logger.Printf("export pdf: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query telemetry store")
		return
	}

	payload, err := buildSummaryPDF(summary)
	if err != nil {
		h.logger.Printf("export pdf: render: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to render export")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="summary.pdf"`)
	_, _ = w.Write(payload)
}

func buildTelemetryXLSX(records []telemetry.Record) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "telemetry"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Device", "Timestamp", "Battery Level", "Latitude", "Longitude", "Speed", "Temperature", "Status", "Battery Health"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}
	for i, record := range records {
		row := i + 2
		values := []any{
			record.DeviceID,
			record.Timestamp,
			record.BatteryLevel,
			record.Location.Latitude,
			record.Location.Longitude,
			record.Speed,
			record.Temperature,
			record.Status,
			record.BatteryHealthStatus,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildSummaryPDF(summary telemetry.FleetSummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fleet Telemetry Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	rows := []struct {
		label string
		value int
	}{
		{"Total readings", summary.TotalDevices},
		{"Active devices", summary.ActiveDevices},
		{"Low battery devices", summary.LowBatteryDevices},
		{"Red zone devices", summary.RedZoneDevices},
		{"High temperature devices", summary.HighTempDevices},
		{"High speed devices", summary.HighSpeedDevices},
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(80, 6, "Metric", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.CellFormat(80, 6, row.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, strconv.Itoa(row.value), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(80, 6, "Battery Health", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, health := range sortedKeys(summary.BatteryHealthGrouping) {
		pdf.CellFormat(80, 6, health, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, strconv.Itoa(summary.BatteryHealthGrouping[health]), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
