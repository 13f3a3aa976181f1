// Package export renders stored weather records as CSV, JSON, or PDF
// downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"weatherhub/internal/observability"
	"weatherhub/internal/store"
	"weatherhub/internal/svcerr"
)

// Format is a supported export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON, FormatPDF:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", svcerr.ErrInvalidInput, s)
	}
}

// ContentType returns the MIME type for the rendered format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Filename returns the suggested download filename.
func (f Format) Filename() string {
	return "weather_records_" + time.Now().UTC().Format("20060102") + "." + string(f)
}

var csvHeader = []string{
	"id", "location_id", "date", "temp_c", "temp_f", "humidity",
	"wind_speed", "condition", "description", "precipitation", "tip",
}

// WriteRecords renders records in the given format. An empty record set is an
// input error so handlers can reject it before committing response headers.
func WriteRecords(w io.Writer, format Format, records []store.WeatherRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: no records to export", svcerr.ErrInvalidInput)
	}

	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(w, records)
	case FormatJSON:
		err = writeJSON(w, records)
	case FormatPDF:
		err = writePDF(w, records)
	default:
		return fmt.Errorf("%w: unsupported export format %q", svcerr.ErrInvalidInput, format)
	}
	if err != nil {
		return err
	}
	observability.ExportsTotal.WithLabelValues(string(format)).Inc()
	return nil
}

func writeCSV(w io.Writer, records []store.WeatherRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatUint(uint64(r.ID), 10),
			strconv.FormatUint(uint64(r.LocationID), 10),
			r.WeatherDate.UTC().Format(time.RFC3339),
			formatFloat(r.TempC),
			formatFloat(r.TempF),
			formatIntPtr(r.Humidity),
			formatFloatPtr(r.WindSpeed),
			r.Condition,
			r.ConditionDesc,
			formatFloat(r.Precipitation),
			r.Tip,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, records []store.WeatherRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return nil
}

// pdfColumns are the column widths in mm for an A4 landscape page.
var pdfColumns = []struct {
	title string
	width float64
}{
	{"ID", 12},
	{"Date", 40},
	{"Temp (C)", 22},
	{"Temp (F)", 22},
	{"Humidity", 22},
	{"Wind", 20},
	{"Condition", 35},
	{"Precip (mm)", 26},
	{"Tip", 78},
}

func writePDF(w io.Writer, records []store.WeatherRecord) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Weather Records", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Weather Records", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range pdfColumns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, r := range records {
		cells := []string{
			strconv.FormatUint(uint64(r.ID), 10),
			r.WeatherDate.UTC().Format("2006-01-02 15:04"),
			formatFloat(r.TempC),
			formatFloat(r.TempF),
			formatIntPtr(r.Humidity),
			formatFloatPtr(r.WindSpeed),
			r.Condition,
			formatFloat(r.Precipitation),
			r.Tip,
		}
		for i, col := range pdfColumns {
			pdf.CellFormat(col.width, 6, cells[i], "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	// fpdf buffers internally; render into memory first so a failed render
	// does not leave a truncated body on the wire.
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
