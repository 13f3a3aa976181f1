package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"weatherhub/internal/store"
	"weatherhub/internal/svcerr"
)

func sampleRecords() []store.WeatherRecord {
	humidity := 62
	wind := 3.4
	return []store.WeatherRecord{
		{
			ID:            1,
			LocationID:    7,
			WeatherDate:   time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
			TempC:         21.5,
			TempF:         70.7,
			Humidity:      &humidity,
			WindSpeed:     &wind,
			Condition:     "Rain",
			ConditionDesc: "light rain",
			Precipitation: 0.8,
			Tip:           "Bring an umbrella",
		},
		{
			ID:          2,
			LocationID:  7,
			WeatherDate: time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC),
			TempC:       24.0,
			TempF:       75.2,
			Condition:   "Clear",
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, valid := range []string{"csv", "json", "pdf"} {
		if _, err := ParseFormat(valid); err != nil {
			t.Errorf("ParseFormat(%q): %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "xml", "CSV"} {
		if _, err := ParseFormat(invalid); !errors.Is(err, svcerr.ErrInvalidInput) {
			t.Errorf("ParseFormat(%q): expected ErrInvalidInput, got %v", invalid, err)
		}
	}
}

func TestWriteRecordsEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteRecords(&buf, FormatCSV, nil)
	if !errors.Is(err, svcerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty set, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written on rejection")
	}
}

func TestWriteRecordsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, FormatCSV, sampleRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse exported csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[0][2] != "date" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][3] != "21.5" {
		t.Errorf("expected temp_c 21.5, got %q", rows[1][3])
	}
	// Missing optional values render as empty cells, not zeros.
	if rows[2][5] != "" {
		t.Errorf("absent humidity should be empty, got %q", rows[2][5])
	}
}

func TestWriteRecordsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, FormatJSON, sampleRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("parse exported json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(decoded))
	}
	if decoded[0]["condition"] != "Rain" {
		t.Errorf("expected condition Rain, got %v", decoded[0]["condition"])
	}
	// Raw upstream payloads never leave the service.
	if _, ok := decoded[0]["rawResponse"]; ok {
		t.Error("rawResponse must not be serialized")
	}
}

func TestWriteRecordsPDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, FormatPDF, sampleRecords()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Error("output does not look like a PDF document")
	}
}

func TestFormatMetadata(t *testing.T) {
	if FormatCSV.ContentType() != "text/csv" {
		t.Errorf("csv content type: %q", FormatCSV.ContentType())
	}
	if FormatPDF.ContentType() != "application/pdf" {
		t.Errorf("pdf content type: %q", FormatPDF.ContentType())
	}
	if !strings.HasSuffix(FormatJSON.Filename(), ".json") {
		t.Errorf("filename: %q", FormatJSON.Filename())
	}
}
