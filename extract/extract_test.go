package extract

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

// writeExtractCSV creates a small ACS-style extract with a BOM, a blank
// line, an NA cell and a short row.
func writeExtractCSV(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "acs.csv")

	content := "\xEF\xBB\xBFYEAR,STATEFIP, PERWT ,HINSCAID,MOOP\n" +
		"2022,13,250,1,\"1,200\"\n" +
		"\n" +
		"2023,46,175,NA,$40\n" +
		"2023,13,90\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write extract CSV: %v", err)
	}
	return path
}

func TestCSVReader(t *testing.T) {
	r, err := NewCSVReader(writeExtractCSV(t))
	if err != nil {
		t.Fatalf("NewCSVReader: %v", err)
	}
	defer r.Close()

	want := []string{"YEAR", "STATEFIP", "PERWT", "HINSCAID", "MOOP"}
	cols := r.Columns()
	if len(cols) != len(want) {
		t.Fatalf("columns = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, cols[i], want[i])
		}
	}

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first["YEAR"] != 2022 || first["STATEFIP"] != 13 || first["PERWT"] != 250 {
		t.Errorf("first row = %v", first)
	}
	if first["MOOP"] != 1200 {
		t.Errorf("MOOP = %v, want 1200 (thousands separator stripped)", first["MOOP"])
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !math.IsNaN(second["HINSCAID"]) {
		t.Errorf("NA cell = %v, want NaN", second["HINSCAID"])
	}
	if second["MOOP"] != 40 {
		t.Errorf("MOOP = %v, want 40", second["MOOP"])
	}

	third, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !math.IsNaN(third["HINSCAID"]) || !math.IsNaN(third["MOOP"]) {
		t.Errorf("short row should leave trailing columns NaN: %v", third)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestCSVReaderDuplicateHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.csv")
	if err := os.WriteFile(path, []byte("AGE,AGE\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCSVReader(path); err == nil {
		t.Fatal("expected duplicate header error")
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		nan  bool
	}{
		{"42", 42, false},
		{" 3.5 ", 3.5, false},
		{"$1,000", 1000, false},
		{"", 0, true},
		{"NA", 0, true},
		{"na", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got := parseFloat(tt.in)
		if tt.nan {
			if !math.IsNaN(got) {
				t.Errorf("parseFloat(%q) = %v, want NaN", tt.in, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("parseFloat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type extractRecord struct {
	StateFIP int32    `parquet:"STATEFIP"`
	Year     int64    `parquet:"YEAR"`
	PerWt    float64  `parquet:"PERWT"`
	Moop     *float64 `parquet:"MOOP,optional"`
	Flag     bool     `parquet:"FLAG"`
	Code     string   `parquet:"CODE"`
}

func writeExtractParquet(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acs.parquet")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	moop := 120.5
	w := parquet.NewGenericWriter[extractRecord](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write([]extractRecord{
		{StateFIP: 13, Year: 2022, PerWt: 250, Moop: &moop, Flag: true, Code: "7"},
		{StateFIP: 46, Year: 2023, PerWt: 175, Code: "x"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestReadParquet(t *testing.T) {
	rows, err := ReadParquet(writeExtractParquet(t))
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	r := rows[0]
	if r["STATEFIP"] != 13 || r["YEAR"] != 2022 || r["PERWT"] != 250 {
		t.Errorf("row 0 = %v", r)
	}
	if r["MOOP"] != 120.5 || r["FLAG"] != 1 || r["CODE"] != 7 {
		t.Errorf("row 0 = %v", r)
	}

	r = rows[1]
	if !math.IsNaN(r["MOOP"]) {
		t.Errorf("null MOOP = %v, want NaN", r["MOOP"])
	}
	if r["FLAG"] != 0 || !math.IsNaN(r["CODE"]) {
		t.Errorf("row 1 = %v", r)
	}
}

func TestReadFileDispatch(t *testing.T) {
	csvRows, err := ReadFile(writeExtractCSV(t))
	if err != nil {
		t.Fatalf("ReadFile csv: %v", err)
	}
	if len(csvRows) != 3 {
		t.Errorf("csv rows = %d, want 3", len(csvRows))
	}

	pqRows, err := ReadFile(writeExtractParquet(t))
	if err != nil {
		t.Fatalf("ReadFile parquet: %v", err)
	}
	if len(pqRows) != 2 {
		t.Errorf("parquet rows = %d, want 2", len(pqRows))
	}

	names := ColumnNames(pqRows)
	want := []string{"CODE", "FLAG", "MOOP", "PERWT", "STATEFIP", "YEAR"}
	if len(names) != len(want) {
		t.Fatalf("ColumnNames = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ColumnNames[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	if _, err := ReadFile("extract.sas7bdat"); err == nil {
		t.Error("expected unsupported format error")
	}
}
