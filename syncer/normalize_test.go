package syncer

import (
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type sheetFixture struct {
	name string
	rows [][]any
}

func buildWorkbook(t *testing.T, sheets ...sheetFixture) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				t.Fatal(err)
			}
		} else {
			if _, err := f.NewSheet(s.name); err != nil {
				t.Fatal(err)
			}
		}
		for r := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetSheetRow(s.name, cell, &s.rows[r]); err != nil {
				t.Fatal(err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	tax, err := LoadTaxonomy("")
	if err != nil {
		t.Fatal(err)
	}
	return NewNormalizer(tax, zap.NewNop())
}

var modernHeader = []any{
	"Reference", "Date of case", "Notifying country", "Country of origin",
	"Product", "Product category", "Hazard", "Hazard category",
	"Classification", "Risk decision", "Distribution", "Attention", "Follow-up",
}

func TestNormalize_ModernHeaders(t *testing.T) {
	raw := buildWorkbook(t, sheetFixture{
		name: "week",
		rows: [][]any{
			modernHeader,
			{" 2024.1234 ", "2024-06-01", " France ", "China", "frozen shrimp",
				"Crustaceans and products thereof", "cadmium", "Heavy metals",
				"alert", "serious", "FR, BE", "attention", "recall"},
		},
	})

	recs, err := testNormalizer(t).Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Reference != "2024.1234" {
		t.Fatalf("expected trimmed reference, got %q", r.Reference)
	}
	if r.NotifyingCountry != "France" {
		t.Fatalf("expected trimmed country, got %q", r.NotifyingCountry)
	}
	if r.CaseDate == nil || r.CaseDate.Format("2006-01-02") != "2024-06-01" {
		t.Fatalf("unexpected case date: %v", r.CaseDate)
	}
	if r.Year == nil || *r.Year != 2024 || r.Month == nil || *r.Month != 6 || r.ISOWeek == nil || *r.ISOWeek != 22 {
		t.Fatalf("unexpected derived fields: year=%v month=%v week=%v", r.Year, r.Month, r.ISOWeek)
	}
	if r.SpecificProductCategory != "Crustaceans" || r.ProductGroup != "Seafood" {
		t.Fatalf("unexpected product mapping: (%s, %s)", r.SpecificProductCategory, r.ProductGroup)
	}
	if r.SpecificHazardCategory != "Heavy Metals" || r.HazardGroup != "Chemical" {
		t.Fatalf("unexpected hazard mapping: (%s, %s)", r.SpecificHazardCategory, r.HazardGroup)
	}
	if r.Classification != "alert" || r.RiskDecision != "serious" || r.FollowUp != "recall" {
		t.Fatalf("unexpected metadata fields: %q %q %q", r.Classification, r.RiskDecision, r.FollowUp)
	}
}

func TestNormalize_LegacyHeaders(t *testing.T) {
	// In the legacy convention "classification" carried the hazard category.
	raw := buildWorkbook(t, sheetFixture{
		name: "Sheet1",
		rows: [][]any{
			{"date", "reference", "notifying_country", "origin", "category", "subject", "hazards", "classification"},
			{"2023-03-10", "2023.0001", "Italy", "Spain", "olive oil", "fats and oils", "benzo(a)pyrene", "mycotoxins"},
		},
	})

	recs, err := testNormalizer(t).Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Product != "olive oil" || r.ProductCategory != "fats and oils" {
		t.Fatalf("legacy subject/category mapping failed: %q %q", r.Product, r.ProductCategory)
	}
	if r.HazardCategory != "mycotoxins" || r.SpecificHazardCategory != "Mycotoxins" {
		t.Fatalf("legacy classification mapping failed: %q -> %q", r.HazardCategory, r.SpecificHazardCategory)
	}
	if r.Classification != "" {
		t.Fatalf("expected empty classification under legacy convention, got %q", r.Classification)
	}
	if r.SpecificProductCategory != "Fats and Oils" {
		t.Fatalf("unexpected product mapping: %q", r.SpecificProductCategory)
	}
}

func TestNormalize_UnparsableDateKeepsRow(t *testing.T) {
	raw := buildWorkbook(t, sheetFixture{
		name: "week",
		rows: [][]any{
			modernHeader,
			{"2024.7777", "sometime last spring", "France", "", "", "", "", "", "", "", "", "", ""},
		},
	})
	recs, err := testNormalizer(t).Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected row kept despite bad date, got %d records", len(recs))
	}
	r := recs[0]
	if r.CaseDate != nil || r.Year != nil || r.Month != nil || r.ISOWeek != nil {
		t.Fatalf("expected nil date-derived fields, got %v %v %v %v", r.CaseDate, r.Year, r.Month, r.ISOWeek)
	}
	if r.SpecificProductCategory != Unknown || r.HazardGroup != Unknown {
		t.Fatalf("expected Unknown mappings for empty categories")
	}
}

func TestNormalize_DropsRowsWithoutReference(t *testing.T) {
	raw := buildWorkbook(t, sheetFixture{
		name: "week",
		rows: [][]any{
			modernHeader,
			{"", "2024-06-01", "France", "", "", "", "", "", "", "", "", "", ""},
			{"   ", "2024-06-01", "France", "", "", "", "", "", "", "", "", "", ""},
			{"2024.0002", "2024-06-01", "France", "", "", "", "", "", "", "", "", "", ""},
		},
	})
	recs, err := testNormalizer(t).Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Reference != "2024.0002" {
		t.Fatalf("expected only the referenced row, got %v", recs)
	}
}

func TestNormalize_ConcatenatesSheetsInOrder(t *testing.T) {
	raw := buildWorkbook(t,
		sheetFixture{
			name: "first",
			rows: [][]any{
				modernHeader,
				{"2024.0001", "2024-06-01", "France", "", "", "", "", "", "", "", "", "", ""},
			},
		},
		sheetFixture{
			name: "second",
			rows: [][]any{
				modernHeader,
				{"2024.0002", "2024-06-02", "Italy", "", "", "", "", "", "", "", "", "", ""},
				{"2024.0003", "2024-06-03", "Spain", "", "", "", "", "", "", "", "", "", ""},
			},
		},
	)
	recs, err := testNormalizer(t).Normalize(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records across sheets, got %d", len(recs))
	}
	for i, want := range []string{"2024.0001", "2024.0002", "2024.0003"} {
		if recs[i].Reference != want {
			t.Fatalf("record %d: expected %s, got %s", i, want, recs[i].Reference)
		}
	}
}

func TestNormalize_UnreadableWorkbookErrors(t *testing.T) {
	if _, err := testNormalizer(t).Normalize([]byte("this is not a workbook")); err == nil {
		t.Fatalf("expected error for unreadable workbook")
	}
}
