package syncer

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Canonical field names. Column headers from any supported source convention
// are renamed to these before record assembly.
const (
	fieldReference        = "reference"
	fieldCaseDate         = "case_date"
	fieldNotifyingCountry = "notifying_country"
	fieldOriginCountry    = "origin_country"
	fieldProduct          = "product"
	fieldProductCategory  = "product_category"
	fieldHazardSubstance  = "hazard_substance"
	fieldHazardCategory   = "hazard_category"
	fieldClassification   = "classification"
	fieldRiskDecision     = "risk_decision"
	fieldDistribution     = "distribution"
	fieldAttention        = "attention"
	fieldFollowUp         = "follow_up"
)

var canonicalFields = []string{
	fieldReference, fieldCaseDate, fieldNotifyingCountry, fieldOriginCountry,
	fieldProduct, fieldProductCategory, fieldHazardSubstance, fieldHazardCategory,
	fieldClassification, fieldRiskDecision, fieldDistribution, fieldAttention,
	fieldFollowUp,
}

// legacyColumns covers the short lower-case headers of the historical weekly
// exports. Note "classification" meant the hazard category there; the modern
// exports reuse the word for the notification classification.
var legacyColumns = map[string]string{
	"date":              fieldCaseDate,
	"reference":         fieldReference,
	"notifying_country": fieldNotifyingCountry,
	"origin":            fieldOriginCountry,
	"category":          fieldProductCategory,
	"subject":           fieldProduct,
	"hazards":           fieldHazardSubstance,
	"classification":    fieldHazardCategory,
}

// modernColumns covers the portal-style headers of newer exports.
var modernColumns = map[string]string{
	"date of case":      fieldCaseDate,
	"reference":         fieldReference,
	"notifying country": fieldNotifyingCountry,
	"country of origin": fieldOriginCountry,
	"origin country":    fieldOriginCountry,
	"product":           fieldProduct,
	"product type":      fieldProduct,
	"product category":  fieldProductCategory,
	"hazard":            fieldHazardSubstance,
	"hazards":           fieldHazardSubstance,
	"hazard substance":  fieldHazardSubstance,
	"hazard category":   fieldHazardCategory,
	"classification":    fieldClassification,
	"risk decision":     fieldRiskDecision,
	"distribution":      fieldDistribution,
	"attention":         fieldAttention,
	"follow-up":         fieldFollowUp,
	"follow up":         fieldFollowUp,
}

var caseDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2/1/2006",
	"01-02-06",
	time.RFC3339,
}

// Normalizer turns raw workbook bytes into notification candidates ready for
// merging.
type Normalizer struct {
	tax    *Taxonomy
	logger *zap.Logger
}

func NewNormalizer(tax *Taxonomy, logger *zap.Logger) *Normalizer {
	return &Normalizer{tax: tax, logger: logger}
}

// Normalize parses every sheet of the workbook, in sheet order, and returns
// the concatenated candidate rows. An unreadable sheet is skipped with a
// warning; an unreadable workbook is returned as an error so the caller can
// treat the whole period like a fetch failure. Rows without a reference are
// dropped; everything else survives, including rows whose date does not
// parse.
func (n *Normalizer) Normalize(raw []byte) ([]Notification, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	now := time.Now().UTC()
	var out []Notification
	dropped := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			n.logger.Warn("skipping unreadable sheet",
				zap.String("sheet", sheet),
				zap.Error(err),
			)
			continue
		}
		if len(rows) < 2 {
			continue
		}
		header := headerIndex(rows[0])
		for _, row := range rows[1:] {
			rec, ok := n.buildRecord(header, row, now)
			if !ok {
				dropped++
				continue
			}
			out = append(out, rec)
		}
	}
	if dropped > 0 {
		n.logger.Warn("dropped rows without reference", zap.Int("count", dropped))
	}
	return out, nil
}

// headerIndex renames the header row to canonical fields and maps each field
// to its column index. Both naming conventions are tried and the one
// matching more headers wins; canonical names always pass through, so a file
// that is already in target form needs no convention at all.
func headerIndex(header []string) map[string]int {
	legacyHits, modernHits := 0, 0
	for _, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := legacyColumns[key]; ok {
			legacyHits++
		}
		if _, ok := modernColumns[key]; ok {
			modernHits++
		}
	}
	mapping := modernColumns
	if legacyHits > modernHits {
		mapping = legacyColumns
	}

	idx := make(map[string]int, len(canonicalFields))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if field, ok := mapping[key]; ok {
			if _, taken := idx[field]; !taken {
				idx[field] = i
			}
			continue
		}
		for _, field := range canonicalFields {
			if key == field {
				if _, taken := idx[field]; !taken {
					idx[field] = i
				}
				break
			}
		}
	}
	return idx
}

func (n *Normalizer) buildRecord(header map[string]int, row []string, now time.Time) (Notification, bool) {
	cell := func(field string) string {
		i, ok := header[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ref := cell(fieldReference)
	if ref == "" {
		return Notification{}, false
	}

	rec := Notification{
		Reference:        ref,
		NotifyingCountry: cell(fieldNotifyingCountry),
		OriginCountry:    cell(fieldOriginCountry),
		Product:          cell(fieldProduct),
		ProductCategory:  cell(fieldProductCategory),
		HazardSubstance:  cell(fieldHazardSubstance),
		HazardCategory:   cell(fieldHazardCategory),
		Classification:   cell(fieldClassification),
		RiskDecision:     cell(fieldRiskDecision),
		Distribution:     cell(fieldDistribution),
		Attention:        cell(fieldAttention),
		FollowUp:         cell(fieldFollowUp),
		IngestedAt:       now,
	}

	if ts, ok := parseCaseDate(cell(fieldCaseDate)); ok {
		rec.CaseDate = &ts
		year, month := ts.Year(), int(ts.Month())
		_, week := ts.ISOWeek()
		rec.Year = &year
		rec.Month = &month
		rec.ISOWeek = &week
	}

	rec.SpecificProductCategory, rec.ProductGroup = n.tax.Product.MapCategory(rec.ProductCategory)
	rec.SpecificHazardCategory, rec.HazardGroup = n.tax.Hazard.MapCategory(rec.HazardCategory)
	return rec, true
}

// parseCaseDate is lenient on purpose: an unparsable date nulls the derived
// calendar fields but never drops the row.
func parseCaseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range caseDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
