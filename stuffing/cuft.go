package stuffing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stuffinglist/domain"
)

// cuftModel is one row of the carton-volume table. Models are matched by substring in
// declaration order, so order matters: "FJ616" is tried before "FJ616-1".
type cuftModel struct {
	key   string
	sizes map[string]string
}

var (
	sizesFQ = map[string]string{"21": "2.08", "22": "2.35", "26": "3.52", "29": "4.85"}

	sizesF16 = map[string]string{
		"21": "1.95", "24": "2.55", "26": "3.36", "29": "4.59", "29.5": "4.65", "30": "5.45",
		"19": "1.818", "20": "1.818", "27": "4.391", "28": "4.391",
	}

	sizesFJ616 = map[string]string{
		"16": "1.55", "19.5": "1.92", "20": "2.01", "21": "2.29", "24": "3.3", "29": "4.37", "31": "3.98", "32": "6.16",
	}

	sizesFK636 = map[string]string{"16": "1.5", "20": "2.01", "21": "2.11", "24": "3.71", "29": "4.38"}

	sizesFL688 = map[string]string{
		"16": "1.42", "17": "1.59", "19": "2.47", "20": "2.06", "21": "2.24", "24": "3.29", "29": "4.7",
		"31": "4.18", "32": "6.38", "29.5": "4.63",
	}

	sizesFBP01 = map[string]string{"S#": "2.09", "M#": "4.2", "L#": "5.5", "24#": "2.78"}
)

// cuftTable is cubic feet per carton by model and size.
var cuftTable = []cuftModel{
	{"FQ832", sizesFQ},
	{"FQ825", sizesFQ},
	{"FR885", sizesFQ},
	{"F1627", sizesF16},
	{"F1628", sizesF16},
	{"FR893", map[string]string{"21": "2.15", "22": "2.37", "25": "3.78", "28": "5.5", "32": "5.79"}},
	{"PP8", map[string]string{"S": "1.95", "M": "3.88", "L": "5.89"}},
	{"PP10", map[string]string{"S": "1.94", "M": "3.9", "L": "5.85"}},
	{"PP12", map[string]string{"S": "1.88", "M": "3.21", "L": "5.1"}},
	{"FJ616", sizesFJ616},
	{"FJ616-1", sizesFJ616},
	{"FK648", map[string]string{"20": "1.93", "24": "3.11", "29": "4.16"}},
	{"FK636", sizesFK636},
	{"FK636-1", sizesFK636},
	{"FL688", sizesFL688},
	{"FL688-1", sizesFL688},
	{"FL688-6", sizesFL688},
	{"FH496", map[string]string{"21": "2.09", "22": "2.2", "27": "3.91", "29": "4.83", "30": "4.83", "31": "5.68", "32": "5.75"}},
	{"FR898", map[string]string{"20": "2.47", "21": "2.12", "24": "3.53", "29": "4.7"}},
	{"F1909", map[string]string{"21.5": "2.17", "22": "2.38", "24": "3.3", "25": "3.79", "28": "5.5", "30": "5.78", "32": "5.8", "29": "4.95"}},
	{"FG417", map[string]string{"20": "2.08", "27": "3.98", "29": "4.71", "32": "5.75"}},
	{"FQ819-1", map[string]string{"19": "1.48", "21": "2.38", "26": "3.62", "29": "5.035"}},
	{"FJ587-1", map[string]string{"23": "2.22", "32": "4.8"}},
	{"FBP01/", sizesFBP01},
	{"PFBP01", sizesFBP01},
	{"FL678", map[string]string{"19.5": "1.64", "20": "1.74", "21": "1.73", "25": "3.14", "28": "4.2"}},
	{"FQ822", map[string]string{"19.5": "1.74", "20": "1.78", "21": "2.14", "25": "3.43", "28": "4.55", "31": "6.2"}},
	{"FP763-1", map[string]string{"20": "2.16", "29": "4.41"}},
}

// sizeToken extracts the size after the last "/" (or, failing that, the last "-").
func sizeToken(modelSize string) string {
	var tok string
	if i := strings.LastIndex(modelSize, "/"); i >= 0 {
		tok = modelSize[i+1:]
	} else if i := strings.LastIndex(modelSize, "-"); i >= 0 {
		tok = modelSize[i+1:]
	}
	return strings.ToUpper(strings.TrimSpace(tok))
}

// LookupCUFT finds the per-carton volume for a name-and-spec text.
func LookupCUFT(nameAndSpec string) (decimal.Decimal, bool) {
	modelSize := strings.TrimSpace(stripQuotes(nameAndSpec))
	size := sizeToken(modelSize)
	upper := strings.ToUpper(modelSize)
	for _, m := range cuftTable {
		if !strings.Contains(upper, strings.ToUpper(m.key)) {
			continue
		}
		raw, ok := m.sizes[size]
		if !ok {
			return decimal.Zero, false
		}
		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsZero() {
			return decimal.Zero, false
		}
		return v, true
	}
	return decimal.Zero, false
}

// parseQuantity reads the leading decimal number of s; unreadable or negative is zero.
func parseQuantity(s string) decimal.Decimal {
	n := leadingNumber(s, true)
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// CartonCount reads the leading integer of a carton quantity. Unreadable or negative
// values count as zero.
func CartonCount(s string) int64 {
	n := leadingNumber(s, false)
	if n == "" {
		return 0
	}
	v, err := strconv.ParseInt(n, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// TotalCartons sums CartonCount over the items (the export totals row).
func TotalCartons(items []domain.LineItem) int64 {
	var total int64
	for _, it := range items {
		total += CartonCount(it.TotalCtnQty)
	}
	return total
}

// EstimateCUFT sums volume × carton quantity. Items without a table entry contribute zero.
func EstimateCUFT(items []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		v, ok := LookupCUFT(it.NameAndSpec)
		if !ok {
			continue
		}
		total = total.Add(v.Mul(parseQuantity(it.TotalCtnQty)))
	}
	return total
}

// CUFTReport is the informational text shown to the user; it is never written to the form.
func CUFTReport(items []domain.LineItem) (string, decimal.Decimal) {
	total := EstimateCUFT(items)
	return "Total Calculated CUFT: " + total.StringFixed(2), total
}
