package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.July, 15, 12, 0, 0, 0, time.UTC)

func TestExtractFiltersFileTypeGroups(t *testing.T) {
	f := extractFilters("find excel spreadsheets and pdfs")
	assert.ElementsMatch(t, []string{".xlsx", ".xls", ".csv", ".pdf"}, f.FileTypes)
}

func TestExtractFiltersDocumentTypes(t *testing.T) {
	f := extractFilters("show invoices and agreements")
	assert.ElementsMatch(t, []string{"invoice", "contract"}, f.DocumentTypes)
}

func TestExtractFiltersImageContentType(t *testing.T) {
	f := extractFilters("screenshots of the dashboard")
	assert.Equal(t, []string{"image"}, f.ContentTypes)
}

func TestExtractFiltersDedupes(t *testing.T) {
	f := extractFilters("pdf pdfs invoices invoice")
	assert.Equal(t, []string{".pdf"}, f.FileTypes)
	assert.Equal(t, []string{"invoice"}, f.DocumentTypes)
}

func TestExtractFiltersEmptyQuery(t *testing.T) {
	f := extractFilters("something unrelated")
	assert.True(t, f.Empty())
}

// =============================================================================
// TIME EXPRESSIONS
// =============================================================================

func TestTimeRangeYearSpan(t *testing.T) {
	tr := extractTimeRange("invoices from 2021 to 2023", testNow)
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), tr.From)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), tr.To)
}

func TestTimeRangeRelativeN(t *testing.T) {
	tr := extractTimeRange("reports from the last 3 weeks", testNow)
	require.NotNil(t, tr)
	assert.Equal(t, testNow.Add(-3*7*24*time.Hour), tr.From)
	assert.Equal(t, testNow, tr.To)
}

func TestTimeRangeBareRelative(t *testing.T) {
	tr := extractTimeRange("files from last month", testNow)
	require.NotNil(t, tr)
	assert.Equal(t, testNow.AddDate(0, -1, 0), tr.From)
}

func TestTimeRangeToday(t *testing.T) {
	tr := extractTimeRange("what came in today", testNow)
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), tr.From)
	assert.Equal(t, testNow, tr.To)
}

func TestTimeRangeQuarter(t *testing.T) {
	tr := extractTimeRange("q2 2023 financials", testNow)
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), tr.From)
	assert.Equal(t, time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), tr.To)

	// Quarter without a year uses the current year.
	tr = extractTimeRange("q1 results", testNow)
	require.NotNil(t, tr)
	assert.Equal(t, 2024, tr.From.Year())
}

func TestTimeRangeMonthYear(t *testing.T) {
	tr := extractTimeRange("receipts from march 2022", testNow)
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), tr.From)
	assert.Equal(t, time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC), tr.To)
}

func TestTimeRangeBareMayIsNotAMonth(t *testing.T) {
	assert.Nil(t, extractTimeRange("documents that may mention acme", testNow))

	tr := extractTimeRange("invoices from may 2023", testNow)
	require.NotNil(t, tr)
	assert.Equal(t, time.May, tr.From.Month())
}

func TestTimeRangeBareYear(t *testing.T) {
	tr := extractTimeRange("tax documents 2022", testNow)
	require.NotNil(t, tr)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), tr.From)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), tr.To)
}

func TestTimeRangeNoExpression(t *testing.T) {
	assert.Nil(t, extractTimeRange("acme invoices", testNow))
}
