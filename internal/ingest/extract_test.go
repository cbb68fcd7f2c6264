package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testPipeline() *Pipeline {
	return &Pipeline{cfg: testIngestionConfig()}
}

func TestExtractPlainText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "meeting notes from tuesday about the acme deal")

	ex, err := testPipeline().extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "meeting notes from tuesday about the acme deal", ex.Text)
	assert.Equal(t, 8, ex.WordCount)
	assert.False(t, ex.IsImage)
}

func TestExtractRejectsBinaryMasqueradingAsText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fake.txt", "abc\x00def")

	_, err := testPipeline().extract(context.Background(), path)
	require.Error(t, err)
}

func TestExtractHTMLStripsMarkupAndScripts(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html", `<html><head>
<script>var hidden = "secret";</script>
<style>.x { color: red; }</style>
</head><body><h1>Quarterly Report</h1><p>Revenue grew.</p></body></html>`)

	ex, err := testPipeline().extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, ex.Text, "Quarterly Report")
	assert.Contains(t, ex.Text, "Revenue grew.")
	assert.NotContains(t, ex.Text, "secret")
	assert.NotContains(t, ex.Text, "color: red")
}

func TestExtractCSVKeepsHeaderContext(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "data.csv", "name,amount\nacme,120\nzenith,80\n")

	ex, err := testPipeline().extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, ex.Text, "Columns: name, amount")
	assert.Contains(t, ex.Text, "name: acme; amount: 120")
}

func TestExtractCSVRespectsRowLimit(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("id\n")
	for i := 0; i < 100; i++ {
		sb.WriteString("row\n")
	}
	path := writeFile(t, dir, "big.csv", sb.String())

	p := testPipeline()
	p.cfg.SpreadsheetRowLimit = 3
	ex, err := p.extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(ex.Text, "id: row"))
}

func TestExtractImageFlagsVisionPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "photo.jpg", "not really an image")

	ex, err := testPipeline().extract(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, ex.IsImage)
	assert.Empty(t, ex.Text)
}

func TestExtractUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blob.bin", "data")

	_, err := testPipeline().extract(context.Background(), path)
	require.Error(t, err)
}

func TestCapText(t *testing.T) {
	assert.Equal(t, "abc", capText("abcdef", 3))
	assert.Equal(t, "abcdef", capText("abcdef", 0))
	assert.Equal(t, "abcdef", capText("abcdef", 100))
}

func TestIsMostlyText(t *testing.T) {
	assert.True(t, isMostlyText([]byte("normal text\nwith lines\tand tabs")))
	assert.True(t, isMostlyText(nil))
	assert.False(t, isMostlyText([]byte{0x89, 0x50, 0x00, 0x47}))
}
