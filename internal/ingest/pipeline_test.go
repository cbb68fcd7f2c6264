package ingest

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olympus/internal/config"
	"olympus/internal/llm"
	"olympus/internal/types"
)

func testIngestionConfig() config.IngestionConfig {
	cfg := config.DefaultIngestionConfig()
	cfg.SpreadsheetRowLimit = 20
	return cfg
}

// =============================================================================
// FAKES
// =============================================================================

type fakeIndexer struct {
	mu   sync.Mutex
	docs map[string]*types.Document
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{docs: map[string]*types.Document{}}
}

func (f *fakeIndexer) IndexDocument(_ context.Context, doc *types.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeIndexer) DocumentExists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[id]
	return ok, nil
}

func (f *fakeIndexer) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0, 0}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 4 }

type fakeClient struct {
	response string
	err      error
}

func (f *fakeClient) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.response}, nil
}

func (f *fakeClient) CompleteJSON(_ context.Context, req llm.Request, out interface{}) error {
	if f.err != nil {
		return f.err
	}
	raw := llm.ExtractJSONObject(f.response)
	if raw == "" {
		raw = req.Fallback
	}
	return json.Unmarshal([]byte(raw), out)
}

const modelSummary = `SUMMARY:
Meeting notes covering the Acme deal and delivery dates.

KEYWORDS:
meeting, acme, deal

ENTITIES_STRUCTURED:
companies: Acme

TOPICS:
business`

func newTestPipeline(index *fakeIndexer, embedder *fakeEmbedder) *Pipeline {
	return New(index, embedder, &fakeClient{response: modelSummary}, "text-model", "vision-model",
		testIngestionConfig(), nil, Options{})
}

// =============================================================================
// PROCESS FILE
// =============================================================================

func TestProcessFileIndexesTextFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "meeting notes about the acme deal")

	index := newFakeIndexer()
	result := newTestPipeline(index, &fakeEmbedder{}).ProcessFile(context.Background(), path)

	require.Equal(t, StatusSuccess, result.Status)
	abs, _ := filepath.Abs(path)
	assert.Equal(t, types.DocumentID(abs), result.ID)

	doc := index.docs[result.ID]
	require.NotNil(t, doc)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, "text_document", doc.DocumentType)
	assert.Contains(t, doc.DetailedSummary, "Acme deal")
	assert.Equal(t, "meeting,acme,deal", doc.Keywords)
	assert.Equal(t, []string{"Acme"}, doc.EntitiesStructured["companies"])
	assert.True(t, doc.EmbeddingOK)
	assert.Len(t, doc.Embedding, 4)
	assert.Greater(t, doc.WordCount, 0)
}

func TestProcessFileIdempotentByID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "some content here")

	index := newFakeIndexer()
	p := newTestPipeline(index, &fakeEmbedder{})

	first := p.ProcessFile(context.Background(), path)
	require.Equal(t, StatusSuccess, first.Status)

	second := p.ProcessFile(context.Background(), path)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, index.docs, 1)
}

func TestProcessFileEmbeddingFailureStoresZeroVector(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "some content here")

	index := newFakeIndexer()
	p := newTestPipeline(index, &fakeEmbedder{err: errors.New("model offline")})

	result := p.ProcessFile(context.Background(), path)
	require.Equal(t, StatusSuccess, result.Status)

	doc := index.docs[result.ID]
	require.NotNil(t, doc)
	assert.False(t, doc.EmbeddingOK)
	assert.Equal(t, make([]float32, 4), doc.Embedding)
}

func TestProcessFileMissingFileFails(t *testing.T) {
	index := newFakeIndexer()
	result := newTestPipeline(index, &fakeEmbedder{}).ProcessFile(context.Background(), "/does/not/exist.txt")
	assert.Equal(t, StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, index.docs)
}

func TestReindexFileReplacesRecord(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "version one")

	index := newFakeIndexer()
	p := newTestPipeline(index, &fakeEmbedder{})

	first := p.ProcessFile(context.Background(), path)
	require.Equal(t, StatusSuccess, first.Status)

	require.NoError(t, os.WriteFile(path, []byte("version two, now longer"), 0644))
	second := p.ReindexFile(context.Background(), path)
	assert.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, index.docs, 1)
	assert.Contains(t, index.docs[first.ID].FullContent, "version two")
}

// =============================================================================
// BATCH
// =============================================================================

func TestProcessDirectoryWalksAndCounts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha content")
	writeFile(t, dir, "b.txt", "beta content")
	writeFile(t, dir, "ignored.bin", "binary")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0755))
	writeFile(t, filepath.Join(dir, ".hidden"), "c.txt", "should not be seen")

	index := newFakeIndexer()
	p := newTestPipeline(index, &fakeEmbedder{})

	var progressCalls int
	results, err := p.ProcessDirectory(context.Background(), dir, []string{".txt"},
		func(done, total int, _ Result) {
			progressCalls++
			assert.Equal(t, 2, total)
		})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, progressCalls)
	assert.Len(t, index.docs, 2)
}

func TestProcessDirectoryEmptyTree(t *testing.T) {
	index := newFakeIndexer()
	p := newTestPipeline(index, &fakeEmbedder{})
	results, err := p.ProcessDirectory(context.Background(), t.TempDir(), []string{".txt"}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// =============================================================================
// DOCX
// =============================================================================

func TestDocxReaderExtractsParagraphs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "letter.docx")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Dear team,</w:t></w:r></w:p>
    <w:p><w:r><w:t>The project is </w:t></w:r><w:r><w:t>on track.</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	text, err := DocxReader{}.ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Dear team,\nThe project is on track.", text)
}

func TestDocxReaderMissingBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.docx")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = DocxReader{}.ExtractText(context.Background(), path)
	require.Error(t, err)
}
