package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"olympus/internal/config"
	"olympus/internal/llm"
	"olympus/internal/logging"
	"olympus/internal/store"
	"olympus/internal/types"
)

// =============================================================================
// PIPELINE
// =============================================================================

// Indexer is the store slice the pipeline writes to.
type Indexer interface {
	IndexDocument(ctx context.Context, doc *types.Document) error
	DocumentExists(ctx context.Context, id string) (bool, error)
	DeleteDocument(ctx context.Context, id string) error
}

// GraphWriter receives extracted entities and relationships. Optional.
type GraphWriter interface {
	UpsertEntity(ctx context.Context, name, entityType string, documentIDs []string) (string, error)
	AddRelationship(ctx context.Context, rel types.Relationship) error
}

// Embedder produces the summary embedding. Implementations serialize
// internally; the pipeline never calls concurrently with itself per file
// but batch mode runs files in parallel.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Status is the per-file outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result reports one processed file.
type Result struct {
	Status   Status `json:"status"`
	ID       string `json:"id"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Error    string `json:"error,omitempty"`
}

// ProgressFunc receives batch progress callbacks.
type ProgressFunc func(done, total int, r Result)

// Pipeline ingests files into the document index.
type Pipeline struct {
	index       Indexer
	graph       GraphWriter
	embedder    Embedder
	client      llm.Client
	textModel   string
	visionModel string
	cfg         config.IngestionConfig
	failed      *store.FailedLog
	pdf         PDFExtractor
	docx        DocxExtractor
}

// Options carries the pipeline's optional collaborators.
type Options struct {
	Graph GraphWriter
	PDF   PDFExtractor
	Docx  DocxExtractor
}

// New wires the ingestion pipeline.
func New(index Indexer, embedder Embedder, client llm.Client, textModel, visionModel string,
	cfg config.IngestionConfig, failed *store.FailedLog, opts Options) *Pipeline {
	return &Pipeline{
		index:       index,
		graph:       opts.Graph,
		embedder:    embedder,
		client:      client,
		textModel:   textModel,
		visionModel: visionModel,
		cfg:         cfg,
		failed:      failed,
		pdf:         opts.PDF,
		docx:        opts.Docx,
	}
}

// ProcessFile ingests one file. Idempotent by id: an already-indexed path
// returns skipped without touching the record.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) Result {
	timer := logging.StartTimer(logging.CategoryIngest, "ProcessFile")
	defer timer.Stop()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	id := types.DocumentID(abs)
	filename := filepath.Base(abs)
	result := Result{ID: id, Path: abs, Filename: filename}

	exists, err := p.index.DocumentExists(ctx, id)
	if err != nil {
		return p.fail(result, "index", err)
	}
	if exists {
		result.Status = StatusSkipped
		return result
	}

	info, err := os.Stat(abs)
	if err != nil {
		return p.fail(result, "extract", err)
	}

	extracted, err := p.extract(ctx, abs)
	if err != nil {
		return p.fail(result, "extract", err)
	}

	// Image captioning replaces text extraction for images; a total vision
	// failure still yields an indexable stub record.
	summaryInput := extracted.Text
	if extracted.IsImage {
		caption, err := p.describeImage(ctx, abs)
		if err != nil {
			caption = stubImageSummary(filename)
		}
		summaryInput = caption
		extracted.Text = caption
		extracted.WordCount = len(strings.Fields(caption))
	}

	analysis, err := p.summarize(ctx, filename, summaryInput)
	if err != nil {
		return p.fail(result, "analyze", err)
	}

	embedding, embeddingOK := p.embed(ctx, analysis.Summary)

	doc := &types.Document{
		ID:                 id,
		Filename:           filename,
		FilePath:           abs,
		FileType:           strings.ToLower(filepath.Ext(filename)),
		ContentType:        extracted.ContentType,
		DocumentType:       classifyDocumentType(filename),
		IsImage:            extracted.IsImage,
		DetailedSummary:    analysis.Summary,
		FullContent:        extracted.Text,
		Keywords:           strings.Join(analysis.Keywords, ","),
		EntitiesFlat:       analysis.EntitiesFlat,
		EntitiesStructured: analysis.EntitiesStructured,
		Topics:             analysis.Topics,
		Embedding:          embedding,
		EmbeddingOK:        embeddingOK,
		WordCount:          extracted.WordCount,
		PageCount:          extracted.PageCount,
		FileSizeBytes:      info.Size(),
		CreatedAt:          time.Now().UTC(),
		LastModified:       info.ModTime().UTC(),
	}

	if err := p.index.IndexDocument(ctx, doc); err != nil {
		return p.fail(result, "index", err)
	}

	p.pushGraph(ctx, doc, analysis)

	result.Status = StatusSuccess
	logging.Ingest("indexed %s (%s, %d words)", filename, doc.DocumentType, doc.WordCount)
	return result
}

// embed generates the summary embedding. On failure the documented policy
// is a zero vector with embedding_ok=false; the record stays reachable
// through the keyword leg and the condition is visible in the schema.
func (p *Pipeline) embed(ctx context.Context, summary string) ([]float32, bool) {
	vec, err := p.embedder.Embed(ctx, summary)
	if err != nil {
		logging.Ingest("embedding failed, storing zero vector: %v", err)
		return make([]float32, p.embedder.Dimensions()), false
	}
	return vec, true
}

// pushGraph feeds extracted entities and relationships into the knowledge
// graph. Best effort: graph failures never fail the file.
func (p *Pipeline) pushGraph(ctx context.Context, doc *types.Document, analysis *Analysis) {
	if p.graph == nil {
		return
	}

	nodeIDs := make(map[string]string)
	for category, names := range analysis.EntitiesStructured {
		for _, name := range names {
			id, err := p.graph.UpsertEntity(ctx, name, category, []string{doc.ID})
			if err != nil {
				logging.IngestDebug("entity upsert failed for %q: %v", name, err)
				continue
			}
			nodeIDs[strings.ToLower(name)] = id
		}
	}

	for _, rel := range analysis.Relationships {
		sourceID, ok1 := nodeIDs[strings.ToLower(rel.SourceID)]
		targetID, ok2 := nodeIDs[strings.ToLower(rel.TargetID)]
		if !ok1 || !ok2 {
			continue
		}
		rel.SourceID = sourceID
		rel.TargetID = targetID
		rel.DocumentID = doc.ID
		if err := p.graph.AddRelationship(ctx, rel); err != nil {
			logging.IngestDebug("relationship insert failed: %v", err)
		}
	}
}

func (p *Pipeline) fail(result Result, stage string, err error) Result {
	result.Status = StatusFailed
	result.Error = err.Error()
	logging.Ingest("failed to ingest %s at %s stage: %v", result.Path, stage, err)
	if p.failed != nil {
		if logErr := p.failed.Append(store.FailedEntry{
			FilePath: result.Path,
			Stage:    stage,
			Error:    err.Error(),
		}); logErr != nil {
			logging.Ingest("could not record failure for %s: %v", result.Path, logErr)
		}
	}
	return result
}

// =============================================================================
// BATCH PROCESSING
// =============================================================================

// ProcessDirectory walks root for supported files and ingests them in
// chunks with bounded concurrency. Per-file failures never abort the batch.
func (p *Pipeline) ProcessDirectory(ctx context.Context, root string, extensions []string, progress ProgressFunc) ([]Result, error) {
	files, err := collectFiles(root, extensions)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 8
	}
	concurrency := p.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]Result, len(files))
	done := 0

	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = p.ProcessFile(gctx, files[i])
				return nil
			})
		}
		g.Wait()

		for i := start; i < end; i++ {
			done++
			if progress != nil {
				progress(done, len(files), results[i])
			}
		}

		if ctx.Err() != nil {
			return results[:done], ctx.Err()
		}
	}
	return results, nil
}

// ReindexFile forces a fresh record for a changed file by dropping the old
// one first. Used by the watcher on write events.
func (p *Pipeline) ReindexFile(ctx context.Context, path string) Result {
	if err := p.RemoveFile(ctx, path); err != nil {
		logging.IngestDebug("pre-reindex delete failed for %s: %v", path, err)
	}
	return p.ProcessFile(ctx, path)
}

// RemoveFile deletes the record for a path, used when the watcher sees a
// deletion.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return p.index.DeleteDocument(ctx, types.DocumentID(abs))
}

func collectFiles(root string, extensions []string) ([]string, error) {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden directories.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if len(allowed) == 0 || allowed[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}
