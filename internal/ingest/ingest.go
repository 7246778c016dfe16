// Package ingest walks a source tree, extracts units in parallel, builds
// static edges, and persists everything chunk-atomically.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"unitmap/internal/extract"
	"unitmap/internal/graph"
	"unitmap/internal/store"
)

// sourceExtensions lists the file types scanned for units.
var sourceExtensions = map[string]bool{
	".js":  true,
	".jsx": true,
	".mjs": true,
	".cjs": true,
	".ts":  true,
}

// skipDirs are never descended into regardless of gitignore rules.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Report summarizes one ingestion run.
type Report struct {
	Files  int               `json:"files"`
	Chunks int               `json:"chunks"`
	Units  int               `json:"units"`
	Edges  int               `json:"edges"`
	Stats  extract.ScanStats `json:"stats"`
}

// Ingester drives extraction over source text and persists the result.
type Ingester struct {
	store      store.Store
	pool       *extract.Pool
	chunkLines int
	batchSize  int
	logger     *zap.Logger
}

func New(s store.Store, pool *extract.Pool, chunkLines int, logger *zap.Logger) *Ingester {
	if chunkLines <= 0 {
		chunkLines = 2000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		store:      s,
		pool:       pool,
		chunkLines: chunkLines,
		batchSize:  200,
		logger:     logger,
	}
}

// IngestDir ingests every source file under root, honoring a .gitignore at
// the root when present. Each unit's originalSource is its root-relative
// path, optionally prefixed to attribute a remote origin.
func (in *Ingester) IngestDir(ctx context.Context, root, sourcePrefix string) (Report, error) {
	var gi *ignore.GitIgnore
	if compiled, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		gi = compiled
	}

	files := 0
	var chunks []extract.Chunk
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[filepath.Ext(path)] {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files++
		source := rel
		if sourcePrefix != "" {
			source = sourcePrefix + "!" + rel
		}
		for _, c := range extract.SplitChunks(source, string(data), in.chunkLines) {
			c.Index = len(chunks)
			chunks = append(chunks, c)
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("walk %s: %w", root, err)
	}
	return in.ingestChunks(ctx, files, chunks)
}

// IngestText ingests a single in-memory source body.
func (in *Ingester) IngestText(ctx context.Context, source, text string) (Report, error) {
	chunks := extract.SplitChunks(source, text, in.chunkLines)
	for i := range chunks {
		chunks[i].Index = i
	}
	return in.ingestChunks(ctx, 1, chunks)
}

// ingestChunks scans, links, and persists. Persistence happens in
// chunk-atomic batches; a failure rejects the current batch but leaves
// earlier committed batches in place, which the caller sees as a failed
// ingestion with partial effects.
func (in *Ingester) ingestChunks(ctx context.Context, files int, chunks []extract.Chunk) (Report, error) {
	units, stats, err := in.pool.ScanAll(ctx, chunks)
	if err != nil {
		return Report{}, fmt.Errorf("scan: %w", err)
	}

	ix := graph.NewIndex(units)
	edges := graph.BuildEdges(units, ix)

	for start := 0; start < len(units); start += in.batchSize {
		end := start + in.batchSize
		if end > len(units) {
			end = len(units)
		}
		if err := in.store.PutUnits(ctx, units[start:end]); err != nil {
			return Report{}, fmt.Errorf("persist units: %w", err)
		}
	}
	if err := in.store.PutEdges(ctx, edges); err != nil {
		return Report{}, fmt.Errorf("persist edges: %w", err)
	}

	rep := Report{
		Files:  files,
		Chunks: len(chunks),
		Units:  len(units),
		Edges:  len(edges),
		Stats:  stats,
	}
	in.logger.Info("ingestion complete",
		zap.Int("files", rep.Files),
		zap.Int("chunks", rep.Chunks),
		zap.Int("units", rep.Units),
		zap.Int("edges", rep.Edges),
		zap.Int("skipped_candidates", stats.Skipped))
	return rep, nil
}
