package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"unitmap/internal/unit"
)

// Chunk is an immutable slice of input handed to one worker.
type Chunk struct {
	Index      int
	Source     string
	Text       string
	LineOffset int
}

// Result is a self-contained worker response for one chunk.
type Result struct {
	Chunk Chunk
	Units []unit.Unit
	Stats ScanStats
}

// Pool scans chunks on isolated workers. Workers share no mutable state;
// chunks go out and results come back over channels only.
type Pool struct {
	workers      int
	stallTimeout time.Duration
	logger       *zap.Logger
}

// NewPool creates a worker pool. A stallTimeout of zero disables the
// per-chunk watchdog.
func NewPool(workers int, stallTimeout time.Duration, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{workers: workers, stallTimeout: stallTimeout, logger: logger}
}

// ScanAll scans every chunk and returns the combined units. Results are
// consumed in submission order for progress reporting only; unit identity
// does not depend on completion order. Cancelling ctx abandons the
// remaining work.
func (p *Pool) ScanAll(ctx context.Context, chunks []Chunk) ([]unit.Unit, ScanStats, error) {
	jobs := make(chan Chunk)
	results := make(chan Result, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < p.workers; w++ {
		g.Go(func() error {
			for chunk := range jobs {
				res, err := p.scanOne(ctx, chunk)
				if err != nil {
					return err
				}
				select {
				case results <- res:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for _, c := range chunks {
			select {
			case jobs <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, ScanStats{}, err
	}
	close(results)

	byIndex := make(map[int]Result, len(chunks))
	for res := range results {
		byIndex[res.Chunk.Index] = res
	}

	var all []unit.Unit
	var stats ScanStats
	for _, c := range chunks {
		res := byIndex[c.Index]
		stats.merge(res.Stats)
		all = append(all, res.Units...)
		p.logger.Debug("chunk scanned",
			zap.Int("chunk", c.Index),
			zap.String("source", c.Source),
			zap.Int("units", len(res.Units)),
			zap.Int("skipped", res.Stats.Skipped))
	}
	return all, stats, nil
}

func (p *Pool) scanOne(ctx context.Context, c Chunk) (Result, error) {
	if p.stallTimeout <= 0 {
		units, stats := Scan(c.Text, c.LineOffset, c.Source)
		return Result{Chunk: c, Units: units, Stats: stats}, nil
	}

	done := make(chan Result, 1)
	go func() {
		units, stats := Scan(c.Text, c.LineOffset, c.Source)
		done <- Result{Chunk: c, Units: units, Stats: stats}
	}()

	select {
	case res := <-done:
		return res, nil
	case <-time.After(p.stallTimeout):
		return Result{}, fmt.Errorf("chunk %d (%s): worker stalled after %s", c.Index, c.Source, p.stallTimeout)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// SplitChunks splits text into chunks of at most maxLines lines, preferring
// a blank-line boundary near the limit so bodies are rarely cut mid-unit.
// Chunk indexes start at 0; callers combining multiple inputs renumber them.
func SplitChunks(source, text string, maxLines int) []Chunk {
	lines := strings.Split(text, "\n")
	if maxLines < 1 || len(lines) <= maxLines {
		return []Chunk{{Source: source, Text: text}}
	}

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end := start + maxLines
		if end >= len(lines) {
			end = len(lines)
		} else {
			// back up to the nearest blank line, within a quarter chunk
			for back := end; back > end-maxLines/4 && back > start+1; back-- {
				if strings.TrimSpace(lines[back-1]) == "" {
					end = back
					break
				}
			}
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Source:     source,
			Text:       strings.Join(lines[start:end], "\n"),
			LineOffset: start,
		})
		start = end
	}
	return chunks
}
