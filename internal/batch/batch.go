// Package batch runs container operations over whole directories with a
// bounded worker pool. One corrupt file never aborts the run; failures are
// collected per file and reported in the summary.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/save-resign-gateway/internal/audit"
	"github.com/kenneth/save-resign-gateway/internal/backup"
	"github.com/kenneth/save-resign-gateway/internal/codec"
	"github.com/kenneth/save-resign-gateway/internal/export"
	"github.com/kenneth/save-resign-gateway/internal/identity"
	"github.com/kenneth/save-resign-gateway/internal/keycache"
	"github.com/kenneth/save-resign-gateway/internal/metrics"
	"github.com/kenneth/save-resign-gateway/internal/rewrite"
)

const (
	containerExt = ".sav"
	payloadExt   = ".yaml"
	sealedExt    = ".yaml.locked"
)

// FileError records one file that failed during a batch run.
type FileError struct {
	File string
	Err  error
}

// Summary reports the outcome of a batch run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []FileError
}

// Options configures optional batch behavior. All fields may be left zero.
type Options struct {
	// Workers caps the worker pool. Zero means one worker per CPU minus
	// one, with a floor of one.
	Workers int

	// Rewriter, when set, edits decoded payloads during resign runs.
	Rewriter *rewrite.Rewriter

	// Locker, when set, seals decrypted payloads instead of writing them
	// in the clear.
	Locker *export.Locker

	// Uploader, when set, copies encrypted outputs to remote storage.
	Uploader backup.Uploader

	// Audit, when set, receives one event per file.
	Audit audit.Logger

	// Metrics, when set, receives per-file counters and durations.
	Metrics *metrics.Metrics
}

// Processor runs directory-wide decrypt, encrypt, and resign operations.
type Processor struct {
	codec   codec.Codec
	deriver *identity.KeyDeriver
	cache   keycache.Cache
	logger  *logrus.Logger
	opts    Options
}

// NewProcessor creates a batch processor. The cache may be nil to derive
// keys on every call.
func NewProcessor(c codec.Codec, deriver *identity.KeyDeriver, cache keycache.Cache, logger *logrus.Logger, opts Options) *Processor {
	return &Processor{
		codec:   c,
		deriver: deriver,
		cache:   cache,
		logger:  logger,
		opts:    opts,
	}
}

// Workers returns the effective worker pool size.
func (p *Processor) Workers() int {
	if p.opts.Workers > 0 {
		return p.opts.Workers
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// DecryptAll decodes every container in inputDir and writes the payloads to
// outputDir. With a locker configured the payloads are sealed instead of
// written in the clear.
func (p *Processor) DecryptAll(ctx context.Context, inputDir, outputDir, identityStr string) (*Summary, error) {
	files, err := listFiles(inputDir, containerExt)
	if err != nil {
		return nil, err
	}
	key, err := p.resolveKey(identityStr)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return p.run(ctx, "decrypt", files, func(ctx context.Context, file string) error {
		container, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		payload, err := p.codec.Decode(container, key)
		if err != nil {
			return err
		}

		outExt := payloadExt
		if p.opts.Locker != nil {
			payload, err = p.opts.Locker.Seal(payload)
			if err != nil {
				return err
			}
			outExt = sealedExt
		}

		out := outputPath(outputDir, file, containerExt, outExt)
		return os.WriteFile(out, payload, 0o644)
	}, func(file string, success bool, err error, d time.Duration) {
		if p.opts.Audit != nil {
			p.opts.Audit.LogCodec(audit.EventTypeDecode, file, identityStr, success, err, d)
		}
	}), nil
}

// EncryptAll encodes every payload in inputDir into a container in outputDir.
func (p *Processor) EncryptAll(ctx context.Context, inputDir, outputDir, identityStr string) (*Summary, error) {
	files, err := listFiles(inputDir, payloadExt)
	if err != nil {
		return nil, err
	}
	key, err := p.resolveKey(identityStr)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return p.run(ctx, "encrypt", files, func(ctx context.Context, file string) error {
		payload, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		container, err := p.codec.Encode(payload, key)
		if err != nil {
			return err
		}

		out := outputPath(outputDir, file, payloadExt, containerExt)
		if err := os.WriteFile(out, container, 0o644); err != nil {
			return err
		}
		return p.upload(ctx, out, container)
	}, func(file string, success bool, err error, d time.Duration) {
		if p.opts.Audit != nil {
			p.opts.Audit.LogCodec(audit.EventTypeEncode, file, identityStr, success, err, d)
		}
	}), nil
}

// ResignAll decodes every container in inputDir under the source identity and
// re-encodes it under the target identity into outputDir. A configured
// rewriter edits each payload in between.
func (p *Processor) ResignAll(ctx context.Context, inputDir, outputDir, fromIdentity, toIdentity string) (*Summary, error) {
	files, err := listFiles(inputDir, containerExt)
	if err != nil {
		return nil, err
	}
	fromKey, err := p.resolveKey(fromIdentity)
	if err != nil {
		return nil, fmt.Errorf("source identity: %w", err)
	}
	toKey, err := p.resolveKey(toIdentity)
	if err != nil {
		return nil, fmt.Errorf("target identity: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return p.run(ctx, "resign", files, func(ctx context.Context, file string) error {
		container, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		payload, err := p.codec.Decode(container, fromKey)
		if err != nil {
			return err
		}

		if p.opts.Rewriter != nil {
			payload, _, err = p.opts.Rewriter.Apply(payload)
			if err != nil {
				return err
			}
		}

		resigned, err := p.codec.Encode(payload, toKey)
		if err != nil {
			return err
		}

		out := filepath.Join(outputDir, filepath.Base(file))
		if err := os.WriteFile(out, resigned, 0o644); err != nil {
			return err
		}
		return p.upload(ctx, out, resigned)
	}, func(file string, success bool, err error, d time.Duration) {
		if p.opts.Audit != nil {
			p.opts.Audit.LogResign(file, fromIdentity, toIdentity, success, err, d)
		}
	}), nil
}

// run drives the worker pool over files. The record callback receives the
// outcome of every file regardless of success.
func (p *Processor) run(ctx context.Context, operation string, files []string, fn func(context.Context, string) error, record func(string, bool, error, time.Duration)) *Summary {
	var succeeded, failed atomic.Int64
	var mu sync.Mutex
	var failures []FileError

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < p.Workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				start := time.Now()
				err := fn(ctx, file)
				duration := time.Since(start)

				record(file, err == nil, err, duration)
				if p.opts.Metrics != nil {
					p.opts.Metrics.RecordBatchFile(operation, err == nil, duration)
				}

				if err != nil {
					failed.Add(1)
					mu.Lock()
					failures = append(failures, FileError{File: file, Err: err})
					mu.Unlock()
					p.logger.WithFields(logrus.Fields{
						"operation": operation,
						"file":      file,
					}).WithError(err).Warn("Batch file failed")
					continue
				}
				succeeded.Add(1)
			}
		}()
	}

	for _, file := range files {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return p.summarize(operation, files, &succeeded, &failed, failures)
		case jobs <- file:
		}
	}
	close(jobs)
	wg.Wait()

	return p.summarize(operation, files, &succeeded, &failed, failures)
}

func (p *Processor) summarize(operation string, files []string, succeeded, failed *atomic.Int64, failures []FileError) *Summary {
	summary := &Summary{
		Total:     len(files),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Failures:  failures,
	}
	p.logger.WithFields(logrus.Fields{
		"operation": operation,
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Info("Batch run finished")
	return summary
}

// resolveKey derives key material for an identity string, consulting the
// cache when one is configured.
func (p *Processor) resolveKey(identityStr string) ([codec.KeySize]byte, error) {
	if p.cache != nil {
		if key, ok := p.cache.Get(identityStr); ok {
			return [codec.KeySize]byte(key), nil
		}
	}

	key, err := p.deriver.DeriveKey(identityStr)
	if err != nil {
		return [codec.KeySize]byte{}, err
	}
	if p.cache != nil {
		p.cache.Put(identityStr, key)
	}
	return [codec.KeySize]byte(key), nil
}

func (p *Processor) upload(ctx context.Context, file string, data []byte) error {
	if p.opts.Uploader == nil {
		return nil
	}
	return p.opts.Uploader.Upload(ctx, filepath.Base(file), data)
}

// listFiles returns files in dir with the given extension, sorted by name.
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// outputPath maps an input file into outputDir, swapping its extension.
func outputPath(outputDir, file, fromExt, toExt string) string {
	base := strings.TrimSuffix(filepath.Base(file), fromExt)
	return filepath.Join(outputDir, base+toExt)
}
