package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cloudeng.io/errors"
	"github.com/AdrienChampion/sat-micro-rust/internal/cleanup"
	"github.com/AdrienChampion/sat-micro-rust/internal/logctx"
	"github.com/AdrienChampion/sat-micro-rust/internal/storage"
	"github.com/AdrienChampion/sat-micro-rust/internal/telemetry"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm  = 0755
	filePerm = 0644

	// partialTTL is how long an untouched partial file is kept when the
	// client has no timeout bounding the request writing it.
	partialTTL = time.Hour
)

// Fetcher retrieves a list of URIs into a target directory. A failed URI is
// recorded and does not stop the others.
type Fetcher struct {
	targetDir   string
	maxParallel int
	client      *http.Client
	telemetry   *telemetry.Telemetry
	journal     storage.RetrievalWriteRepository
	runID       string

	mu sync.Mutex
	// claimed maps each local file name handed out during a run to its URI.
	claimed map[string]string
}

// NewFetcher fails with a *TargetError when targetDir exists and is not a
// directory. client, tel and journal may be nil.
func NewFetcher(
	targetDir string,
	maxParallel int,
	client *http.Client,
	tel *telemetry.Telemetry,
	journal storage.RetrievalWriteRepository,
) (*Fetcher, error) {
	if err := checkTarget(targetDir); err != nil {
		return nil, err
	}

	if maxParallel < 1 {
		maxParallel = 1
	}

	if client == nil {
		client = &http.Client{}
	}

	return &Fetcher{
		targetDir:   targetDir,
		maxParallel: maxParallel,
		client:      client,
		telemetry:   tel,
		journal:     journal,
		runID:       storage.GenerateRunID(),
		claimed:     make(map[string]string),
	}, nil
}

// TargetDir returns the directory files are written to.
func (f *Fetcher) TargetDir() string {
	return f.targetDir
}

// RunID identifies this Fetcher in journal records and partial file names.
func (f *Fetcher) RunID() string {
	return f.runID
}

// Run fetches every URI and returns the number of files persisted. The error
// is a *TargetError when the target directory is unusable, in which case no
// request was made. Otherwise it is nil, or an *errors.M holding one
// *FetchError per failed URI in the order of uris.
func (f *Fetcher) Run(ctx context.Context, uris []string) (int, error) {
	ctx = logctx.With(ctx, "run_id", f.runID)
	logger := logctx.LoggerFromContext(ctx)

	if err := f.ensureTargetDir(); err != nil {
		logger.Error("failed to prepare target directory", "target_dir", f.targetDir, "err", err)

		return 0, err
	}

	f.mu.Lock()
	f.claimed = make(map[string]string)
	f.mu.Unlock()

	if _, err := cleanup.RemovePartialFiles(ctx, f.targetDir, f.partialTTL()); err != nil {
		logger.Warn("failed to remove partial files", "target_dir", f.targetDir, "err", err)
	}

	logger.Info("retrieving benchmarks", "count", len(uris), "target_dir", f.targetDir, "max_parallel", f.maxParallel)

	var retrieved int32

	// One slot per URI so the accumulated errors follow the list order.
	results := make([]error, len(uris))

	err := f.telemetry.InstrumentRun(ctx, len(uris), func(ctx context.Context) error {
		var wg errgroup.Group

		wg.SetLimit(f.maxParallel)

		for i, uri := range uris {
			wg.Go(func() error {
				if _, _, err := f.Fetch(ctx, uri); err != nil {
					results[i] = &FetchError{URI: uri, Err: err}

					return nil
				}

				atomic.AddInt32(&retrieved, 1)

				return nil
			})
		}

		// Workers never return an error, failures live in results.
		_ = wg.Wait()

		errs := &errors.M{}
		errs.Append(results...)

		return errs.Err()
	})

	failed := len(uris) - int(retrieved)
	if err != nil {
		logger.Error("retrieval finished with failures", "retrieved", retrieved, "failed", failed)

		return int(retrieved), err
	}

	logger.Info("retrieval finished", "retrieved", retrieved)

	return int(retrieved), nil
}

// Fetch retrieves a single URI into the target directory and returns the
// path and size of the persisted file. The directory must exist; Run creates
// it.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (string, int64, error) {
	var (
		targetPath string
		size       int64
	)

	err := f.telemetry.InstrumentFetch(ctx, uri, func(ctx context.Context) error {
		var err error
		targetPath, size, err = f.fetch(ctx, uri)

		return err
	})

	f.track(ctx, uri, targetPath, size, err)

	return targetPath, size, err
}

func (f *Fetcher) fetch(ctx context.Context, uri string) (string, int64, error) {
	logger := logctx.LoggerFromContext(ctx).With("uri", uri)

	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	logger.Debug("response received",
		"status", resp.Status,
		"content_length", resp.ContentLength,
		"headers", resp.Header,
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

		return "", 0, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	targetPath := filepath.Join(f.targetDir, f.claimName(uri, resp.Header.Get("Content-Disposition")))

	size, err := f.writeFile(resp.Body, targetPath)
	if err != nil {
		return "", 0, err
	}

	logger.Info("downloaded and saved benchmark", "target", targetPath, "size", humanize.Bytes(uint64(size)))

	return targetPath, size, nil
}

// writeFile streams body to a partial file renamed to targetPath once
// complete, so targetPath never holds a truncated body. The partial name
// carries the run id so concurrent runs on one directory do not share it.
func (f *Fetcher) writeFile(body io.Reader, targetPath string) (int64, error) {
	partial := targetPath + "." + f.runID + cleanup.PartialSuffix

	out, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return 0, fmt.Errorf("failed to create target file: %w", err)
	}

	n, err := io.Copy(out, body)
	if err != nil {
		out.Close()
		os.Remove(partial)

		return 0, fmt.Errorf("failed to copy body: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(partial)

		return 0, fmt.Errorf("failed to close target file: %w", err)
	}

	if err := os.Rename(partial, targetPath); err != nil {
		os.Remove(partial)

		return 0, fmt.Errorf("failed to move target file into place: %w", err)
	}

	f.telemetry.RecordBytesWritten(n)

	return n, nil
}

func (f *Fetcher) track(ctx context.Context, uri, targetPath string, size int64, fetchErr error) {
	if f.journal == nil {
		return
	}

	rec := storage.RetrievalRecord{
		RunID:       f.runID,
		URI:         uri,
		FilePath:    targetPath,
		Size:        size,
		Status:      storage.StatusRetrieved,
		RetrievedAt: time.Now(),
	}

	if fetchErr != nil {
		rec.Status = storage.StatusFailed
		rec.Error = fetchErr.Error()
	}

	// The outcome is journaled even when the run is being cancelled.
	if err := f.journal.TrackRetrieval(context.WithoutCancel(ctx), rec); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to journal retrieval", "uri", uri, "err", err)
	}
}

// claimName returns the local name for uri, unique within the current run.
// The preferred name comes from fileName; when another URI already holds it
// the URI's own last segment is tried, then its hash.
func (f *Fetcher) claimName(uri, contentDisposition string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	hash := hashName(uri)

	for _, name := range []string{fileName(uri, contentDisposition), uriName(uri), hash} {
		if _, taken := f.claimed[name]; !taken {
			f.claimed[name] = uri

			return name
		}
	}

	// Only reached when uri appears more than once in the list.
	for n := 2; ; n++ {
		name := hash + "-" + strconv.Itoa(n)
		if _, taken := f.claimed[name]; !taken {
			f.claimed[name] = uri

			return name
		}
	}
}

// partialTTL is the age past which a partial file cannot belong to a live
// request of any run using the same client settings.
func (f *Fetcher) partialTTL() time.Duration {
	if f.client.Timeout > 0 {
		return f.client.Timeout
	}

	return partialTTL
}

func (f *Fetcher) ensureTargetDir() error {
	if err := checkTarget(f.targetDir); err != nil {
		return err
	}

	if err := os.MkdirAll(f.targetDir, dirPerm); err != nil {
		return &TargetError{Path: f.targetDir, Reason: "cannot create directory", Err: err}
	}

	return nil
}

func checkTarget(targetDir string) error {
	info, err := os.Stat(targetDir)

	switch {
	case err == nil:
		if !info.IsDir() {
			return &TargetError{Path: targetDir, Reason: "not a directory"}
		}

		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return &TargetError{Path: targetDir, Reason: "cannot stat path", Err: err}
	}
}

// fileName picks the local name for uri: the Content-Disposition filename,
// else the last path segment, else the SHA-1 of the URI.
func fileName(uri, contentDisposition string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if name := safeName(params["filename"]); name != "" {
				return name
			}
		}
	}

	return uriName(uri)
}

// uriName is the last path segment of uri, else its hash.
func uriName(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		if name := safeName(path.Base(u.Path)); name != "" {
			return name
		}
	}

	return hashName(uri)
}

func hashName(uri string) string {
	sum := sha1.Sum([]byte(uri))

	return hex.EncodeToString(sum[:])
}

func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))

	switch {
	case name == "." || name == ".." || name == "/":
		return ""
	case strings.HasSuffix(name, cleanup.PartialSuffix):
		return ""
	}

	return name
}
