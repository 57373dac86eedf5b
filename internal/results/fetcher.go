package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rickgao/basemap-orders/internal/model"
)

// ErrExpired is returned for artifacts whose download link has expired.
var ErrExpired = errors.New("artifact link expired")

// Mirror copies a downloaded file somewhere durable.
type Mirror interface {
	Mirror(ctx context.Context, key, path string) (string, error)
}

// Artifact is a downloaded manifest entry.
type Artifact struct {
	Name     string
	Path     string
	MirrorTo string // empty when no mirror is configured
}

// Fetcher downloads manifest artifacts into a local directory.
type Fetcher struct {
	httpClient *http.Client
	dir        string
	mirror     Mirror
	logger     *slog.Logger
	now        func() time.Time
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = hc
	}
}

// WithMirror mirrors every downloaded file.
func WithMirror(m Mirror) FetcherOption {
	return func(f *Fetcher) {
		f.mirror = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher that writes below dir.
func NewFetcher(dir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Minute},
		dir:        dir,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads every artifact of an order into <dir>/<orderID>/. An
// artifact that fails does not stop the others; all failures are joined into
// the returned error.
func (f *Fetcher) Fetch(ctx context.Context, orderID string, manifest model.ResultManifest) ([]Artifact, error) {
	var (
		fetched []Artifact
		errs    []error
	)

	for _, item := range manifest {
		if err := ctx.Err(); err != nil {
			return fetched, err
		}

		art, err := f.fetchOne(ctx, orderID, item)
		if err != nil {
			f.logger.Warn("artifact download failed", "order_id", orderID, "name", item.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", item.Name, err))
			continue
		}
		fetched = append(fetched, art)
	}

	return fetched, errors.Join(errs...)
}

func (f *Fetcher) fetchOne(ctx context.Context, orderID string, item model.ResultArtifact) (Artifact, error) {
	if !item.ExpiresAt.IsZero() && f.now().After(item.ExpiresAt) {
		return Artifact{}, fmt.Errorf("%w at %s", ErrExpired, item.ExpiresAt.Format(time.RFC3339))
	}

	path, err := f.localPath(orderID, item.Name)
	if err != nil {
		return Artifact{}, err
	}

	if err := f.download(ctx, item.Location, path); err != nil {
		return Artifact{}, err
	}

	art := Artifact{Name: item.Name, Path: path}
	f.logger.Debug("artifact downloaded", "order_id", orderID, "name", item.Name, "path", path)

	if f.mirror != nil {
		key := orderID + "/" + strings.TrimPrefix(filepath.ToSlash(item.Name), "/")
		dest, err := f.mirror.Mirror(ctx, key, path)
		if err != nil {
			return art, fmt.Errorf("mirror: %w", err)
		}
		art.MirrorTo = dest
	}

	return art, nil
}

// localPath maps an artifact name below the order directory, refusing names
// that escape it.
func (f *Fetcher) localPath(orderID, name string) (string, error) {
	if name == "" {
		return "", errors.New("artifact has no name")
	}
	root := filepath.Join(f.dir, orderID)
	path := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("artifact name %q escapes download directory", name)
	}
	return path, nil
}

func (f *Fetcher) download(ctx context.Context, location, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("download returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
