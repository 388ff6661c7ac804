package semaphore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/types"
	"golang.org/x/sync/errgroup"
)

// ErrArtifactMissing is returned by Load when the artifact is not cached.
var ErrArtifactMissing = errors.New("artifact not found in cache")

// Artifact is a content addressed file: the compiled circuit or one of the
// keys. Content is stored in the cache under the hex of its sha256 Hash.
type Artifact struct {
	Name      string         `json:"name"`
	RemoteURL string         `json:"url,omitempty"`
	Hash      types.HexBytes `json:"hash"`
	Content   []byte         `json:"-"`
}

// NewArtifact wraps content and computes its hash.
func NewArtifact(name string, content []byte) *Artifact {
	sum := sha256.Sum256(content)
	return &Artifact{Name: name, Hash: sum[:], Content: content}
}

// CircuitArtifacts are the three artifacts of one tree depth.
type CircuitArtifacts struct {
	Depth        int       `json:"depth"`
	Circuit      *Artifact `json:"circuit,omitempty"`
	ProvingKey   *Artifact `json:"provingKey,omitempty"`
	VerifyingKey *Artifact `json:"verifyingKey,omitempty"`
}

func (ca *CircuitArtifacts) all() []*Artifact {
	var out []*Artifact
	for _, a := range []*Artifact{ca.Circuit, ca.ProvingKey, ca.VerifyingKey} {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// ManifestName is the file listing the artifacts of a depth next to them.
func ManifestName(depth int) string {
	return fmt.Sprintf("semaphore-%d.json", depth)
}

// WithBaseURL sets every artifact's RemoteURL to base/<hash>.
func (ca *CircuitArtifacts) WithBaseURL(base string) *CircuitArtifacts {
	for _, a := range ca.all() {
		a.RemoteURL = base + "/" + a.Hash.Hex()
	}
	return ca
}

// Cache is a directory of artifacts named by hash, filled from http(s)
// URLs or s3://bucket/key locations.
type Cache struct {
	Dir         string
	CheckHashes bool
	S3          *S3Store
	HTTPClient  *http.Client
}

// NewCache returns a cache rooted at dir, creating it if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir %s: %w", dir, err)
	}
	return &Cache{Dir: dir, CheckHashes: true, HTTPClient: http.DefaultClient}, nil
}

func (c *Cache) path(a *Artifact) string {
	return filepath.Join(c.Dir, a.Hash.Hex())
}

// Load reads the artifact content from the cache and checks its hash.
func (c *Cache) Load(a *Artifact) error {
	if len(a.Content) != 0 {
		return nil
	}
	if len(a.Hash) == 0 {
		return fmt.Errorf("artifact %s: hash not provided", a.Name)
	}
	content, err := os.ReadFile(c.path(a))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, a.Name)
	}
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", a.Name, err)
	}
	if c.CheckHashes {
		if sum := sha256.Sum256(content); !bytes.Equal(sum[:], a.Hash) {
			return fmt.Errorf("artifact %s: hash mismatch, expected %x, got %x", a.Name, a.Hash, sum)
		}
	}
	a.Content = content
	return nil
}

// Store writes the artifact content into the cache.
func (c *Cache) Store(a *Artifact) error {
	if len(a.Content) == 0 {
		return fmt.Errorf("artifact %s has no content", a.Name)
	}
	tmp := c.path(a) + ".tmp"
	if err := os.WriteFile(tmp, a.Content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(a))
}

// Download fetches the artifact unless it is already cached, then loads it.
func (c *Cache) Download(ctx context.Context, a *Artifact) error {
	if err := c.Load(a); err == nil {
		return nil
	} else if !errors.Is(err, ErrArtifactMissing) {
		log.Warnw("cached artifact unusable, downloading again", "name", a.Name, "error", err.Error())
	}
	if a.RemoteURL == "" {
		return fmt.Errorf("artifact %s not cached and remote url not provided", a.Name)
	}
	if err := c.downloadAndStore(ctx, a); err != nil {
		return fmt.Errorf("download %s: %w", a.Name, err)
	}
	return c.Load(a)
}

// LoadAll loads every present artifact from the cache.
func (c *Cache) LoadAll(ca *CircuitArtifacts) error {
	for _, a := range ca.all() {
		if err := c.Load(a); err != nil {
			return err
		}
	}
	return nil
}

// DownloadAll downloads the artifacts concurrently.
func (c *Cache) DownloadAll(ctx context.Context, ca *CircuitArtifacts) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, a := range ca.all() {
		g.Go(func() error { return c.Download(ctx, a) })
	}
	return g.Wait()
}

// StoreAll writes every artifact with content into the cache.
func (c *Cache) StoreAll(ca *CircuitArtifacts) error {
	for _, a := range ca.all() {
		if err := c.Store(a); err != nil {
			return fmt.Errorf("store %s: %w", a.Name, err)
		}
	}
	return nil
}

// FetchManifest downloads and decodes the manifest of depth published under
// base. Artifact URLs missing from the manifest default to base/<hash>.
func (c *Cache) FetchManifest(ctx context.Context, base string, depth int) (*CircuitArtifacts, error) {
	body, _, err := c.open(ctx, base+"/"+ManifestName(depth), 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	ca := &CircuitArtifacts{}
	if err := json.NewDecoder(body).Decode(ca); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if ca.Depth != depth {
		return nil, fmt.Errorf("manifest is for depth %d, want %d", ca.Depth, depth)
	}
	for _, a := range ca.all() {
		if a.RemoteURL == "" {
			a.RemoteURL = base + "/" + a.Hash.Hex()
		}
	}
	return ca, nil
}

// open returns a reader over the remote object starting at offset. The
// boolean is true when the source honoured the offset.
func (c *Cache) open(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "s3":
		if c.S3 == nil {
			return nil, false, fmt.Errorf("s3 source %s requested but no s3 store configured", rawURL)
		}
		return c.S3.Open(ctx, u.Host, u.Path[1:], offset)
	case "http", "https":
		return c.openHTTP(ctx, rawURL, offset)
	default:
		return nil, false, fmt.Errorf("unsupported artifact url %q", rawURL)
	}
}

func (c *Cache) openHTTP(ctx context.Context, rawURL string, offset int64) (io.ReadCloser, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, false, err
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		_ = res.Body.Close()
		return nil, false, fmt.Errorf("GET %s: http status %d", rawURL, res.StatusCode)
	}
	return res.Body, res.StatusCode == http.StatusPartialContent, nil
}

type countingReader struct {
	r     io.Reader
	total atomic.Int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.total.Add(int64(n))
	return n, err
}

// downloadAndStore streams the remote object into <hash>.partial, resuming
// a previous partial download when the source supports ranges, and renames
// it once the hash matches.
func (c *Cache) downloadAndStore(ctx context.Context, a *Artifact) error {
	final := c.path(a)
	partial := final + ".partial"

	var offset int64
	if info, err := os.Stat(partial); err == nil {
		offset = info.Size()
	}
	body, resumed, err := c.open(ctx, a.RemoteURL, offset)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if resumed {
		flags = os.O_APPEND | os.O_WRONLY
	}
	hasher := sha256.New()
	if resumed {
		existing, err := os.ReadFile(partial)
		if err != nil {
			return err
		}
		hasher.Write(existing)
	}
	fd, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}
	defer func() { _ = fd.Close() }()

	cr := &countingReader{r: body}
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.MultiWriter(fd, hasher), cr)
		done <- err
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
wait:
	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("copy artifact data: %w", err)
			}
			break wait
		case <-ticker.C:
			log.Debugw("downloading artifact", "name", a.Name,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(cr.total.Load())/(1024*1024)))
		}
	}

	if sum := hasher.Sum(nil); c.CheckHashes && !bytes.Equal(sum, a.Hash) {
		_ = os.Remove(partial)
		return fmt.Errorf("hash mismatch: expected %x, got %x", []byte(a.Hash), sum)
	}
	if err := fd.Close(); err != nil {
		return err
	}
	return os.Rename(partial, final)
}

// Manifest encodes the artifact list as published next to the artifacts.
func (ca *CircuitArtifacts) Manifest() ([]byte, error) {
	return json.MarshalIndent(ca, "", "  ")
}

// WriteManifest stores the manifest in the cache directory.
func (c *Cache) WriteManifest(ca *CircuitArtifacts) (string, error) {
	data, err := ca.Manifest()
	if err != nil {
		return "", err
	}
	path := filepath.Join(c.Dir, ManifestName(ca.Depth))
	return path, os.WriteFile(path, data, 0o644)
}

// ReadManifest reads a manifest previously written with WriteManifest.
func (c *Cache) ReadManifest(depth int) (*CircuitArtifacts, error) {
	data, err := os.ReadFile(filepath.Join(c.Dir, ManifestName(depth)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: manifest for depth %d", ErrArtifactMissing, depth)
	}
	if err != nil {
		return nil, err
	}
	ca := &CircuitArtifacts{}
	if err := json.Unmarshal(data, ca); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return ca, nil
}
