// Package assetsync mirrors honor art from the game's public asset storage
// into the local asset tree.
//
// Storage is an S3-compatible bucket. Directories are enumerated with
// ListObjectsV2 (delimiter "/"), and the listings are cached in the data
// directory so later runs only descend into directories they have not seen.
// Only files missing locally are downloaded.
package assetsync

import (
	"bufio"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/sekaibake/internal/atomicfile"
	"tools.zach/dev/sekaibake/internal/logger"
	"tools.zach/dev/sekaibake/internal/paths"
)

// maxListingBytes bounds a single listing response.
const maxListingBytes = 16 << 20

// ErrStatus is wrapped by errors for non-200 storage responses.
var ErrStatus = errors.New("unexpected storage status")

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Options configures a Client.
type Options struct {
	// ENBaseURL is tried first for prefixes that allow it. May be empty.
	ENBaseURL string
	// JPBaseURL is used for listings and as the download fallback.
	JPBaseURL string
	// RetryMax is the retry budget per request.
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	// Zero keeps the retryablehttp defaults.
	RetryWaitMin, RetryWaitMax time.Duration
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// ListDelay and DownloadDelay throttle consecutive requests.
	ListDelay, DownloadDelay time.Duration
	Logger                   *slog.Logger
}

// Prefix is one storage prefix to mirror.
type Prefix struct {
	// Key is the storage prefix, ending in '/'.
	Key string
	// Cache names the listing cache files.
	Cache string
	// TryEN downloads from EN storage before JP.
	TryEN bool
}

// Result summarizes a sync.
type Result struct {
	Listed     int
	Missing    int
	Downloaded int
	Failed     int
}

// Client talks to the asset storage.
type Client struct {
	http *retryablehttp.Client
	opts Options
	log  *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		hc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		hc.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		hc.HTTPClient.Timeout = opts.Timeout
	}
	hc.Logger = nil // per-request lines are logged below at trace
	return &Client{http: hc, opts: opts, log: log}
}

// ///////////////////////////////////////////////
// Listing
// ///////////////////////////////////////////////

// listBucketResult is the subset of a ListObjectsV2 response we read. Tags
// carry no namespace so the S3 namespace is accepted.
type listBucketResult struct {
	IsTruncated           bool   `xml:"IsTruncated"`
	NextContinuationToken string `xml:"NextContinuationToken"`
	CommonPrefixes        []struct {
		Prefix string `xml:"Prefix"`
	} `xml:"CommonPrefixes"`
	Contents []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
}

// List returns the immediate children of prefix on baseURL: sub-prefixes
// (ending in '/') followed by object keys, across every result page.
func (c *Client) List(ctx context.Context, baseURL, prefix string) ([]string, error) {
	var dirs, files []string
	token := ""
	for {
		page, err := c.listPage(ctx, baseURL, prefix, token)
		if err != nil {
			return nil, err
		}
		for _, p := range page.CommonPrefixes {
			dirs = append(dirs, p.Prefix)
		}
		for _, k := range page.Contents {
			files = append(files, k.Key)
		}
		if !page.IsTruncated || page.NextContinuationToken == "" {
			break
		}
		token = page.NextContinuationToken
	}
	return append(dirs, files...), nil
}

func (c *Client) listPage(ctx context.Context, baseURL, prefix, token string) (*listBucketResult, error) {
	q := url.Values{}
	q.Set("delimiter", "/")
	q.Set("list-type", "2")
	q.Set("prefix", prefix)
	if token != "" {
		q.Set("continuation-token", token)
	}
	u := baseURL + "?" + q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	logger.Trace(c.log, "listing storage", "prefix", prefix, "token", token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: %w %d", prefix, ErrStatus, resp.StatusCode)
	}

	var page listBucketResult
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxListingBytes)).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", prefix, err)
	}
	return &page, nil
}

// listFiles returns every object key below dir, descending into
// sub-prefixes.
func (c *Client) listFiles(ctx context.Context, baseURL, dir string) ([]string, error) {
	entries, err := c.List(ctx, baseURL, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !strings.HasSuffix(e, "/") {
			files = append(files, e)
			continue
		}
		if err := sleep(ctx, c.opts.ListDelay); err != nil {
			return nil, err
		}
		nested, err := c.listFiles(ctx, baseURL, e)
		if err != nil {
			return nil, err
		}
		files = append(files, nested...)
	}
	return files, nil
}

// ///////////////////////////////////////////////
// Missing Paths
// ///////////////////////////////////////////////

// MissingPaths lists the bundle directories below p.Key, descends only into
// directories absent from the directory cache, records their files in the
// path cache, and returns every cached path not present under localRoot.
func (c *Client) MissingPaths(ctx context.Context, p Prefix, localRoot, cacheDir string) ([]string, int, error) {
	dirCache := filepath.Join(cacheDir, p.Cache+"Dirs.txt")
	pathCache := filepath.Join(cacheDir, p.Cache+"Paths.txt")

	cachedDirs, err := readLines(dirCache)
	if err != nil {
		return nil, 0, err
	}
	known := make(map[string]bool, len(cachedDirs))
	for _, d := range cachedDirs {
		known[d] = true
	}

	dirs, err := c.List(ctx, c.opts.JPBaseURL, p.Key)
	if err != nil {
		return nil, 0, err
	}

	var unseen []string
	for _, d := range dirs {
		if !known[d] {
			unseen = append(unseen, d)
		}
	}

	var fresh []string
	for i, d := range unseen {
		if !strings.HasSuffix(d, "/") {
			fresh = append(fresh, d)
			continue
		}
		files, err := c.listFiles(ctx, c.opts.JPBaseURL, d)
		if err != nil {
			return nil, 0, err
		}
		fresh = append(fresh, files...)
		if err := sleep(ctx, c.opts.ListDelay); err != nil {
			return nil, 0, err
		}
		logger.Progress(c.log, "listing "+p.Key, i+1, len(unseen))
	}

	cachedPaths, err := readLines(pathCache)
	if err != nil {
		return nil, 0, err
	}
	all := dedupe(append(cachedPaths, fresh...))
	// Paths first, so an interrupted run re-lists the new directories.
	if err := writeLines(pathCache, all); err != nil {
		return nil, 0, err
	}
	if err := writeLines(dirCache, dirs); err != nil {
		return nil, 0, err
	}

	tree := paths.AssetTree{Root: localRoot}
	var missing []string
	for _, key := range all {
		if !paths.ValidKey(key) {
			c.log.Warn("skipping storage key outside asset tree", "key", key)
			continue
		}
		if _, err := os.Stat(tree.Local(key)); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, key)
		}
	}
	c.log.Info("storage listed", "prefix", p.Key, "dirs", len(dirs), "new_dirs", len(unseen), "paths", len(all), "missing", len(missing))
	return missing, len(all), nil
}

// ///////////////////////////////////////////////
// Download
// ///////////////////////////////////////////////

// Download fetches each key into localRoot. With tryEN set, EN storage is
// tried first and JP is the fallback. Failed keys are logged and counted;
// only cancellation aborts. Keys that would land outside localRoot count as
// failed without a request.
func (c *Client) Download(ctx context.Context, keys []string, localRoot string, tryEN bool) (downloaded, failed int, err error) {
	tree := paths.AssetTree{Root: localRoot}
	for i, key := range keys {
		if !paths.ValidKey(key) {
			c.log.Warn("skipping storage key outside asset tree", "key", key)
			failed++
			continue
		}
		dst := tree.Local(key)
		var fetchErr error
		if tryEN && c.opts.ENBaseURL != "" {
			fetchErr = c.fetch(ctx, c.opts.ENBaseURL+key, dst)
			if fetchErr != nil {
				logger.Trace(c.log, "EN download failed, falling back to JP", "key", key, "error", fetchErr)
			}
		}
		if !tryEN || c.opts.ENBaseURL == "" || fetchErr != nil {
			fetchErr = c.fetch(ctx, c.opts.JPBaseURL+key, dst)
		}
		if ctx.Err() != nil {
			return downloaded, failed, ctx.Err()
		}
		if fetchErr != nil {
			c.log.Warn("download failed", "key", key, "error", fetchErr)
			failed++
		} else {
			downloaded++
		}
		logger.Progress(c.log, "downloading", i+1, len(keys))
		if err := sleep(ctx, c.opts.DownloadDelay); err != nil {
			return downloaded, failed, err
		}
	}
	return downloaded, failed, nil
}

// fetch streams u into dst atomically.
func (c *Client) fetch(ctx context.Context, u, dst string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %w %d", u, ErrStatus, resp.StatusCode)
	}
	return atomicfile.WriteFunc(dst, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
}

// ///////////////////////////////////////////////
// Sync
// ///////////////////////////////////////////////

// Sync lists and downloads every prefix in order.
func (c *Client) Sync(ctx context.Context, prefixes []Prefix, localRoot, cacheDir string) (Result, error) {
	var res Result
	for _, p := range prefixes {
		missing, listed, err := c.MissingPaths(ctx, p, localRoot, cacheDir)
		if err != nil {
			return res, fmt.Errorf("list %s: %w", p.Key, err)
		}
		res.Listed += listed
		res.Missing += len(missing)

		ok, failed, err := c.Download(ctx, missing, localRoot, p.TryEN)
		res.Downloaded += ok
		res.Failed += failed
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// readLines returns the non-empty lines of path, or nil when it does not
// exist.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cache %s: %w", filepath.Base(path), err)
	}
	return lines, nil
}

func writeLines(path string, lines []string) error {
	return atomicfile.WriteFunc(path, 0o644, func(w io.Writer) error {
		for _, l := range lines {
			if _, err := io.WriteString(w, l+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
