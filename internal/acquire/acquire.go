// Package acquire downloads the crash dataset to the local cache file.
//
// Every failure, including cancellation, removes the partially written file
// before returning an *types.AcquisitionError. Nothing is retried.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"

	"crashmap/internal/types"
)

// Progress is called with the bytes received so far and the expected total,
// or -1 when the server did not announce one.
type Progress func(read, total int64)

// Exists reports whether a cached dataset is already present. There is no
// freshness or checksum test.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	UserAgent  string
	// LimitParam and OffsetParam name the paging query parameters.
	LimitParam  string
	OffsetParam string
	// PagesPerSecond paces paged requests; zero means unpaced.
	PagesPerSecond float64
	Logger         *slog.Logger
}

// Client fetches datasets over HTTP.
type Client struct {
	http        *http.Client
	userAgent   string
	limitParam  string
	offsetParam string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient returns a Client with defaults filled in.
func NewClient(opts Options) *Client {
	c := &Client{
		http:        opts.HTTPClient,
		userAgent:   opts.UserAgent,
		limitParam:  opts.LimitParam,
		offsetParam: opts.OffsetParam,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		logger:      opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Minute}
	}
	if c.userAgent == "" {
		c.userAgent = "crashmap/1.0"
	}
	if c.limitParam == "" {
		c.limitParam = "$limit"
	}
	if c.offsetParam == "" {
		c.offsetParam = "$offset"
	}
	if opts.PagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.PagesPerSecond), 1)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Download fetches url with a single GET and writes the body to dst.
func (c *Client) Download(ctx context.Context, url, dst string, progress Progress) (err error) {
	out, err := create(dst)
	if err != nil {
		return &types.AcquisitionError{URL: url, Err: err}
	}
	defer func() { err = out.finish(err) }()

	start := time.Now()
	resp, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	pr := &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	if pr.total <= 0 {
		pr.total = -1
	}
	n, err := io.Copy(out, pr)
	if err != nil {
		return &types.AcquisitionError{URL: url, Err: err}
	}
	c.logger.Info("dataset downloaded", "url", url, "dst", dst, "bytes", n, "took", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// DownloadPaged fetches a JSON array endpoint page by page with
// offset-based requests of pageSize rows, and writes the pages to dst as a
// single JSON array. A page shorter than pageSize ends the download.
func (c *Client) DownloadPaged(ctx context.Context, url string, pageSize int, dst string, progress Progress) (err error) {
	if pageSize <= 0 {
		return &types.AcquisitionError{URL: url, Err: errors.New("page size must be positive")}
	}
	out, err := create(dst)
	if err != nil {
		return &types.AcquisitionError{URL: url, Err: err}
	}
	defer func() { err = out.finish(err) }()

	var (
		read  int64
		rows  int
		pages int
		start = time.Now()
	)
	if _, err := io.WriteString(out, "["); err != nil {
		return &types.AcquisitionError{URL: url, Err: err}
	}
	for offset := 0; ; offset += pageSize {
		if err := c.limiter.Wait(ctx); err != nil {
			return &types.AcquisitionError{URL: url, Err: err}
		}
		pageURL, err := withPaging(url, c.limitParam, pageSize, c.offsetParam, offset)
		if err != nil {
			return &types.AcquisitionError{URL: url, Err: err}
		}

		elems, n, err := c.page(ctx, pageURL, func(delta int64) {
			read += delta
			if progress != nil {
				progress(read, -1)
			}
		})
		if err != nil {
			return err
		}
		pages++

		for _, e := range elems {
			if rows > 0 {
				if _, err := io.WriteString(out, ","); err != nil {
					return &types.AcquisitionError{URL: url, Err: err}
				}
			}
			if _, err := out.Write(e); err != nil {
				return &types.AcquisitionError{URL: url, Err: err}
			}
			rows++
		}
		c.logger.Debug("page fetched", "offset", offset, "rows", len(elems), "bytes", n)
		if len(elems) < pageSize {
			break
		}
	}
	if _, err := io.WriteString(out, "]"); err != nil {
		return &types.AcquisitionError{URL: url, Err: err}
	}
	c.logger.Info("dataset downloaded", "url", url, "dst", dst, "pages", pages, "rows", rows, "bytes", read, "took", time.Since(start).Truncate(time.Millisecond))
	return nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &types.AcquisitionError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.AcquisitionError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		return nil, &types.AcquisitionError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// output is the file being written, optionally through a zstd encoder.
type output struct {
	path string
	f    *os.File
	w    io.Writer
	enc  *zstd.Encoder
}

func create(path string) (*output, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	o := &output{path: path, f: f, w: f}
	if strings.HasSuffix(strings.ToLower(path), ".zst") {
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
		o.enc = enc
		o.w = enc
	}
	return o, nil
}

func (o *output) Write(p []byte) (int, error) { return o.w.Write(p) }

// finish closes the file and deletes it if err (or closing) failed.
func (o *output) finish(err error) error {
	if o.enc != nil {
		if cerr := o.enc.Close(); cerr != nil && err == nil {
			err = &types.AcquisitionError{URL: o.path, Err: cerr}
		}
	}
	if cerr := o.f.Close(); cerr != nil && err == nil {
		err = &types.AcquisitionError{URL: o.path, Err: cerr}
	}
	if err != nil {
		if rerr := os.Remove(o.path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			return fmt.Errorf("%w (partial file %s not removed: %v)", err, o.path, rerr)
		}
	}
	return err
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.fn != nil {
			p.fn(p.read, p.total)
		}
	}
	return n, err
}
