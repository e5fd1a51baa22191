package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crashmap/internal/types"
)

const body = "Crash_Ref_Number,Crash_Severity\n1,Fatal\n2,Minor injury\n"

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crashes.csv")
	assert.False(t, Exists(path))
	assert.False(t, Exists(dir))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	assert.True(t, Exists(path))
}

func TestDownload(t *testing.T) {
	ua := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua <- r.UserAgent()
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "data", "crashes.csv")
	var lastRead, lastTotal int64
	err := NewClient(Options{}).Download(context.Background(), srv.URL, dst, func(read, total int64) {
		assert.GreaterOrEqual(t, read, lastRead)
		lastRead, lastTotal = read, total
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
	assert.Equal(t, int64(len(body)), lastRead)
	assert.Equal(t, int64(len(body)), lastTotal)
	assert.Equal(t, "crashmap/1.0", <-ua)
}

func TestDownloadUnknownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body[:10])
		w.(http.Flusher).Flush()
		fmt.Fprint(w, body[10:])
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "crashes.csv")
	var totals []int64
	require.NoError(t, NewClient(Options{}).Download(context.Background(), srv.URL, dst, func(_, total int64) {
		totals = append(totals, total)
	}))
	require.NotEmpty(t, totals)
	for _, total := range totals {
		assert.Equal(t, int64(-1), total)
	}
}

func TestDownloadCompressed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "crashes.csv.zst")
	require.NoError(t, NewClient(Options{}).Download(context.Background(), srv.URL, dst, nil))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()

	var sb strings.Builder
	_, err = dec.WriteTo(&sb)
	require.NoError(t, err)
	assert.Equal(t, body, sb.String())
}

func TestDownloadStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "crashes.csv")
	err := NewClient(Options{}).Download(context.Background(), srv.URL, dst, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAcquisition)

	var acqErr *types.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, http.StatusNotFound, acqErr.StatusCode)
	assert.False(t, Exists(dst))
}

func TestDownloadTransportErrorRemovesPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		fmt.Fprint(w, body)
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "crashes.csv")
	var read int64
	err := NewClient(Options{}).Download(context.Background(), srv.URL, dst, func(r, _ int64) { read = r })
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAcquisition)
	assert.False(t, Exists(dst))
	_, statErr := os.Stat(dst)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
	assert.Less(t, read, int64(100000))
}

func TestDownloadCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		fmt.Fprint(w, body)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	dst := filepath.Join(t.TempDir(), "crashes.csv")
	err := NewClient(Options{}).Download(ctx, srv.URL, dst, func(read, _ int64) {
		if read > 0 {
			cancel()
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAcquisition)
	assert.False(t, Exists(dst))
}

func TestDownloadPaged(t *testing.T) {
	const total = 7
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		limit, _ := strconv.Atoi(r.URL.Query().Get("$limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("$offset"))
		page := []map[string]string{}
		for i := offset; i < total && i < offset+limit; i++ {
			page = append(page, map[string]string{"Crash_Ref_Number": strconv.Itoa(i + 1)})
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "crashes.json")
	var lastRead int64
	err := NewClient(Options{}).DownloadPaged(context.Background(), srv.URL+"?$order=Crash_Ref_Number", 3, dst, func(read, total int64) {
		assert.Equal(t, int64(-1), total)
		lastRead = read
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Positive(t, lastRead)

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, total)
	for i, row := range rows {
		assert.Equal(t, strconv.Itoa(i+1), row["Crash_Ref_Number"])
	}
}

func TestDownloadPagedExactMultiple(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("offset") == "0" {
			fmt.Fprint(w, `[{"a":1},{"a":2}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "crashes.json")
	c := NewClient(Options{LimitParam: "limit", OffsetParam: "offset"})
	require.NoError(t, c.DownloadPaged(context.Background(), srv.URL, 2, dst, nil))
	assert.Equal(t, int32(2), calls.Load())

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1},{"a":2}]`, string(raw))
}

func TestDownloadPagedBadPageRemovesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$offset") == "0" {
			fmt.Fprint(w, `[{"a":1},{"a":2}]`)
			return
		}
		fmt.Fprint(w, `{"error":"throttled"}`)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "crashes.json")
	err := NewClient(Options{}).DownloadPaged(context.Background(), srv.URL, 2, dst, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAcquisition)
	assert.False(t, Exists(dst))
}

func TestDownloadPagedRejectsPageSize(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "crashes.json")
	err := NewClient(Options{}).DownloadPaged(context.Background(), "http://127.0.0.1:1", 0, dst, nil)
	assert.ErrorIs(t, err, types.ErrAcquisition)
	assert.False(t, Exists(dst))
}

func TestWithPaging(t *testing.T) {
	got, err := withPaging("https://example.org/rows.json?$order=id", "$limit", 50, "$offset", 100)
	require.NoError(t, err)
	assert.Contains(t, got, "%24limit=50")
	assert.Contains(t, got, "%24offset=100")
	assert.Contains(t, got, "%24order=id")
}
