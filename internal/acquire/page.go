package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"crashmap/internal/types"
)

// withPaging sets the limit and offset query parameters on raw.
func withPaging(raw, limitParam string, limit int, offsetParam string, offset int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(limitParam, strconv.Itoa(limit))
	q.Set(offsetParam, strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// page fetches one page and returns its array elements verbatim.
func (c *Client) page(ctx context.Context, pageURL string, onRead func(delta int64)) ([]json.RawMessage, int64, error) {
	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	cr := &countingReader{r: resp.Body, fn: onRead}
	var elems []json.RawMessage
	if err := json.NewDecoder(cr).Decode(&elems); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if err == io.EOF {
			err = fmt.Errorf("empty page body")
		}
		return nil, cr.n, &types.AcquisitionError{URL: pageURL, Err: fmt.Errorf("decode page: %w", err)}
	}
	return elems, cr.n, nil
}

type countingReader struct {
	r  io.Reader
	n  int64
	fn func(delta int64)
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.n += int64(n)
		c.fn(int64(n))
	}
	return n, err
}
