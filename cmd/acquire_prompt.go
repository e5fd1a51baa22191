package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var errDownloadDeclined = errors.New("download declined")

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// confirmDownload asks the Download/Cancel question on stdout and reads the
// answer from stdin. End of input counts as Cancel. Cancelling ctx abandons
// the prompt and returns ctx.Err().
func confirmDownload(ctx context.Context, stdin io.Reader, stdout io.Writer, path, url string) (bool, error) {
	fmt.Fprintf(stdout, "The crash dataset %s was not found.\n", path)
	fmt.Fprintf(stdout, "Source: %s\n", url)
	reader := bufio.NewReader(stdin)
	for {
		fmt.Fprint(stdout, "[d]ownload or [c]ancel? ")
		line, err := readLine(ctx, reader)
		if ctx.Err() != nil {
			fmt.Fprintln(stdout)
			return false, ctx.Err()
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		switch answer {
		case "d", "download", "y", "yes":
			return true, nil
		case "c", "cancel", "n", "no":
			return false, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return false, nil
			}
			return false, err
		}
	}
}

type lineResult struct {
	line string
	err  error
}

// readLine reads one line in a goroutine so a blocked read does not hold
// off cancellation. Each call reads at most one line.
func readLine(ctx context.Context, reader *bufio.Reader) (string, error) {
	ch := make(chan lineResult, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- lineResult{line, err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// progressPrinter redraws one status line with the percentage done, or the
// byte count when the total is unknown.
type progressPrinter struct {
	out     io.Writer
	last    string
	started bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) update(read, total int64) {
	var line string
	if total > 0 {
		line = fmt.Sprintf("Downloading... %3d%%", read*100/total)
	} else {
		line = fmt.Sprintf("Downloading... %.1f MB", float64(read)/(1<<20))
	}
	if line == p.last {
		return
	}
	p.last = line
	p.started = true
	fmt.Fprintf(p.out, "\r%s", line)
}

func (p *progressPrinter) done() {
	if p.started {
		fmt.Fprintln(p.out)
	}
}
