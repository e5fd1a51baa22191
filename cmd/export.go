package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crashmap/internal/records"
	"crashmap/internal/types"
)

// exportFiltered writes recs to a new timestamped CSV in dir and returns its
// path. The file loads back with the same reader as the dataset.
func exportFiltered(dir string, recs []types.CrashRecord, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("crashes-%s.csv", now.Format("20060102-150405")))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	if err := records.WriteCSV(f, recs); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
