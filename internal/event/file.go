package event

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fileNameLayout renders "Session - {day}.{month}.{year} {HH}-{mm}-{ss}.json" with
// unpadded day and month.
const fileNameLayout = "2.1.2006 15-04-05"

// maxFileAttempts bounds the " (n)" suffixes tried for flushes landing in the same second.
const maxFileAttempts = 1000

// LogFileName returns the file name for a flush at t, in t's local time.
func LogFileName(t time.Time) string {
	return "Session - " + t.Local().Format(fileNameLayout) + ".json"
}

// logFileNameN returns the n-th name for a flush at t: LogFileName for n <= 1, otherwise
// the same name with " (n)" before the extension.
func logFileNameN(t time.Time, n int) string {
	name := LogFileName(t)
	if n <= 1 {
		return name
	}
	return fmt.Sprintf("%s (%d).json", strings.TrimSuffix(name, ".json"), n)
}

// writeLogFile creates dir if needed and writes document to a new flush file for t.
// An existing file is never overwritten: a flush in the same second as an earlier one
// gets a " (2)", " (3)", ... suffix. It returns the written path.
func writeLogFile(dir string, t time.Time, document []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	for n := 1; n <= maxFileAttempts; n++ {
		path := filepath.Join(dir, logFileNameN(t, n))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, werr := f.Write(document)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free log file name for %s after %d attempts", LogFileName(t), maxFileAttempts)
}
