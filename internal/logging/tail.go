package logging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// maxTailBytes caps how much of a log file ReadTail scans.
const maxTailBytes = 4 * 1024 * 1024

// ErrNoLogFile is returned by ReadTail when no log file is configured.
var ErrNoLogFile = errors.New("no log file configured")

// ReadTail returns the last n lines of the file at path. n <= 0 returns
// everything within the scan window.
func ReadTail(path string, n int) ([]string, error) {
	if path == "" {
		return nil, ErrNoLogFile
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	skipPartial := false
	if info.Size() > maxTailBytes {
		if _, err := f.Seek(info.Size()-maxTailBytes, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek log file: %w", err)
		}
		skipPartial = true
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxTailBytes)
	for scanner.Scan() {
		if skipPartial {
			skipPartial = false
			continue
		}
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	return lines, nil
}
