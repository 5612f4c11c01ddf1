package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const followPoll = 250 * time.Millisecond

// TailOptions selects which records Tail returns. A negative Offset means
// "the last Limit records"; otherwise reading resumes at Offset. Records are
// kept when Match is empty or any of its needles occurs in the record.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Match  []string
}

// TailResult carries the rendered lines and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// record is one log entry: a header line plus the indented attribute lines
// the console handler writes beneath it. JSON entries are single lines.
type record []string

func (r record) matches(needles []string) bool {
	if len(needles) == 0 {
		return true
	}
	for _, line := range r {
		for _, needle := range needles {
			if needle != "" && strings.Contains(line, needle) {
				return true
			}
		}
	}
	return false
}

func isContinuation(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

// Tail reads records from the log file at path. A missing file yields an
// empty result so callers can start before the daemon has written anything.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	var lines []string
	var offset int64
	if opts.Offset < 0 {
		lines, offset, err = readLast(path, opts.Limit, opts.Match)
	} else {
		start := opts.Offset
		if start > info.Size() {
			// Truncated or rotated: start over.
			start = 0
		}
		lines, offset, err = readFrom(path, start, opts.Match)
	}
	if err != nil {
		return result, err
	}
	result.Lines, result.Offset = lines, offset
	if opts.Follow && opts.Wait > 0 && len(lines) == 0 {
		return waitForRecords(ctx, path, offset, opts)
	}
	return result, nil
}

// scanRecords calls emit for every complete record from r.
func scanRecords(r io.Reader, emit func(record)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var current record
	for scanner.Scan() {
		line := scanner.Text()
		if isContinuation(line) && len(current) > 0 {
			current = append(current, line)
			continue
		}
		if len(current) > 0 {
			emit(current)
		}
		current = record{line}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read log file: %w", err)
	}
	if len(current) > 0 {
		emit(current)
	}
	return nil
}

func readLast(path string, limit int, match []string) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]record, 0, limit)
	next := 0
	err = scanRecords(file, func(rec record) {
		if !rec.matches(match) {
			return
		}
		if len(ring) < limit {
			ring = append(ring, rec)
			return
		}
		ring[next] = rec
		next = (next + 1) % limit
	})
	if err != nil {
		return nil, 0, err
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}

	var lines []string
	for i := range ring {
		lines = append(lines, ring[(next+i)%len(ring)]...)
	}
	return lines, end, nil
}

func readFrom(path string, offset int64, match []string) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	err = scanRecords(file, func(rec record) {
		if rec.matches(match) {
			lines = append(lines, rec...)
		}
	})
	if err != nil {
		return nil, 0, err
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine log offset: %w", err)
	}
	return lines, end, nil
}

func waitForRecords(ctx context.Context, path string, offset int64, opts TailOptions) (TailResult, error) {
	deadline := time.Now().Add(opts.Wait)
	ticker := time.NewTicker(followPoll)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
		lines, end, err := readFrom(path, result.Offset, opts.Match)
		if err != nil {
			return result, err
		}
		result.Offset = end
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}
	}
}
