package process

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// ProgressPrefix is prepended to progress lines passed to a LineFunc.
const ProgressPrefix = "Progress: "

// maxLineSize bounds a single output line.
const maxLineSize = 1024 * 1024

// LineFunc receives one trimmed output line.
type LineFunc func(line string)

// IsProgressLine reports whether text looks like a download progress bar.
func IsProgressLine(text string) bool {
	return strings.Contains(text, "|") && strings.Contains(text, "%")
}

// ReadStream reads r until EOF and calls fn for every non-empty line. Lines
// end at '\n' or '\r', so carriage-return redraws of a progress bar arrive as
// separate lines. A progress line is passed to fn as "Progress: <text>" only
// when it differs from the previous progress line, and is left out of the
// returned text. The remaining lines are joined with "\n".
//
// A nil reader yields an empty string. A trailing line without a newline is
// still processed. The returned error is the first read error other than EOF.
func ReadStream(r io.Reader, fn LineFunc) (string, error) {
	if r == nil {
		return "", nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	scanner.Split(scanLinesCR)

	var (
		lastProgress string
		output       []string
	)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if IsProgressLine(text) {
			if text != lastProgress {
				if fn != nil {
					fn(ProgressPrefix + text)
				}
				lastProgress = text
			}
			continue
		}

		if fn != nil {
			fn(text)
		}
		output = append(output, text)
	}

	err := scanner.Err()
	if err != nil {
		// Keep the writer unblocked after a scan failure such as an
		// overlong line.
		_, _ = io.Copy(io.Discard, r)
	}
	return strings.Join(output, "\n"), err
}

// scanLinesCR is bufio.ScanLines that also breaks on a bare '\r'.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
