package fileinfo

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// WriteNDJSON writes one JSON object per line
func WriteNDJSON(w io.Writer, files []*FileInfo) error {
	enc := json.NewEncoder(w)
	for _, f := range files {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("encode %s: %w", f.URL, err)
		}
	}
	return nil
}

// ReadNDJSON parses the output of WriteNDJSON, skipping blank lines
func ReadNDJSON(r io.Reader) ([]*FileInfo, error) {
	var files []*FileInfo
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var f FileInfo
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		f.Normalize()
		files = append(files, &f)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return files, nil
}
