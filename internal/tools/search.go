package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

type searchFilesTool struct {
	timeout  time.Duration
	maxBytes int
}

func (t *searchFilesTool) Name() string { return "search_files" }

func (t *searchFilesTool) Description() string {
	return "Search files under a directory for lines matching a regular expression. Returns matches as path, line number, and line text."
}

func (t *searchFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regular expression to match against file lines",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to search under (optional, defaults to current directory)",
			},
			"glob": map[string]any{
				"type":        "string",
				"description": "Filename glob to restrict the search, e.g. *.go (optional)",
			},
		},
		"required": []string{"pattern"},
	}
}

type searchMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t *searchFilesTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return nil, err
	}
	root := optStringArg(args, "path", ".")
	glob := optStringArg(args, "glob", "")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var matches []searchMatch
	resultBytes := 0
	truncated := false

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if searchCtx.Err() != nil {
			return searchCtx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if glob != "" {
			ok, err := filepath.Match(glob, d.Name())
			if err != nil || !ok {
				return nil
			}
		}
		if truncated {
			return filepath.SkipAll
		}

		fileMatches, n, err := scanFile(path, re, t.maxBytes-resultBytes)
		if err != nil {
			return nil
		}
		matches = append(matches, fileMatches...)
		resultBytes += n
		if resultBytes >= t.maxBytes {
			truncated = true
		}
		return nil
	})

	if walkErr != nil && searchCtx.Err() != nil {
		return nil, fmt.Errorf("search timed out after %s", t.timeout)
	}
	if walkErr != nil {
		return nil, fmt.Errorf("search %s: %w", root, walkErr)
	}

	return map[string]any{
		"matches":   matches,
		"truncated": truncated,
	}, nil
}

// scanFile collects matching lines from one file, stopping once budget bytes
// of result text have accumulated. Binary files (NUL in the first line read)
// are skipped.
func scanFile(path string, re *regexp.Regexp, budget int) ([]searchMatch, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var matches []searchMatch
	used := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if lineNo == 1 && strings.ContainsRune(line, 0) {
			return nil, 0, nil
		}
		if !re.MatchString(line) {
			continue
		}
		matches = append(matches, searchMatch{Path: path, Line: lineNo, Text: line})
		used += len(path) + len(line)
		if used >= budget {
			break
		}
	}
	return matches, used, nil
}
