package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceFile is one scraped batch on disk: many raw records of a single
// source type.
type SourceFile struct {
	Path    string
	Type    SourceType  `json:"source_type"`
	Records []RawRecord `json:"records"`
}

// LoadFile reads and validates a source file.
func LoadFile(path string) (*SourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}

	var sf SourceFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if !sf.Type.Valid() {
		return nil, fmt.Errorf("%w: %s declares %q", ErrUnknownSourceType, path, sf.Type)
	}

	sf.Path = path
	return &sf, nil
}

// Discover lists the .json source files under dir whose declared source type
// is in types; an empty types slice selects everything. Paths come back
// sorted so runs are reproducible.
func Discover(dir string, types []SourceType) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	selected := make(map[SourceType]bool, len(types))
	for _, t := range types {
		selected[t] = true
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())

		st, err := sniffSourceType(path)
		if err != nil {
			// With a type filter, an undecodable header cannot match; skip it
			// so an unrelated broken file does not inflate a filtered run's
			// error count. Unfiltered runs still see it, counted as an error.
			if len(selected) > 0 {
				continue
			}
			paths = append(paths, path)
			continue
		}
		if len(selected) > 0 && !selected[st] {
			continue
		}
		paths = append(paths, path)
	}

	sort.Strings(paths)
	return paths, nil
}

// sniffSourceType decodes just the source_type header, stopping as soon as
// the key is seen rather than parsing the whole file.
func sniffSourceType(path string) (SourceType, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("read source file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", fmt.Errorf("%w: %s: not a JSON object", ErrMalformed, path)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
		key, _ := keyTok.(string)

		if key == "source_type" {
			var st SourceType
			if err := dec.Decode(&st); err != nil {
				return "", fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
			}
			return st, nil
		}

		var skipped json.RawMessage
		if err := dec.Decode(&skipped); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
	}

	return "", nil
}
