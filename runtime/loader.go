package runtime

import (
	"bufio"
	"bytes"
	"chat-core/errors"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// CensoredData is the merged dictionary plus what main logs about it.
type CensoredData struct {
	Words     []string
	Languages []string
	// Counts holds the number of entries read per language, duplicates included
	Counts map[string]int
}

// CensoredLoader reads forbidden chat words from one .txt dictionary per language.
type CensoredLoader struct {
	fs fs.FS
}

// NewCensoredLoader accepts any filesystem: os.DirFS in production, fstest.MapFS in tests.
func NewCensoredLoader(f fs.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// LoadAll merges every .txt file of dir into a sorted list of unique words.
// The language is the file name without extension ("fr.txt" -> "fr").
// Blank lines and lines starting with # are skipped.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	data := &CensoredData{Counts: make(map[string]int)}
	unique := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			return nil, errors.ErrOnlyCensoredFiles
		}
		name := entry.Name()
		if path.Ext(name) != ".txt" {
			continue
		}
		language := strings.TrimSuffix(name, ".txt")
		data.Languages = append(data.Languages, language)

		content, err := fs.ReadFile(l.fs, path.Join(dir, name))
		if err != nil {
			return nil, err
		}

		// Scanner copes with both \n and \r\n line endings
		scanner := bufio.NewScanner(bytes.NewReader(content))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			unique[line] = struct{}{}
			data.Counts[language]++
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(unique) == 0 {
		return nil, errors.ErrEmptyWords
	}

	data.Words = make([]string, 0, len(unique))
	for w := range unique {
		data.Words = append(data.Words, w)
	}
	sort.Strings(data.Words)
	sort.Strings(data.Languages)
	return data, nil
}
