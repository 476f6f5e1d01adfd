package core

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var defaultLanguagesYAML []byte

// Languages maps canonical language names to the file extensions they cover.
// It is the single gate for both upload validation and ReviewVersion
// construction. Names are matched case-insensitively.
type Languages struct {
	mapping map[string][]string
}

// DefaultLanguages loads the embedded language mapping. It panics only on a
// broken embed, which is a build defect rather than a runtime condition.
func DefaultLanguages() Languages {
	langs, err := ParseLanguages(defaultLanguagesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded languages.yaml is invalid: %v", err))
	}
	return langs
}

// ParseLanguages builds a Languages set from YAML of the form
// `language: [ext, ...]`. Names and extensions are normalized to lower case.
func ParseLanguages(data []byte) (Languages, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Languages{}, fmt.Errorf("parsing language mapping: %w", err)
	}
	if len(raw) == 0 {
		return Languages{}, fmt.Errorf("language mapping is empty")
	}
	return NewLanguages(raw), nil
}

// NewLanguages builds a Languages set from an explicit mapping.
func NewLanguages(raw map[string][]string) Languages {
	mapping := make(map[string][]string, len(raw))
	for name, exts := range raw {
		normalized := make([]string, 0, len(exts))
		for _, ext := range exts {
			normalized = append(normalized, strings.ToLower(strings.TrimPrefix(ext, ".")))
		}
		mapping[strings.ToLower(name)] = normalized
	}
	return Languages{mapping: mapping}
}

// IsSupported reports whether name is a recognized language, ignoring case.
func (l Languages) IsSupported(name string) bool {
	_, ok := l.mapping[strings.ToLower(name)]
	return ok
}

// AllowedExtension reports whether ext (with or without a leading dot) maps
// to any recognized language.
func (l Languages) AllowedExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, exts := range l.mapping {
		for _, e := range exts {
			if e == ext {
				return true
			}
		}
	}
	return false
}

// AllowedForFile reports whether the filename's extension is recognized.
func (l Languages) AllowedForFile(filename string) bool {
	return l.AllowedExtension(filepath.Ext(filename))
}

// Extensions returns the sorted union of recognized extensions, used in
// upload rejection messages.
func (l Languages) Extensions() []string {
	seen := make(map[string]struct{})
	for _, exts := range l.mapping {
		for _, e := range exts {
			seen[e] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Names returns the sorted canonical language names.
func (l Languages) Names() []string {
	out := make([]string, 0, len(l.mapping))
	for name := range l.mapping {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
