// Package prompts provides a loader for the externalized LLM prompt templates.
// Prompts are stored as JSON files and embedded at compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

// SectionsFile is the embedded file holding the report section templates.
const SectionsFile = "sections.json"

// SectionEntry is one section template as stored on disk.
type SectionEntry struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Params   []string `json:"params"`
	Template string   `json:"template"`
}

// sectionsDoc is the layout of SectionsFile.
type sectionsDoc struct {
	Blocks   map[string]string `json:"blocks"`
	Sections []SectionEntry    `json:"sections"`
}

var (
	placeholderRe = regexp.MustCompile(`\{\{\.([A-Za-z][A-Za-z0-9_]*)\}\}`)
	blockRe       = regexp.MustCompile(`\{\{block:([a-z_]+)\}\}`)
)

// cache stores parsed flat prompt files to avoid repeated JSON parsing
var (
	cache   = make(map[string]map[string]string)
	cacheMu sync.RWMutex
)

// Get retrieves a prompt by filename and key from a flat prompt file.
// The filename should not include the path (e.g., "summary.json").
func Get(filename, key string) (string, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return "", err
	}

	prompt, exists := prompts[key]
	if !exists {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}

	return prompt, nil
}

// MustGet retrieves a prompt by filename and key, panicking if not found.
// Use this for prompts that are required at initialization time.
func MustGet(filename, key string) string {
	prompt, err := Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return prompt
}

// Sections returns the section templates in presentation order with their
// shared instruction blocks already expanded.
func Sections() ([]SectionEntry, error) {
	data, err := promptFiles.ReadFile(SectionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", SectionsFile, err)
	}
	return parseSections(data)
}

func parseSections(data []byte) ([]SectionEntry, error) {
	var doc sectionsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", SectionsFile, err)
	}

	entries := make([]SectionEntry, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		expanded, err := ExpandBlocks(s.Template, doc.Blocks)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", s.ID, err)
		}
		s.Template = expanded
		entries = append(entries, s)
	}
	return entries, nil
}

// ExpandBlocks replaces {{block:name}} references with the named block.
// Blocks are not expanded recursively.
func ExpandBlocks(template string, blocks map[string]string) (string, error) {
	var missing []string
	out := blockRe.ReplaceAllStringFunc(template, func(ref string) string {
		name := blockRe.FindStringSubmatch(ref)[1]
		block, ok := blocks[name]
		if !ok {
			missing = append(missing, name)
			return ref
		}
		return block
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unknown prompt block(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Placeholders returns the distinct {{.Name}} placeholders used by a template, sorted.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// Format replaces template placeholders in the form {{.Key}} with values from data.
// Placeholders without a value are left untouched.
func Format(template string, data map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(ph string) string {
		key := placeholderRe.FindStringSubmatch(ph)[1]
		if v, ok := data[key]; ok {
			return v
		}
		return ph
	})
}

// loadFile loads and caches a flat prompt file.
func loadFile(filename string) (map[string]string, error) {
	cacheMu.RLock()
	if prompts, exists := cache[filename]; exists {
		cacheMu.RUnlock()
		return prompts, nil
	}
	cacheMu.RUnlock()

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	var prompts map[string]string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	cacheMu.Lock()
	cache[filename] = prompts
	cacheMu.Unlock()

	return prompts, nil
}

// ClearCache clears the prompt cache. Useful for testing.
func ClearCache() {
	cacheMu.Lock()
	cache = make(map[string]map[string]string)
	cacheMu.Unlock()
}

// List returns all available prompt keys in a flat file, sorted.
func List(filename string) ([]string, error) {
	prompts, err := loadFile(filename)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(prompts))
	for key := range prompts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
