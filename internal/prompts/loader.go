package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/qualscan/internal/domain"
)

// BatchReviewTemplate is the template path used for batch prompts
const BatchReviewTemplate = "batch/review.md"

// EmbeddedSource is reported by Source for templates compiled into the binary
const EmbeddedSource = "embedded"

// TemplateMeta holds frontmatter metadata for templates.
type TemplateMeta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type entry struct {
	tmpl   *template.Template
	meta   *TemplateMeta
	source string
}

// Loader resolves prompt templates from override directories, falling back
// to the embedded copies.
type Loader struct {
	overrideDirs []string // checked in order, first match wins
	cache        map[string]*entry
	mu           sync.RWMutex
}

// NewLoader creates a loader with the given override directories.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*entry),
	}
}

// DefaultLoader checks .qualscan/prompts in the repository, then
// ~/.config/qualscan/prompts.
func DefaultLoader(repoRoot string) *Loader {
	var dirs []string
	if repoRoot != "" {
		dirs = append(dirs, filepath.Join(repoRoot, ".qualscan", "prompts"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "qualscan", "prompts"))
	}
	return NewLoader(dirs...)
}

var funcs = template.FuncMap{
	// bullets renders one "- item" line per element
	"bullets": func(items []string) string {
		lines := make([]string, len(items))
		for i, it := range items {
			lines[i] = "- " + it
		}
		return strings.Join(lines, "\n")
	},
}

func (l *Loader) read(path string) ([]byte, string, error) {
	for _, dir := range l.overrideDirs {
		full := filepath.Join(dir, path)
		if data, err := os.ReadFile(full); err == nil {
			return data, full, nil
		}
	}
	data, err := fs.ReadFile(embeddedFS, path)
	return data, EmbeddedSource, err
}

// parseFrontmatter splits content into frontmatter and body. Content
// without a closed "---" block is all body.
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")

	rest, ok := strings.CutPrefix(text, "---\n")
	if !ok {
		return nil, text, nil
	}
	head, body, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		return nil, text, nil
	}

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(head), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return &meta, body, nil
}

func (l *Loader) load(path string) (*entry, error) {
	l.mu.RLock()
	e, ok := l.cache[path]
	l.mu.RUnlock()
	if ok {
		return e, nil
	}

	content, source, err := l.read(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	tmpl, err := template.New(path).Funcs(funcs).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("compile template %s: %w", source, err)
	}

	e = &entry{tmpl: tmpl, meta: meta, source: source}
	l.mu.Lock()
	l.cache[path] = e
	l.mu.Unlock()
	return e, nil
}

// LoadTemplate loads and parses a template by path (e.g. "batch/review.md")
func (l *Loader) LoadTemplate(path string) (*template.Template, *TemplateMeta, error) {
	e, err := l.load(path)
	if err != nil {
		return nil, nil, err
	}
	return e.tmpl, e.meta, nil
}

// Source reports the file a template was loaded from, or EmbeddedSource
func (l *Loader) Source(path string) (string, error) {
	e, err := l.load(path)
	if err != nil {
		return "", err
	}
	return e.source, nil
}

// BatchData holds template variables for batch prompts.
type BatchData struct {
	RepoRoot   string
	Context    string
	Number     int
	Total      int
	Name       string
	Why        string
	Dimensions []string
	Files      []string
}

// NewBatchData builds template data for one batch out of total
func NewBatchData(b domain.Batch, total int, repoRoot, context string) BatchData {
	return BatchData{
		RepoRoot:   repoRoot,
		Context:    strings.TrimSpace(context),
		Number:     b.Number(),
		Total:      total,
		Name:       b.Name,
		Why:        b.Why,
		Dimensions: b.Dimensions,
		Files:      b.Files,
	}
}

// BuildBatchPrompt renders the batch review template
func (l *Loader) BuildBatchPrompt(data BatchData) (string, error) {
	e, err := l.load(BatchReviewTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", e.source, err)
	}
	return buf.String(), nil
}
