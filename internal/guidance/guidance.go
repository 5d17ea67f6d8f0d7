// Package guidance loads tool execution guidance: short instructions keyed
// by tool name that are injected into a specialist's conversation before a
// tool runs so the next reasoning step reads the result correctly.
//
// Guidance documents are markdown files with YAML frontmatter:
//
//	---
//	tool: semantic_search
//	version: 2
//	applies_when: [pacing, budget]
//	---
//	Quote the retrieved passage for {{question}} verbatim.
package guidance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/vinayprograms/agentkit/logging"
	"gopkg.in/yaml.v3"
)

// Loader returns guidance for a tool call. Absence is not an error.
type Loader interface {
	Load(tool, question string, args map[string]any) (string, bool)
}

// None is a Loader that never has guidance.
type None struct{}

func (None) Load(string, string, map[string]any) (string, bool) { return "", false }

// Doc is one guidance document.
type Doc struct {
	Tool        string   `yaml:"tool"`
	Version     int      `yaml:"version"`
	AppliesWhen []string `yaml:"applies_when,omitempty"`

	Body string `yaml:"-"`
	Path string `yaml:"-"`
}

// Parse parses a guidance document.
func Parse(content string) (*Doc, error) {
	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}
	doc := &Doc{}
	if err := yaml.Unmarshal([]byte(frontmatter), doc); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if doc.Tool == "" {
		return nil, fmt.Errorf("missing required field: tool")
	}
	doc.Body = strings.TrimSpace(body)
	return doc, nil
}

// Matches reports whether the document applies to a question and its
// arguments. A document without keywords always applies.
func (d *Doc) Matches(question string, args map[string]any) bool {
	if len(d.AppliesWhen) == 0 {
		return true
	}
	haystack := strings.ToLower(question)
	for _, v := range args {
		haystack += " " + strings.ToLower(fmt.Sprint(v))
	}
	for _, kw := range d.AppliesWhen {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// Render substitutes {{question}} and {{arg:name}} placeholders.
func (d *Doc) Render(question string, args map[string]any) string {
	out := strings.ReplaceAll(d.Body, "{{question}}", question)
	for k, v := range args {
		out = strings.ReplaceAll(out, "{{arg:"+k+"}}", fmt.Sprint(v))
	}
	return out
}

// Store is a directory-backed Loader. Documents are grouped by tool and
// tried from the highest version down.
type Store struct {
	dir    string
	logger *logging.Logger

	mu   sync.RWMutex
	docs map[string][]*Doc
}

// NewStore loads all *.md documents under dir. A missing directory yields
// an empty store.
func NewStore(dir string) (*Store, error) {
	s := &Store{
		dir:    dir,
		logger: logging.New().WithComponent("guidance"),
		docs:   make(map[string][]*Doc),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the directory. Unparseable files are skipped and logged.
func (s *Store) Reload() error {
	docs := make(map[string][]*Doc)
	if s.dir != "" {
		entries, err := os.ReadDir(s.dir)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read guidance dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			path := filepath.Join(s.dir, e.Name())
			content, err := os.ReadFile(path)
			if err != nil {
				s.logger.Warn("failed to read guidance", map[string]interface{}{"path": path, "error": err.Error()})
				continue
			}
			doc, err := Parse(string(content))
			if err != nil {
				s.logger.Warn("skipping invalid guidance", map[string]interface{}{"path": path, "error": err.Error()})
				continue
			}
			doc.Path = path
			docs[doc.Tool] = append(docs[doc.Tool], doc)
		}
	}
	for _, list := range docs {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Version > list[j].Version })
	}

	s.mu.Lock()
	s.docs = docs
	s.mu.Unlock()
	return nil
}

// Load returns the highest-version matching document for the tool.
func (s *Store) Load(tool, question string, args map[string]any) (string, bool) {
	s.mu.RLock()
	list := s.docs[tool]
	s.mu.RUnlock()
	for _, d := range list {
		if d.Matches(question, args) {
			text := d.Render(question, args)
			if text == "" {
				return "", false
			}
			return text, true
		}
	}
	return "", false
}

// Count returns the number of loaded documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.docs {
		n += len(list)
	}
	return n
}

// Watch reloads the store whenever the directory changes, until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch guidance dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".md") {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("guidance reload failed", map[string]interface{}{"error": err.Error()})
					continue
				}
				s.logger.Debug("guidance reloaded", map[string]interface{}{"docs": s.Count()})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("guidance watcher error", map[string]interface{}{"error": err.Error()})
			}
		}
	}()
	return nil
}

func splitFrontmatter(content string) (frontmatter, body string, err error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", fmt.Errorf("missing frontmatter delimiter")
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", "", fmt.Errorf("unclosed frontmatter")
}
