// Package reader serves markdown study chapters with full-text search and
// per-chapter study data (progress, bookmarks, highlights).
package reader

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// ErrChapterNotFound indicates an unknown chapter id.
var ErrChapterNotFound = errors.New("chapter not found")

// Chapter is one markdown document rendered to HTML.
type Chapter struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

// SearchResult is a relevance-ranked match within the chapter set.
type SearchResult struct {
	ChapterID    string `json:"chapterId"`
	ChapterTitle string `json:"chapterTitle"`
	Snippet      string `json:"snippet"`
	Relevance    int    `json:"relevance"`
}

// Service loads ordered markdown chapters from a content directory and
// keeps a plain-text index for search.
type Service struct {
	dir string
	md  goldmark.Markdown

	mu       sync.RWMutex
	chapters []Chapter
	index    []indexEntry
}

type indexEntry struct {
	chapterID    string
	chapterTitle string
	snippets     []string
}

func NewService(dir string) *Service {
	return &Service{
		dir: dir,
		md:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Load reads every *.md file in filename order and rebuilds the chapter set
// and search index. Unreadable files are logged and skipped.
func (s *Service) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read content dir %s: %w", s.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var chapters []Chapter
	for i, name := range names {
		path := filepath.Join(s.dir, name)
		source, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping chapter file", "path", path, "err", err)
			continue
		}

		var rendered bytes.Buffer
		if err := s.md.Convert(source, &rendered); err != nil {
			slog.Warn("skipping unrenderable chapter", "path", path, "err", err)
			continue
		}

		id := strings.TrimSuffix(name, ".md")
		chapters = append(chapters, Chapter{
			ID:      id,
			Title:   chapterTitle(string(source), id),
			Content: rendered.String(),
			Order:   i,
		})
	}

	s.mu.Lock()
	s.chapters = chapters
	s.index = buildIndex(chapters)
	s.mu.Unlock()
	return nil
}

// List returns the chapters in order, without content bodies.
func (s *Service) List() []Chapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listed := make([]Chapter, len(s.chapters))
	for i, chapter := range s.chapters {
		chapter.Content = ""
		listed[i] = chapter
	}
	return listed
}

// Get returns a chapter with its rendered content.
func (s *Service) Get(id string) (Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, chapter := range s.chapters {
		if chapter.ID == id {
			return chapter, nil
		}
	}
	return Chapter{}, ErrChapterNotFound
}

// Search finds term across chapter titles and content. Title matches rank
// above snippet matches; results are capped at twenty.
func (s *Service) Search(term string) []SearchResult {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	s.mu.RLock()
	index := s.index
	s.mu.RUnlock()

	var results []SearchResult
	for _, item := range index {
		if strings.Contains(strings.ToLower(item.chapterTitle), term) {
			results = append(results, SearchResult{
				ChapterID:    item.chapterID,
				ChapterTitle: item.chapterTitle,
				Snippet:      item.chapterTitle,
				Relevance:    10,
			})
		}
		for _, snippet := range item.snippets {
			if idx := strings.Index(strings.ToLower(snippet), term); idx != -1 {
				results = append(results, SearchResult{
					ChapterID:    item.chapterID,
					ChapterTitle: item.chapterTitle,
					Snippet:      contextSnippet(snippet, idx, len(term)),
					Relevance:    5,
				})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > 20 {
		results = results[:20]
	}
	return results
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	sentenceRe   = regexp.MustCompile(`[.!?]+`)
)

func buildIndex(chapters []Chapter) []indexEntry {
	index := make([]indexEntry, 0, len(chapters))
	for _, chapter := range chapters {
		text := htmlTagRe.ReplaceAllString(chapter.Content, " ")
		text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))

		var snippets []string
		for _, sentence := range sentenceRe.Split(text, -1) {
			if len(strings.TrimSpace(sentence)) > 20 {
				snippets = append(snippets, strings.TrimSpace(sentence))
			}
		}
		index = append(index, indexEntry{
			chapterID:    chapter.ID,
			chapterTitle: chapter.Title,
			snippets:     snippets,
		})
	}
	return index
}

// contextSnippet cuts ~50 runes of context either side of the match.
func contextSnippet(snippet string, matchIdx, matchLen int) string {
	start := max(0, matchIdx-50)
	end := min(len(snippet), matchIdx+matchLen+50)
	out := snippet[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(snippet) {
		out = out + "..."
	}
	return out
}

func chapterTitle(source, fallback string) string {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
	}
	return strings.ReplaceAll(fallback, "-", " ")
}
