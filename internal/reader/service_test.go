package reader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeChapter(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func loadedService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	writeChapter(t, dir, "01-intro.md", "# Introduction\n\nStorage systems keep data durable across failures and restarts.\n")
	writeChapter(t, dir, "02-networking.md", "# Networking Basics\n\nRouters forward packets between different subnets using routing tables.\n\n| A | B |\n|---|---|\n| 1 | 2 |\n")
	writeChapter(t, dir, "notes.txt", "not a chapter")

	svc := NewService(dir)
	if err := svc.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return svc
}

func TestServiceLoad(t *testing.T) {
	svc := loadedService(t)

	chapters := svc.List()
	if len(chapters) != 2 {
		t.Fatalf("Expected 2 chapters, got %d", len(chapters))
	}
	if chapters[0].ID != "01-intro" || chapters[1].ID != "02-networking" {
		t.Errorf("Expected filename order, got %s, %s", chapters[0].ID, chapters[1].ID)
	}
	if chapters[0].Title != "Introduction" {
		t.Errorf("Expected title from heading, got %q", chapters[0].Title)
	}
	if chapters[0].Order != 0 || chapters[1].Order != 1 {
		t.Errorf("Unexpected ordering: %d, %d", chapters[0].Order, chapters[1].Order)
	}
	for _, chapter := range chapters {
		if chapter.Content != "" {
			t.Errorf("List must strip content, got %d bytes for %s", len(chapter.Content), chapter.ID)
		}
	}
}

func TestServiceGet(t *testing.T) {
	svc := loadedService(t)

	chapter, err := svc.Get("02-networking")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !strings.Contains(chapter.Content, "<h1") {
		t.Errorf("Expected rendered HTML heading, got %q", chapter.Content)
	}
	// GFM tables must survive rendering.
	if !strings.Contains(chapter.Content, "<table>") {
		t.Errorf("Expected rendered table, got %q", chapter.Content)
	}

	if _, err := svc.Get("missing"); err == nil {
		t.Fatal("Expected error for unknown chapter")
	}
}

func TestServiceSearch(t *testing.T) {
	svc := loadedService(t)

	t.Run("TitleMatchRanksFirst", func(t *testing.T) {
		results := svc.Search("networking")
		if len(results) == 0 {
			t.Fatal("Expected results for networking")
		}
		if results[0].Relevance != 10 {
			t.Errorf("Expected title match relevance 10 first, got %d", results[0].Relevance)
		}
		if results[0].ChapterID != "02-networking" {
			t.Errorf("Expected chapter 02-networking first, got %s", results[0].ChapterID)
		}
	})

	t.Run("ContentMatch", func(t *testing.T) {
		results := svc.Search("durable")
		if len(results) != 1 {
			t.Fatalf("Expected 1 content match, got %d", len(results))
		}
		if results[0].Relevance != 5 {
			t.Errorf("Expected snippet relevance 5, got %d", results[0].Relevance)
		}
		if !strings.Contains(strings.ToLower(results[0].Snippet), "durable") {
			t.Errorf("Expected snippet to contain the term, got %q", results[0].Snippet)
		}
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		if len(svc.Search("ROUTERS")) == 0 {
			t.Error("Expected case-insensitive matching")
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		if got := svc.Search("zzzzz"); len(got) != 0 {
			t.Errorf("Expected no results, got %d", len(got))
		}
	})

	t.Run("BlankQuery", func(t *testing.T) {
		if got := svc.Search("   "); got != nil {
			t.Errorf("Expected nil for blank query, got %v", got)
		}
	})
}
