package reader

import (
	"testing"

	"studydeck/internal/store"
)

func TestStudyStore(t *testing.T) {
	st := store.NewMemoryStore()
	study := NewStudyStore(st)

	t.Run("EmptyStoreYieldsUsableDefaults", func(t *testing.T) {
		data := study.StudyData()
		if data.Progress == nil || data.Bookmarks == nil || data.Highlights == nil {
			t.Fatal("Expected initialized maps for empty store")
		}
		if len(data.Progress) != 0 {
			t.Errorf("Expected no progress entries, got %v", data.Progress)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		data := study.StudyData()
		data.Progress["01-intro"] = "complete"
		data.Bookmarks["02-networking"] = true
		data.Highlights["01-intro"] = []Highlight{{ID: "h1", Text: "durable", Note: "important"}}
		data.LastVisited = "01-intro"

		if err := study.SaveStudyData(data); err != nil {
			t.Fatalf("SaveStudyData failed: %v", err)
		}

		got := study.StudyData()
		if got.Progress["01-intro"] != "complete" {
			t.Errorf("Expected progress complete, got %q", got.Progress["01-intro"])
		}
		if !got.Bookmarks["02-networking"] {
			t.Error("Expected bookmark to persist")
		}
		if len(got.Highlights["01-intro"]) != 1 || got.Highlights["01-intro"][0].Note != "important" {
			t.Errorf("Expected highlight to persist, got %v", got.Highlights["01-intro"])
		}
		if got.LastVisited != "01-intro" {
			t.Errorf("Expected lastVisited 01-intro, got %q", got.LastVisited)
		}
	})

	t.Run("CorruptValueFallsBackToDefaults", func(t *testing.T) {
		if err := st.Set(studyDataKey, "{broken"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		data := study.StudyData()
		if data.Progress == nil || len(data.Progress) != 0 {
			t.Errorf("Expected clean defaults after corruption, got %v", data.Progress)
		}
	})
}

func TestPreferences(t *testing.T) {
	st := store.NewMemoryStore()
	study := NewStudyStore(st)

	t.Run("Defaults", func(t *testing.T) {
		prefs := study.Preferences()
		if prefs != DefaultPreferences() {
			t.Errorf("Expected defaults, got %+v", prefs)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		want := Preferences{Theme: "dark", FontSize: "lg", FontFamily: "serif", LineHeight: 1.8}
		if err := study.SavePreferences(want); err != nil {
			t.Fatalf("SavePreferences failed: %v", err)
		}
		if got := study.Preferences(); got != want {
			t.Errorf("Expected %+v, got %+v", want, got)
		}
	})

	t.Run("CorruptValueFallsBackToDefaults", func(t *testing.T) {
		if err := st.Set(preferencesKey, "not json"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if got := study.Preferences(); got != DefaultPreferences() {
			t.Errorf("Expected defaults after corruption, got %+v", got)
		}
	})
}
