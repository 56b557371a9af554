package quiz

import (
	"slices"

	"studydeck/internal/models"
)

// Filter returns the cards allowed by every non-empty allow-list in cfg.
// Tag matching requires at least one of the card's tags to be allow-listed.
// Empty allow-lists impose no constraint; an empty result is valid.
func Filter(cards []models.Flashcard, cfg models.QuizConfig) []models.Flashcard {
	var matched []models.Flashcard
	for _, card := range cards {
		if len(cfg.Subjects) > 0 && !slices.Contains(cfg.Subjects, card.Subject) {
			continue
		}
		if len(cfg.Courses) > 0 && !slices.Contains(cfg.Courses, card.Course) {
			continue
		}
		if len(cfg.Modules) > 0 && !slices.Contains(cfg.Modules, card.Module) {
			continue
		}
		if len(cfg.Categories) > 0 && !slices.Contains(cfg.Categories, card.Category) {
			continue
		}
		if len(cfg.Tags) > 0 && !anyTagAllowed(card.Tags, cfg.Tags) {
			continue
		}
		matched = append(matched, card)
	}
	return matched
}

func anyTagAllowed(tags, allowed []string) bool {
	for _, tag := range tags {
		if slices.Contains(allowed, tag) {
			return true
		}
	}
	return false
}

// Filters lists the distinct values available for each filterable field.
type Filters struct {
	Subjects   []string `json:"subjects"`
	Courses    []string `json:"courses"`
	Modules    []string `json:"modules"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// AvailableFilters collects the sorted distinct field values of a card set,
// used by callers to build filter choices.
func AvailableFilters(cards []models.Flashcard) Filters {
	subjects := make(map[string]struct{})
	courses := make(map[string]struct{})
	modules := make(map[string]struct{})
	categories := make(map[string]struct{})
	tags := make(map[string]struct{})
	for _, card := range cards {
		subjects[card.Subject] = struct{}{}
		courses[card.Course] = struct{}{}
		modules[card.Module] = struct{}{}
		categories[card.Category] = struct{}{}
		for _, tag := range card.Tags {
			tags[tag] = struct{}{}
		}
	}
	return Filters{
		Subjects:   sortedKeys(subjects),
		Courses:    sortedKeys(courses),
		Modules:    sortedKeys(modules),
		Categories: sortedKeys(categories),
		Tags:       sortedKeys(tags),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		if key != "" {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}
