package issues

import (
	"strings"
	"unicode/utf8"
)

// MinSimilarityTitleLength is the trimmed title length below which no
// duplicate check is performed.
const MinSimilarityTitleLength = 3

// FindSimilar returns every issue whose title contains the candidate or is
// contained by it, ignoring case. Callers pass active issues only.
func FindSimilar(candidateTitle string, active []Issue) []Issue {
	if utf8.RuneCountInString(strings.TrimSpace(candidateTitle)) < MinSimilarityTitleLength {
		return nil
	}
	candidate := strings.ToLower(candidateTitle)
	var matches []Issue
	for _, is := range active {
		title := strings.ToLower(is.Title)
		if strings.Contains(title, candidate) || strings.Contains(candidate, title) {
			matches = append(matches, is)
		}
	}
	return matches
}

func ActiveIssues(list []Issue) []Issue {
	out := make([]Issue, 0, len(list))
	for _, is := range list {
		if is.IsActive() {
			out = append(out, is)
		}
	}
	return out
}
