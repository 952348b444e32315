// Package view holds the presentation helpers shared by the CLI and the
// local HTTP surface. Nothing here mutates the cache.
package view

import (
	"fmt"
	"sort"
	"strings"

	"socialfeed/models"

	"github.com/samber/lo"
)

// ParseSort maps a query value to a sort option, empty means latest
func ParseSort(value string) (models.SortOption, error) {
	if value == "" {
		return models.SortLatest, nil
	}
	option := models.SortOption(value)
	if !lo.Contains(models.SortOptions, option) {
		return "", fmt.Errorf("unknown sort option %q, expected one of %v", value, models.SortOptions)
	}
	return option, nil
}

// FilterPosts keeps posts whose title contains query, case-insensitively
func FilterPosts(posts []models.Post, query string) []models.Post {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return append([]models.Post{}, posts...)
	}
	return lo.Filter(posts, func(post models.Post, _ int) bool {
		return strings.Contains(strings.ToLower(post.Title), query)
	})
}

// SortPosts returns a sorted copy of posts. Ties keep feed order.
func SortPosts(posts []models.Post, option models.SortOption) []models.Post {
	sorted := append([]models.Post{}, posts...)

	var less func(a, b models.Post) bool
	switch option {
	case models.SortMostCommented:
		less = func(a, b models.Post) bool { return a.ApprovedCommentsCount > b.ApprovedCommentsCount }
	case models.SortAlphabeticalAsc:
		less = func(a, b models.Post) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case models.SortAlphabeticalDesc:
		less = func(a, b models.Post) bool { return strings.ToLower(a.Title) > strings.ToLower(b.Title) }
	default:
		less = func(a, b models.Post) bool { return a.Id > b.Id }
	}

	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted
}

// Feed is the list a view renders: filtered by title then sorted
func Feed(posts []models.Post, query string, option models.SortOption) []models.Post {
	return SortPosts(FilterPosts(posts, query), option)
}

// VisibleComments hides rejected comments
func VisibleComments(comments []models.Comment) []models.Comment {
	return lo.Reject(comments, func(comment models.Comment, _ int) bool {
		return comment.Status == models.StatusRejected
	})
}
