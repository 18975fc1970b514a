package links

import (
	"errors"
	"fmt"
	"sort"

	"github.com/srcf/lightbluetent/internal/models"
)

var (
	ErrUnknownLink     = errors.New("links: link does not belong to this page")
	ErrIncompleteOrder = errors.New("links: order must list every link exactly once")
)

// Renumber sorts links by their current order (ties by id) and rewrites DisplayOrder to
// 0..n-1. It returns the links whose order changed. The input slice is sorted in place.
func Renumber(links []models.Link) []models.Link {
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].DisplayOrder != links[j].DisplayOrder {
			return links[i].DisplayOrder < links[j].DisplayOrder
		}
		return links[i].ID < links[j].ID
	})
	var changed []models.Link
	for i := range links {
		if links[i].DisplayOrder != i {
			links[i].DisplayOrder = i
			changed = append(changed, links[i])
		}
	}
	return changed
}

// ApplyOrder sets each link's DisplayOrder to its position in ids. ids must name every
// link in links exactly once. It returns the links whose order changed.
func ApplyOrder(links []models.Link, ids []int64) ([]models.Link, error) {
	if len(ids) != len(links) {
		return nil, fmt.Errorf("%w: got %d ids for %d links", ErrIncompleteOrder, len(ids), len(links))
	}
	byID := make(map[int64]int, len(links))
	for i, l := range links {
		byID[l.ID] = i
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownLink, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %d repeated", ErrIncompleteOrder, id)
		}
		seen[id] = true
	}

	var changed []models.Link
	for pos, id := range ids {
		l := &links[byID[id]]
		if l.DisplayOrder != pos {
			l.DisplayOrder = pos
			changed = append(changed, *l)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].DisplayOrder < links[j].DisplayOrder })
	return changed, nil
}

// NextOrder is the display order for a link appended after links.
func NextOrder(links []models.Link) int {
	next := 0
	for _, l := range links {
		if l.DisplayOrder >= next {
			next = l.DisplayOrder + 1
		}
	}
	return next
}
