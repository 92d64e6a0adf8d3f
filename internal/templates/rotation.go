// Package templates rotates copy templates away from ones a recipient has
// already rejected.
package templates

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/ignite/outreach-guard/internal/domain"
)

// ErrNoTemplates is returned when the ordered template list is empty.
var ErrNoTemplates = errors.New("no templates to select from")

// RejectionSource reports templates already rejected for a recipient.
// *rejection.Store implements it.
type RejectionSource interface {
	RejectedTemplateIDs(ctx context.Context, email string) map[string]struct{}
}

// Selection is the outcome of Select.
//
// Exhausted means every template had been rejected and the hash-based
// default was used.
type Selection struct {
	TemplateID string `json:"template_id"`
	Exhausted  bool   `json:"exhausted"`
	Skipped    int    `json:"skipped"`
}

// Select returns the first template in ordered that has not been rejected
// for recipient. When all have been rejected it falls back to a stable
// hash of the recipient so the same lead always gets the same default.
func Select(ctx context.Context, src RejectionSource, recipient string, ordered []string) (Selection, error) {
	if len(ordered) == 0 {
		return Selection{}, ErrNoTemplates
	}

	recipient = domain.NormalizeEmail(recipient)
	rejected := src.RejectedTemplateIDs(ctx, recipient)
	for i, id := range ordered {
		if _, ok := rejected[id]; !ok {
			return Selection{TemplateID: id, Skipped: i}, nil
		}
	}

	return Selection{
		TemplateID: ordered[hashIndex(recipient, len(ordered))],
		Exhausted:  true,
		Skipped:    len(ordered),
	}, nil
}

func hashIndex(recipient string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(recipient))
	return int(h.Sum32() % uint32(n))
}
