package templates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-guard/internal/rejection"
)

type staticSource map[string]map[string]struct{}

func (s staticSource) RejectedTemplateIDs(_ context.Context, email string) map[string]struct{} {
	if ids, ok := s[email]; ok {
		return ids
	}
	return map[string]struct{}{}
}

func set(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func TestSelect(t *testing.T) {
	src := staticSource{
		"andrew@example.com": set("tpl-a", "tpl-b"),
		"celia@example.com":  set("tpl-a", "tpl-b", "tpl-c"),
	}
	ordered := []string{"tpl-a", "tpl-b", "tpl-c"}
	ctx := context.Background()

	sel, err := Select(ctx, src, "nobody@example.com", ordered)
	require.NoError(t, err)
	assert.Equal(t, Selection{TemplateID: "tpl-a"}, sel)

	sel, err = Select(ctx, src, " Andrew@Example.com", ordered)
	require.NoError(t, err)
	assert.Equal(t, Selection{TemplateID: "tpl-c", Skipped: 2}, sel)

	sel, err = Select(ctx, src, "celia@example.com", ordered)
	require.NoError(t, err)
	assert.True(t, sel.Exhausted)
	assert.Contains(t, ordered, sel.TemplateID)

	again, err := Select(ctx, src, "celia@example.com", ordered)
	require.NoError(t, err)
	assert.Equal(t, sel, again, "fallback is stable per recipient")
}

func TestSelect_NoTemplates(t *testing.T) {
	_, err := Select(context.Background(), staticSource{}, "a@example.com", nil)
	assert.ErrorIs(t, err, ErrNoTemplates)
}

func TestSelect_WithStore(t *testing.T) {
	b, err := rejection.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	store := rejection.NewStore(b)
	ctx := context.Background()

	_, err = store.RecordRejection(ctx, rejection.RejectionInput{RecipientEmail: "a@example.com", TemplateID: "tpl-a"})
	require.NoError(t, err)

	sel, err := Select(ctx, store, "a@example.com", []string{"tpl-a", "tpl-b"})
	require.NoError(t, err)
	assert.Equal(t, "tpl-b", sel.TemplateID)
}
