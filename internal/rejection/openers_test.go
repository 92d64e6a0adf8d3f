package rejection

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBackend_Openers(t *testing.T) {
	_, client := setupTestRedis(t)
	b := NewRedisBackend(client, time.Second)
	ctx := context.Background()

	got, err := b.Openers(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, b.AddOpener(ctx, `^hope you are well`))
	require.NoError(t, b.AddOpener(ctx, `^hope you are well`))
	require.NoError(t, b.AddOpener(ctx, `^big fan of`))

	got, err = b.Openers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{`^hope you are well`, `^big fan of`}, got)
}

func TestFileBackend_OpenersSharedAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFileBackend(dir)
	require.NoError(t, err)
	second, err := NewFileBackend(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, first.AddOpener(ctx, `^quick question`))
	require.NoError(t, second.AddOpener(ctx, `^big fan of`))
	require.NoError(t, second.AddOpener(ctx, `^quick question`))

	got, err := first.Openers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{`^big fan of`, `^quick question`}, got)
}

func TestFileBackend_OpenersSurviveSweep(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.AddOpener(ctx, `^big fan of`))
	_, err = b.Sweep(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)

	got, err := b.Openers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{`^big fan of`}, got)
}

func TestFileBackend_CorruptOpenersFile(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileOpenersKey+".list"), []byte("not json"), 0644))

	_, err = b.Openers(context.Background())
	assert.Error(t, err)
}

func TestDynamoBackend_Openers(t *testing.T) {
	fake := newFakeDynamo()
	fake.conflicts = 1
	b := NewDynamoBackend(fake, "rejections", time.Second)
	ctx := context.Background()

	require.NoError(t, b.AddOpener(ctx, `^quick question`))
	require.NoError(t, b.AddOpener(ctx, `^big fan of`))
	require.NoError(t, b.AddOpener(ctx, `^big fan of`))

	got, err := b.Openers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{`^big fan of`, `^quick question`}, got)
	assert.Contains(t, fake.items, dynamoOpenersPK)
}

func TestStore_LearnedOpenersFallBackAndUnion(t *testing.T) {
	mr, client := setupTestRedis(t)
	file, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	s := NewStore(NewRedisBackend(client, 200*time.Millisecond), WithFallback(file))
	ctx := context.Background()

	require.NoError(t, s.SaveLearnedOpener(ctx, `^quick question`))

	mr.Close()
	require.NoError(t, s.SaveLearnedOpener(ctx, `^big fan of`))
	onFile, err := file.Openers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{`^big fan of`}, onFile)
	assert.Equal(t, []string{`^big fan of`}, s.LearnedOpeners(ctx))

	require.NoError(t, mr.Restart())
	assert.Equal(t, []string{`^big fan of`, `^quick question`}, s.LearnedOpeners(ctx))
}

func TestStore_SaveLearnedOpenerWithoutCapableBackend(t *testing.T) {
	s := NewStore(&brokenBackend{name: "broken", err: ErrUnavailable})

	err := s.SaveLearnedOpener(context.Background(), `^big fan of`)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, s.LearnedOpeners(context.Background()))
}
