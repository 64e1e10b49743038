package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barakah-tasks/internal/quran"
	"barakah-tasks/internal/repository"
)

type fakeSurahs struct {
	fetches int
}

func (f *fakeSurahs) Surah(_ context.Context, number int) (*quran.Surah, error) {
	f.fetches++
	size := 3
	if number == 1 {
		size = 7
	}
	s := &quran.Surah{Number: number, EnglishName: fmt.Sprintf("Surah %d", number)}
	for i := 1; i <= size; i++ {
		s.Verses = append(s.Verses, quran.Verse{Number: i, Arabic: "آية", Translation: fmt.Sprintf("verse %d", i)})
	}
	return s, nil
}

func TestQuranReadingProgress(t *testing.T) {
	fetcher := &fakeSurahs{}
	svc := NewQuranService(fetcher, repository.NewSettingsRepository(newTestDB(t)))
	ctx := context.Background()

	p, err := svc.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Progress{Surah: 1, Ayah: 1}, p)

	_, verses, err := svc.Next(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, verses, 5)
	assert.Equal(t, 1, verses[0].Number)

	surah, verses, err := svc.Next(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, surah.Number)
	require.Len(t, verses, 2)
	assert.Equal(t, 7, verses[1].Number)

	p, err = svc.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Progress{Surah: 2, Ayah: 1}, p)
	assert.Equal(t, 1, fetcher.fetches, "surah cached")

	require.NoError(t, svc.SetProgress(ctx, "u1", Progress{Surah: 114, Ayah: 3}))
	_, verses, err = svc.Next(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, verses, 1)
	p, err = svc.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Progress{Surah: 1, Ayah: 1}, p, "wraps after An-Nas")

	assert.Error(t, svc.SetProgress(ctx, "u1", Progress{Surah: 115, Ayah: 1}))
	assert.Error(t, svc.SetProgress(ctx, "u1", Progress{Surah: 2, Ayah: 0}))
}

func TestParseProgress(t *testing.T) {
	p, err := parseProgress("18:10")
	require.NoError(t, err)
	assert.Equal(t, Progress{Surah: 18, Ayah: 10}, p)
	assert.Equal(t, "18:10", p.String())

	for _, bad := range []string{"", "18", "a:1", "1:b"} {
		_, err := parseProgress(bad)
		assert.Error(t, err, bad)
	}
}
