package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"barakah-tasks/internal/quran"
	"barakah-tasks/internal/repository"
)

// SurahFetcher loads a surah with its translation.
type SurahFetcher interface {
	Surah(ctx context.Context, number int) (*quran.Surah, error)
}

// Progress is the next verse to read.
type Progress struct {
	Surah int
	Ayah  int
}

func (p Progress) String() string {
	return fmt.Sprintf("%d:%d", p.Surah, p.Ayah)
}

func parseProgress(s string) (Progress, error) {
	surah, ayah, ok := strings.Cut(s, ":")
	if !ok {
		return Progress{}, fmt.Errorf("invalid progress %q", s)
	}
	n, err := strconv.Atoi(surah)
	if err != nil {
		return Progress{}, fmt.Errorf("invalid progress %q: %w", s, err)
	}
	a, err := strconv.Atoi(ayah)
	if err != nil {
		return Progress{}, fmt.Errorf("invalid progress %q: %w", s, err)
	}
	return Progress{Surah: n, Ayah: a}, nil
}

// QuranService serves verses in reading order and remembers each user's
// position.
type QuranService struct {
	fetcher  SurahFetcher
	settings *repository.SettingsRepository

	mu    sync.Mutex
	cache map[int]*quran.Surah
}

func NewQuranService(fetcher SurahFetcher, settings *repository.SettingsRepository) *QuranService {
	return &QuranService{
		fetcher:  fetcher,
		settings: settings,
		cache:    make(map[int]*quran.Surah),
	}
}

// Progress returns the user's position, starting at Al-Fatiha.
func (s *QuranService) Progress(ctx context.Context, userID string) (Progress, error) {
	raw, ok, err := s.settings.Get(ctx, userID, repository.KeyQuranProgress)
	if err != nil {
		return Progress{}, err
	}
	if !ok {
		return Progress{Surah: 1, Ayah: 1}, nil
	}
	return parseProgress(raw)
}

// SetProgress moves the user to a surah and ayah.
func (s *QuranService) SetProgress(ctx context.Context, userID string, p Progress) error {
	if p.Surah < 1 || p.Surah > quran.SurahCount {
		return fmt.Errorf("surah %d out of range 1-%d", p.Surah, quran.SurahCount)
	}
	if p.Ayah < 1 {
		return fmt.Errorf("ayah %d out of range", p.Ayah)
	}
	return s.settings.Set(ctx, userID, repository.KeyQuranProgress, p.String())
}

// Surah returns a surah, cached after the first fetch.
func (s *QuranService) Surah(ctx context.Context, number int) (*quran.Surah, error) {
	s.mu.Lock()
	cached, ok := s.cache[number]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}
	surah, err := s.fetcher.Surah(ctx, number)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[number] = surah
	s.mu.Unlock()
	return surah, nil
}

// Next returns up to count verses from the user's position and advances it.
// Finishing a surah moves to the next one; after An-Nas reading restarts.
func (s *QuranService) Next(ctx context.Context, userID string, count int) (*quran.Surah, []quran.Verse, error) {
	if count <= 0 {
		count = 5
	}
	p, err := s.Progress(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	surah, err := s.Surah(ctx, p.Surah)
	if err != nil {
		return nil, nil, err
	}

	start := p.Ayah - 1
	if start >= len(surah.Verses) {
		start = 0
	}
	end := start + count
	if end > len(surah.Verses) {
		end = len(surah.Verses)
	}
	verses := surah.Verses[start:end]

	next := Progress{Surah: p.Surah, Ayah: end + 1}
	if end >= len(surah.Verses) {
		next = Progress{Surah: p.Surah%quran.SurahCount + 1, Ayah: 1}
	}
	if err := s.SetProgress(ctx, userID, next); err != nil {
		return nil, nil, err
	}
	return surah, verses, nil
}
