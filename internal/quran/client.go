// Package quran reads surahs from an alquran.cloud-compatible API.
package quran

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL = "https://api.alquran.cloud"

	ArabicEdition      = "quran-uthmani"
	TranslationEdition = "en.asad"

	SurahCount = 114
)

// Verse pairs the Arabic text of an ayah with its translation.
type Verse struct {
	Number      int
	Arabic      string
	Translation string
}

type Surah struct {
	Number      int
	Name        string
	EnglishName string
	Verses      []Verse
}

type envelope struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type edition struct {
	Number      int    `json:"number"`
	Name        string `json:"name"`
	EnglishName string `json:"englishName"`
	Ayahs       []struct {
		NumberInSurah int    `json:"numberInSurah"`
		Text          string `json:"text"`
	} `json:"ayahs"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

// Surah fetches the Arabic and translated editions concurrently and joins
// them verse by verse.
func (c *Client) Surah(ctx context.Context, number int) (*Surah, error) {
	if number < 1 || number > SurahCount {
		return nil, fmt.Errorf("surah %d out of range 1-%d", number, SurahCount)
	}

	var arabic, translation edition
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.edition(gctx, number, ArabicEdition, &arabic)
	})
	g.Go(func() error {
		return c.edition(gctx, number, TranslationEdition, &translation)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(arabic.Ayahs) != len(translation.Ayahs) {
		return nil, fmt.Errorf("surah %d: %d arabic verses but %d translated", number, len(arabic.Ayahs), len(translation.Ayahs))
	}
	s := &Surah{
		Number:      arabic.Number,
		Name:        arabic.Name,
		EnglishName: arabic.EnglishName,
		Verses:      make([]Verse, len(arabic.Ayahs)),
	}
	for i, a := range arabic.Ayahs {
		s.Verses[i] = Verse{
			Number:      a.NumberInSurah,
			Arabic:      a.Text,
			Translation: translation.Ayahs[i].Text,
		}
	}
	return s, nil
}

func (c *Client) edition(ctx context.Context, number int, name string, dst *edition) error {
	endpoint := fmt.Sprintf("%s/v1/surah/%d/%s", c.baseURL, number, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s (%d): %w", name, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || env.Code != http.StatusOK {
		return fmt.Errorf("quran API error (%d): %s", env.Code, env.Status)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("decode %s data: %w", name, err)
	}
	return nil
}
