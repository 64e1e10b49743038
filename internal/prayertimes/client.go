// Package prayertimes fetches daily prayer timings from an
// Aladhan-compatible API.
package prayertimes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"barakah-tasks/internal/model"
)

const (
	DefaultBaseURL = "https://api.aladhan.com"
	DefaultMethod  = 4 // Umm al-Qura, Makkah

	// Coordinates of Mecca, used when a user has not shared a location.
	DefaultLatitude  = 21.4225
	DefaultLongitude = 39.8262

	maxRetries   = 3
	initialDelay = 500 * time.Millisecond
)

// Timings holds one day's prayer times as HH:MM strings.
type Timings struct {
	Date    string // YYYY-MM-DD
	Fajr    string
	Sunrise string
	Dhuhr   string
	Asr     string
	Maghrib string
	Isha    string
}

// Get returns the HH:MM time of a prayer by its lowercase name.
func (t Timings) Get(prayer string) (string, bool) {
	switch prayer {
	case model.Fajr:
		return t.Fajr, true
	case model.Dhuhr:
		return t.Dhuhr, true
	case model.Asr:
		return t.Asr, true
	case model.Maghrib:
		return t.Maghrib, true
	case model.Isha:
		return t.Isha, true
	default:
		return "", false
	}
}

// At resolves a prayer's time on Date in loc.
func (t Timings) At(prayer string, loc *time.Location) (time.Time, error) {
	hhmm, ok := t.Get(prayer)
	if !ok {
		return time.Time{}, fmt.Errorf("unknown prayer %q", prayer)
	}
	at, err := time.ParseInLocation("2006-01-02 15:04", t.Date+" "+hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s time %q: %w", prayer, hhmm, err)
	}
	return at, nil
}

type envelope struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type timingsData struct {
	Timings map[string]string `json:"timings"`
}

// Client calls the timings endpoint.
type Client struct {
	baseURL string
	client  *http.Client
	delay   time.Duration
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		delay:   initialDelay,
	}
}

// Timings fetches the timings for date at the given coordinates.
func (c *Client) Timings(ctx context.Context, lat, lon float64, method int, date time.Time) (*Timings, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("method", strconv.Itoa(method))
	endpoint := fmt.Sprintf("%s/v1/timings/%s?%s", c.baseURL, date.Format("02-01-2006"), q.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode timings: %w", err)
	}
	if env.Code != http.StatusOK {
		return nil, fmt.Errorf("prayer API error (%d): %s", env.Code, env.Status)
	}
	var data timingsData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode timings data: %w", err)
	}

	t := &Timings{Date: date.Format("2006-01-02")}
	for name, dst := range map[string]*string{
		"Fajr":    &t.Fajr,
		"Sunrise": &t.Sunrise,
		"Dhuhr":   &t.Dhuhr,
		"Asr":     &t.Asr,
		"Maghrib": &t.Maghrib,
		"Isha":    &t.Isha,
	} {
		raw, ok := data.Timings[name]
		if !ok {
			if name == "Sunrise" {
				continue
			}
			return nil, fmt.Errorf("timings missing %s", name)
		}
		// Some servers append the zone, e.g. "05:12 (+03)".
		if i := strings.IndexByte(raw, ' '); i > 0 {
			raw = raw[:i]
		}
		*dst = raw
	}
	return t, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.delay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request timings: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read timings: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("prayer API error (%d)", resp.StatusCode)
			continue
		default:
			var env envelope
			if json.Unmarshal(body, &env) == nil && env.Status != "" {
				return nil, fmt.Errorf("prayer API error (%d): %s", resp.StatusCode, env.Status)
			}
			return nil, fmt.Errorf("prayer API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}
