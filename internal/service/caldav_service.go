package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"barakah-tasks/internal/caldav"
	"barakah-tasks/internal/model"
	"barakah-tasks/internal/repository"
	"barakah-tasks/internal/tasks"
)

// SessionSource returns a user's live task session.
type SessionSource interface {
	Get(ctx context.Context, user model.User) (*TaskService, error)
}

// SyncFailure records one event the server did not accept.
type SyncFailure struct {
	UID string
	Err error
}

// SyncReport lists what a sync pushed.
type SyncReport struct {
	Succeeded []string
	Failed    []SyncFailure
	At        time.Time
}

func (r *SyncReport) Total() int { return len(r.Succeeded) + len(r.Failed) }

// CalDAVService connects users to a CalDAV calendar and pushes today's
// prayers and dated tasks to it.
type CalDAVService struct {
	settings *repository.SettingsRepository
	users    *repository.UserRepository
	proxy    caldav.Proxy
	prayers  *PrayerService
	sessions SessionSource
	ttl      time.Duration
	now      func() time.Time
}

func NewCalDAVService(settings *repository.SettingsRepository, users *repository.UserRepository, proxy caldav.Proxy, prayers *PrayerService, sessions SessionSource, ttl time.Duration) *CalDAVService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CalDAVService{
		settings: settings,
		users:    users,
		proxy:    proxy,
		prayers:  prayers,
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Connect discovers the user's calendar and stores the connection. The
// password is kept in the credential store and expires after the TTL.
func (s *CalDAVService) Connect(ctx context.Context, user model.User, serverURL, username, password string) (*model.CalDAVConnection, error) {
	serverURL = strings.TrimSpace(serverURL)
	client := caldav.NewClient(s.proxy, username, password)
	found, err := client.Discover(ctx, serverURL)
	if err != nil {
		return nil, fmt.Errorf("connect caldav: %w", err)
	}

	conn, err := s.settings.CalDAVConnection(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if conn == nil {
		conn = &model.CalDAVConnection{UserID: user.ID, CreatedAt: now}
	}
	conn.Provider = providerFor(serverURL)
	conn.Username = username
	conn.ServerURL = serverURL
	conn.PrincipalURL = found.PrincipalURL
	conn.CalendarHomeURL = found.CalendarHomeURL
	conn.CalendarURL = found.CalendarURL
	conn.Connected = true
	conn.UpdatedAt = now

	if err := s.settings.SaveCalDAVConnection(ctx, conn); err != nil {
		return nil, err
	}
	if err := s.settings.PutSecret(ctx, user.ID, repository.KeyCalDAVPassword, password, s.ttl); err != nil {
		return nil, err
	}
	log.Printf("[info] caldav connected user=%s provider=%s calendar=%s", user.ID, conn.Provider, conn.CalendarURL)
	return conn, nil
}

// Disconnect forgets the connection and its password.
func (s *CalDAVService) Disconnect(ctx context.Context, userID string) error {
	return s.settings.DeleteCalDAVConnection(ctx, userID)
}

// Status returns the user's connection or nil.
func (s *CalDAVService) Status(ctx context.Context, userID string) (*model.CalDAVConnection, error) {
	return s.settings.CalDAVConnection(ctx, userID)
}

// Sync uploads today's prayers and every open dated task. Individual upload
// failures are reported, not returned; the last-sync time is recorded
// whenever at least one upload went through.
func (s *CalDAVService) Sync(ctx context.Context, user model.User) (*SyncReport, error) {
	conn, err := s.settings.CalDAVConnection(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if conn == nil || !conn.Connected || conn.CalendarURL == "" {
		return nil, caldav.ErrNotConnected
	}
	password, ok, err := s.settings.Secret(ctx, user.ID, repository.KeyCalDAVPassword)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: password expired, reconnect", caldav.ErrNotConnected)
	}

	events, err := s.events(ctx, user)
	if err != nil {
		return nil, err
	}

	client := caldav.NewClient(s.proxy, conn.Username, password)
	stamp := s.now()
	report := &SyncReport{At: stamp}
	for _, e := range events {
		e.Stamp = stamp
		if _, err := client.PutEvent(ctx, conn.CalendarURL, e.UID, caldav.Calendar(e)); err != nil {
			if errors.Is(err, caldav.ErrUnauthorized) {
				return report, fmt.Errorf("sync caldav: %w", err)
			}
			report.Failed = append(report.Failed, SyncFailure{UID: e.UID, Err: err})
			continue
		}
		report.Succeeded = append(report.Succeeded, e.UID)
	}

	if len(report.Succeeded) > 0 {
		conn.LastSyncAt = &stamp
		conn.UpdatedAt = stamp
		if err := s.settings.SaveCalDAVConnection(ctx, conn); err != nil {
			return report, err
		}
	}
	log.Printf("[info] caldav sync user=%s ok=%d failed=%d", user.ID, len(report.Succeeded), len(report.Failed))
	return report, nil
}

// SyncAll syncs every connected account.
func (s *CalDAVService) SyncAll(ctx context.Context) error {
	conns, err := s.settings.ListCalDAVConnections(ctx)
	if err != nil {
		return err
	}
	for _, conn := range conns {
		if err := ctx.Err(); err != nil {
			return err
		}
		user, err := s.users.FindByID(ctx, conn.UserID)
		if err != nil {
			log.Printf("[warn] caldav sync user=%s: %v", conn.UserID, err)
			continue
		}
		if _, err := s.Sync(ctx, *user); err != nil {
			log.Printf("[warn] caldav sync user=%s: %v", conn.UserID, err)
		}
	}
	return nil
}

func (s *CalDAVService) events(ctx context.Context, user model.User) ([]caldav.Event, error) {
	loc := user.Location()
	var events []caldav.Event

	if s.prayers != nil {
		timings, err := s.prayers.Today(ctx, user)
		if err != nil {
			log.Printf("[warn] caldav sync user=%s: skipping prayers: %v", user.ID, err)
		} else {
			for _, p := range model.Prayers {
				at, err := timings.At(p, loc)
				if err != nil {
					continue
				}
				events = append(events, caldav.PrayerEvent(user.ID, p, at, 0))
			}
		}
	}

	if s.sessions != nil {
		svc, err := s.sessions.Get(ctx, user)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks.Flatten(svc.Tasks()) {
			if t.IsCompleted() || t.Status == model.StatusCancelled {
				continue
			}
			if e, ok := caldav.TaskEvent(t, loc); ok {
				events = append(events, e)
			}
		}
	}
	return events, nil
}

func providerFor(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "caldav"
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.HasSuffix(host, "icloud.com"):
		return "icloud"
	case strings.HasSuffix(host, "fastmail.com"):
		return "fastmail"
	case strings.HasSuffix(host, "google.com"), strings.HasSuffix(host, "googleusercontent.com"):
		return "google"
	default:
		return "caldav"
	}
}
