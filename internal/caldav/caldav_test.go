package caldav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barakah-tasks/internal/model"
)

const (
	principalBody = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:"><d:response><d:href>/</d:href><d:propstat>
<d:prop><d:current-user-principal><d:href>/principals/aisha/</d:href></d:current-user-principal></d:prop>
<d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response></d:multistatus>`

	homeBody = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav"><d:response><d:href>/principals/aisha/</d:href><d:propstat>
<d:prop><cal:calendar-home-set><d:href>/calendars/aisha/</d:href></cal:calendar-home-set></d:prop>
<d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response></d:multistatus>`

	calendarsBody = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
<d:response><d:href>/calendars/aisha/</d:href><d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>
<d:response><d:href>/calendars/aisha/todo/</d:href><d:propstat><d:prop><d:resourcetype><d:collection/><cal:calendar/></d:resourcetype><d:displayname>Todo</d:displayname>
<cal:supported-calendar-component-set><cal:comp name="VTODO"/></cal:supported-calendar-component-set></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>
<d:response><d:href>/calendars/aisha/personal/</d:href><d:propstat><d:prop><d:resourcetype><d:collection/><cal:calendar/></d:resourcetype><d:displayname>Personal</d:displayname>
<cal:supported-calendar-component-set><cal:comp name="VEVENT"/><cal:comp name="VTODO"/></cal:supported-calendar-component-set></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>
</d:multistatus>`
)

type davServer struct {
	mu   sync.Mutex
	puts map[string]string
}

func (s *davServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "aisha" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.Method == "PROPFIND" && r.URL.Path == "/":
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, principalBody)
	case r.Method == "PROPFIND" && r.URL.Path == "/principals/aisha/":
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, homeBody)
	case r.Method == "PROPFIND" && r.URL.Path == "/calendars/aisha/" && r.Header.Get("Depth") == "1":
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, calendarsBody)
	case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, ".ics"):
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.puts[r.URL.Path] = string(body)
		s.mu.Unlock()
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestDiscoverAndPut(t *testing.T) {
	dav := &davServer{puts: make(map[string]string)}
	srv := httptest.NewServer(dav)
	defer srv.Close()

	c := NewClient(NewHTTPProxy(time.Second), "aisha", "secret")
	d, err := c.Discover(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/principals/aisha/", d.PrincipalURL)
	assert.Equal(t, srv.URL+"/calendars/aisha/", d.CalendarHomeURL)
	assert.Equal(t, srv.URL+"/calendars/aisha/personal/", d.CalendarURL)
	assert.Equal(t, "Personal", d.CalendarName)

	ics := Calendar(PrayerEvent("u1", model.Fajr, time.Date(2024, 3, 9, 5, 12, 0, 0, time.UTC), 0))
	etag, err := c.PutEvent(context.Background(), d.CalendarURL, "prayer-fajr-20240309-u1", ics)
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, etag)
	assert.Contains(t, dav.puts["/calendars/aisha/personal/prayer-fajr-20240309-u1.ics"], "SUMMARY:🕌 Fajr")
}

func TestCalendarsListsEventCollections(t *testing.T) {
	srv := httptest.NewServer(&davServer{puts: make(map[string]string)})
	defer srv.Close()

	got, err := NewClient(NewHTTPProxy(time.Second), "aisha", "secret").Calendars(context.Background(), srv.URL+"/calendars/aisha/")
	require.NoError(t, err)
	assert.Equal(t, []Collection{{URL: srv.URL + "/calendars/aisha/personal/", Name: "Personal"}}, got)
}

func TestDiscoverUnauthorized(t *testing.T) {
	srv := httptest.NewServer(&davServer{})
	defer srv.Close()

	_, err := NewClient(NewHTTPProxy(time.Second), "aisha", "wrong").Discover(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewClient(NewHTTPProxy(time.Second), "aisha", "secret").Discover(context.Background(), "not a url")
	assert.Error(t, err)
}

type recordingProxy struct {
	reqs []Request
	resp *Response
}

func (p *recordingProxy) Invoke(_ context.Context, r Request) (*Response, error) {
	p.reqs = append(p.reqs, r)
	return p.resp, nil
}

func TestPutEventThroughProxy(t *testing.T) {
	proxy := &recordingProxy{resp: &Response{StatusCode: http.StatusNoContent, Headers: http.Header{}}}
	c := NewClient(proxy, "u", "p")

	_, err := c.PutEvent(context.Background(), "https://dav.example/cal/", "task 1", []byte("x"))
	require.NoError(t, err)
	require.Len(t, proxy.reqs, 1)
	assert.Equal(t, http.MethodPut, proxy.reqs[0].Method)
	assert.Equal(t, "https://dav.example/cal/task%201.ics", proxy.reqs[0].URL)
	assert.Equal(t, "u", proxy.reqs[0].Username)
	assert.Equal(t, "text/calendar; charset=utf-8", proxy.reqs[0].Headers["Content-Type"])

	proxy.resp = &Response{StatusCode: http.StatusInternalServerError}
	_, err = c.PutEvent(context.Background(), "https://dav.example/cal", "x", nil)
	assert.Error(t, err)

	proxy.resp = &Response{StatusCode: http.StatusNotFound}
	assert.NoError(t, c.DeleteEvent(context.Background(), "https://dav.example/cal", "gone"))
}

func TestCalendarRendering(t *testing.T) {
	desc := "Bring dates, water; and\na mat"
	due := "2024-03-11"
	task := model.Task{ID: "abc", Title: "Iftar, masjid", Priority: model.PriorityHigh, DueDate: &due, Description: &desc}

	e, ok := TaskEvent(task, time.UTC)
	require.True(t, ok)
	assert.True(t, e.AllDay)
	e.Stamp = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	out := string(Calendar(e))
	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
	assert.Contains(t, out, "UID:task-abc\r\n")
	assert.Contains(t, out, "DTSTAMP:20240301T000000Z\r\n")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240311\r\n")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20240312\r\n")
	assert.Contains(t, out, `SUMMARY:Iftar\, masjid`)
	assert.Contains(t, out, `DESCRIPTION:Bring dates\, water\; and\na mat`)
	assert.Contains(t, out, "CATEGORIES:Task,high\r\n")

	_, ok = TaskEvent(model.Task{ID: "x"}, time.UTC)
	assert.False(t, ok)
}

func TestTimedTaskEvent(t *testing.T) {
	date, at := "2024-03-11", "18:30"
	e, ok := TaskEvent(model.Task{ID: "t", Title: "Call", DueDate: &date, DueTime: &at}, time.UTC)
	require.True(t, ok)
	assert.False(t, e.AllDay)
	out := string(Calendar(e))
	assert.Contains(t, out, "DTSTART:20240311T183000Z\r\n")
	assert.Contains(t, out, "DTEND:20240311T190000Z\r\n")
}

func TestFoldLongLines(t *testing.T) {
	long := "DESCRIPTION:" + strings.Repeat("بركة ", 40)
	folded := fold(long)
	for i, part := range strings.Split(folded, "\r\n") {
		assert.LessOrEqual(t, len(part), maxLineOctets, "line %d", i)
		if i > 0 {
			assert.True(t, strings.HasPrefix(part, " "))
		}
	}
	assert.Equal(t, long, strings.ReplaceAll(folded, "\r\n ", ""))
	assert.Equal(t, "short", fold("short"))
}
