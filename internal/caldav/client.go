package caldav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	propfindPrincipal = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:"><d:prop><d:current-user-principal/></d:prop></d:propfind>`

	propfindHomeSet = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav"><d:prop><c:calendar-home-set/></d:prop></d:propfind>`

	propfindCalendars = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav"><d:prop><d:resourcetype/><d:displayname/><c:supported-calendar-component-set/></d:prop></d:propfind>`
)

type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"DAV: response"`
}

type response struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop   prop   `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

type prop struct {
	CurrentUserPrincipal *hrefProp    `xml:"DAV: current-user-principal"`
	CalendarHomeSet      *hrefProp    `xml:"urn:ietf:params:xml:ns:caldav calendar-home-set"`
	DisplayName          string       `xml:"DAV: displayname"`
	ResourceType         resourceType `xml:"DAV: resourcetype"`
	Components           *compSet     `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-component-set"`
}

type hrefProp struct {
	Href string `xml:"DAV: href"`
}

type resourceType struct {
	Calendar *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar"`
}

type compSet struct {
	Comps []struct {
		Name string `xml:"name,attr"`
	} `xml:"urn:ietf:params:xml:ns:caldav comp"`
}

func (p propstat) ok() bool {
	return p.Status == "" || strings.Contains(p.Status, " 200 ")
}

// Discovery is the result of walking from the server root to a calendar.
type Discovery struct {
	PrincipalURL    string
	CalendarHomeURL string
	CalendarURL     string
	CalendarName    string
}

// Collection is an event-capable collection under the calendar home.
type Collection struct {
	URL  string
	Name string
}

// Client talks CalDAV for one account.
type Client struct {
	proxy    Proxy
	username string
	password string
}

func NewClient(proxy Proxy, username, password string) *Client {
	return &Client{proxy: proxy, username: username, password: password}
}

// Discover resolves the principal, its calendar home and the first calendar
// that accepts events.
func (c *Client) Discover(ctx context.Context, serverURL string) (*Discovery, error) {
	base, err := url.Parse(serverURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", serverURL)
	}

	ms, err := c.propfind(ctx, base.String(), "0", propfindPrincipal)
	if err != nil {
		return nil, fmt.Errorf("discover principal: %w", err)
	}
	principal := findHref(ms, func(p prop) *hrefProp { return p.CurrentUserPrincipal })
	if principal == "" {
		return nil, fmt.Errorf("discover principal: server did not report current-user-principal")
	}
	d := &Discovery{PrincipalURL: resolve(base, principal)}

	ms, err = c.propfind(ctx, d.PrincipalURL, "0", propfindHomeSet)
	if err != nil {
		return nil, fmt.Errorf("discover calendar home: %w", err)
	}
	home := findHref(ms, func(p prop) *hrefProp { return p.CalendarHomeSet })
	if home == "" {
		return nil, fmt.Errorf("discover calendar home: server did not report calendar-home-set")
	}
	d.CalendarHomeURL = resolve(base, home)

	calendars, err := c.Calendars(ctx, d.CalendarHomeURL)
	if err != nil {
		return nil, err
	}
	if len(calendars) == 0 {
		d.CalendarURL = d.CalendarHomeURL
		return d, nil
	}
	d.CalendarURL = calendars[0].URL
	d.CalendarName = calendars[0].Name
	return d, nil
}

// Calendars lists the event calendars directly under home.
func (c *Client) Calendars(ctx context.Context, homeURL string) ([]Collection, error) {
	base, err := url.Parse(homeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar home %q: %w", homeURL, err)
	}
	ms, err := c.propfind(ctx, homeURL, "1", propfindCalendars)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}

	var out []Collection
	for _, r := range ms.Responses {
		for _, ps := range r.Propstats {
			if !ps.ok() || ps.Prop.ResourceType.Calendar == nil {
				continue
			}
			if !supportsEvents(ps.Prop.Components) {
				continue
			}
			out = append(out, Collection{URL: resolve(base, r.Href), Name: ps.Prop.DisplayName})
		}
	}
	return out, nil
}

// PutEvent uploads an iCalendar object as <calendarURL>/<uid>.ics and
// returns the server's ETag, if any.
func (c *Client) PutEvent(ctx context.Context, calendarURL, uid string, ics []byte) (string, error) {
	resp, err := c.proxy.Invoke(ctx, Request{
		Method:   http.MethodPut,
		URL:      eventURL(calendarURL, uid),
		Username: c.username,
		Password: c.password,
		Headers:  map[string]string{"Content-Type": "text/calendar; charset=utf-8"},
		Body:     ics,
	})
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp, http.StatusCreated, http.StatusNoContent, http.StatusOK); err != nil {
		return "", fmt.Errorf("put %s: %w", uid, err)
	}
	return resp.Headers.Get("ETag"), nil
}

// DeleteEvent removes an uploaded event. A missing event is not an error.
func (c *Client) DeleteEvent(ctx context.Context, calendarURL, uid string) error {
	resp, err := c.proxy.Invoke(ctx, Request{
		Method:   http.MethodDelete,
		URL:      eventURL(calendarURL, uid),
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		return err
	}
	if err := checkStatus(resp, http.StatusNoContent, http.StatusOK, http.StatusNotFound); err != nil {
		return fmt.Errorf("delete %s: %w", uid, err)
	}
	return nil
}

func (c *Client) propfind(ctx context.Context, target, depth, body string) (*multistatus, error) {
	resp, err := c.proxy.Invoke(ctx, Request{
		Method:   "PROPFIND",
		URL:      target,
		Username: c.username,
		Password: c.password,
		Headers: map[string]string{
			"Depth":        depth,
			"Content-Type": "application/xml; charset=utf-8",
		},
		Body: []byte(body),
	})
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusMultiStatus); err != nil {
		return nil, err
	}
	var ms multistatus
	if err := xml.Unmarshal(resp.Body, &ms); err != nil {
		return nil, fmt.Errorf("decode multistatus: %w", err)
	}
	return &ms, nil
}

func checkStatus(resp *Response, want ...int) error {
	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}

func findHref(ms *multistatus, pick func(prop) *hrefProp) string {
	for _, r := range ms.Responses {
		for _, ps := range r.Propstats {
			if !ps.ok() {
				continue
			}
			if h := pick(ps.Prop); h != nil && strings.TrimSpace(h.Href) != "" {
				return strings.TrimSpace(h.Href)
			}
		}
	}
	return ""
}

func supportsEvents(cs *compSet) bool {
	if cs == nil || len(cs.Comps) == 0 {
		return true
	}
	for _, comp := range cs.Comps {
		if strings.EqualFold(comp.Name, "VEVENT") {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func eventURL(calendarURL, uid string) string {
	return strings.TrimRight(calendarURL, "/") + "/" + url.PathEscape(uid) + ".ics"
}
