// Package portal is a client for the campus reservation portal. It owns
// the authenticated session (token plus cookies), re-authenticates
// silently when the portal drops the session, and exposes the fixed set
// of remote operations the service depends on.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shuttle-pass/backend/internal/config"
	"github.com/shuttle-pass/backend/internal/observability"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

// The portal rejects requests without a browser-looking agent.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/"

// CredentialStore persists rider credentials for silent re-login. The
// session itself is never stored.
type CredentialStore interface {
	Get(ctx context.Context) (username, secret string, err error)
	Put(ctx context.Context, username, secret string) error
}

// Client is the authenticated portal client. Safe for use from the
// request handlers and the refresh scheduler concurrently; remote calls
// themselves are plain blocking round trips.
type Client struct {
	cfg        config.Portal
	httpClient *http.Client
	store      CredentialStore

	mu            sync.Mutex
	username      string
	secret        string
	authenticated bool
}

// NewClient creates a portal client. store may be nil in tests.
func NewClient(cfg config.Portal, store CredentialStore) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		cfg:   cfg,
		store: store,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
	}
}

// SetCredentials replaces the credentials used for (re-)authentication
// and invalidates the current session so the next call logs in fresh.
func (c *Client) SetCredentials(username, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.secret = secret
	c.authenticated = false
}

// Username returns the username of the configured rider, empty when no
// credentials have been set or loaded yet.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Authenticated reports whether the client holds a live session.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Invalidate drops the current session. The next call re-authenticates.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = false
}

// redirectURL is both the redirUrl sent to the identity provider and
// the session-activation URL the token is appended to.
func (c *Client) redirectURL() string {
	return c.cfg.BaseURL + "/site/login/cas-login?redirect_url=" + c.cfg.BaseURL + "/v2/reserve/"
}

// Authenticate exchanges the stored credentials for a portal session:
// first the token from the identity provider, then the redirect call
// that activates the session server-side. On success the credentials
// are persisted for future silent re-login.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	username, secret := c.username, c.secret
	c.mu.Unlock()

	if username == "" {
		return fmt.Errorf("%w: no credentials available", ErrAuth)
	}

	form := url.Values{
		"appid":    {"wproc"},
		"userName": {username},
		"password": {secret},
		"redirUrl": {c.redirectURL()},
	}

	body, err := c.doRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.AuthBaseURL+"/iaaa/oauthlogin.do", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		observability.PortalRequests.WithLabelValues("login", "error").Inc()
		return err
	}

	var login loginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		observability.PortalRequests.WithLabelValues("login", "decode_error").Inc()
		return decodeError("login response", err)
	}
	if !login.Success || login.Token == "" {
		observability.PortalRequests.WithLabelValues("login", "rejected").Inc()
		return fmt.Errorf("%w: portal refused credentials", ErrAuth)
	}

	// Activation step: without this GET the token is never bound to the
	// cookie session and every later call comes back as a login page.
	activateURL := c.redirectURL() + "&_rand=0.6441813796046802&token=" + login.Token
	if _, err := c.doRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, activateURL, nil)
	}); err != nil {
		observability.PortalRequests.WithLabelValues("login", "error").Inc()
		return fmt.Errorf("%w: session activation failed: %v", ErrAuth, err)
	}

	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
	observability.PortalRequests.WithLabelValues("login", "ok").Inc()

	if c.store != nil {
		if err := c.store.Put(ctx, username, secret); err != nil {
			log.Printf("Warning: failed to persist credentials: %v", err)
		}
	}
	return nil
}

// EnsureSession makes sure an authenticated session exists, loading
// stored credentials when none were supplied this run. Every remote
// operation calls this before doing anything else.
func (c *Client) EnsureSession(ctx context.Context) error {
	c.mu.Lock()
	ready := c.authenticated
	haveCreds := c.username != ""
	c.mu.Unlock()

	if ready {
		return nil
	}

	if !haveCreds && c.store != nil {
		username, secret, err := c.store.Get(ctx)
		if err != nil {
			return fmt.Errorf("loading stored credentials: %w", err)
		}
		if username != "" {
			c.mu.Lock()
			c.username, c.secret = username, secret
			c.mu.Unlock()
		}
	}

	return c.Authenticate(ctx)
}

// ListResources fetches the schedule listing for the given date.
func (c *Client) ListResources(ctx context.Context, date string) ([]models.Resource, error) {
	query := url.Values{
		"hall_id":   {"1"},
		"time":      {date},
		"p":         {"1"},
		"page_size": {"0"},
	}

	var list resourceList
	err := c.withSession(ctx, func() error {
		return c.portalGet(ctx, "list-page", "/site/reservation/list-page", query, &list)
	})
	if err != nil {
		return nil, err
	}

	resources := make([]models.Resource, 0, len(list.List))
	for _, w := range list.List {
		res, err := w.toResource()
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, nil
}

// Launch creates a reservation for the given slot.
func (c *Client) Launch(ctx context.Context, resourceID int, date string, period int) error {
	form := url.Values{
		"resource_id": {strconv.Itoa(resourceID)},
		"data":        {fmt.Sprintf(`[{"date": "%s", "period": %d, "sub_resource_id": 0}]`, date, period)},
	}
	return c.withSession(ctx, func() error {
		return c.portalPost(ctx, "launch", "/site/reservation/launch", form, nil)
	})
}

// MyReservations lists the rider's current (status 2) reservations,
// oldest first, the ordering the materialize flow matches against.
func (c *Client) MyReservations(ctx context.Context) ([]Appointment, error) {
	query := url.Values{
		"p":         {"1"},
		"page_size": {"10"},
		"status":    {"2"},
		"sort_time": {"true"},
		"sort":      {"asc"},
	}

	var list appointmentList
	err := c.withSession(ctx, func() error {
		return c.portalGet(ctx, "my-list-time", "/site/reservation/my-list-time", query, &list)
	})
	if err != nil {
		return nil, err
	}
	return list.Data, nil
}

// RideHistory lists all rides in the inclusive date range, newest first.
func (c *Client) RideHistory(ctx context.Context, dateStart, dateEnd string) ([]Appointment, error) {
	query := url.Values{
		"p":         {"1"},
		"page_size": {"0"},
		"status":    {"0"},
		"sort_time": {"true"},
		"sort":      {"desc"},
		"date_sta":  {dateStart},
		"date_end":  {dateEnd},
	}

	var list appointmentList
	err := c.withSession(ctx, func() error {
		return c.portalGet(ctx, "my-list-time", "/site/reservation/my-list-time", query, &list)
	})
	if err != nil {
		return nil, err
	}
	return list.Data, nil
}

// TempQRCode fetches a temporary boarding code for an already-departed
// run. No reservation record is created for these.
func (c *Client) TempQRCode(ctx context.Context, resourceID int, startTime string) (QRPayload, error) {
	query := url.Values{
		"type":        {"1"},
		"resource_id": {strconv.Itoa(resourceID)},
		"text":        {startTime},
	}

	var payload QRPayload
	err := c.withSession(ctx, func() error {
		return c.portalGet(ctx, "get-sign-qrcode", "/site/reservation/get-sign-qrcode", query, &payload)
	})
	return payload, err
}

// BoundQRCode fetches the boarding code bound to an existing reservation.
func (c *Client) BoundQRCode(ctx context.Context, appointmentID, dataID int) (QRPayload, error) {
	query := url.Values{
		"type":                     {"0"},
		"id":                       {strconv.Itoa(appointmentID)},
		"hall_appointment_data_id": {strconv.Itoa(dataID)},
	}

	var payload QRPayload
	err := c.withSession(ctx, func() error {
		return c.portalGet(ctx, "get-sign-qrcode", "/site/reservation/get-sign-qrcode", query, &payload)
	})
	return payload, err
}

// CancelReservation cancels an existing reservation. Success is only
// the portal's explicit zero ack; anything else is a rejection.
func (c *Client) CancelReservation(ctx context.Context, appointmentID, dataID int) error {
	form := url.Values{
		"appointment_id": {strconv.Itoa(appointmentID)},
		"data_id[0]":     {strconv.Itoa(dataID)},
	}
	return c.withSession(ctx, func() error {
		return c.portalPost(ctx, "single-time-cancel", "/site/reservation/single-time-cancel", form, nil)
	})
}

// withSession runs fn with a valid session, transparently renewing it
// exactly once when the portal reports expiry mid-call.
func (c *Client) withSession(ctx context.Context, fn func() error) error {
	if err := c.EnsureSession(ctx); err != nil {
		return err
	}

	err := fn()
	if !errors.Is(err, errSessionExpired) {
		return err
	}

	log.Println("Portal session expired, re-authenticating")
	c.Invalidate()
	if err := c.EnsureSession(ctx); err != nil {
		return err
	}

	err = fn()
	if errors.Is(err, errSessionExpired) {
		return fmt.Errorf("%w: session expired again after re-login", ErrAuth)
	}
	return err
}

func (c *Client) portalGet(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	return c.portalCall(ctx, endpoint, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet,
			c.cfg.BaseURL+path+"?"+query.Encode(), nil)
	}, out)
}

func (c *Client) portalPost(ctx context.Context, endpoint, path string, form url.Values, out any) error {
	return c.portalCall(ctx, endpoint, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

// portalCall performs one enveloped portal request: transport retry,
// expiry detection, envelope check, then payload decode into out.
func (c *Client) portalCall(ctx context.Context, endpoint string, build func() (*http.Request, error), out any) error {
	body, err := c.doRetry(ctx, build)
	if err != nil {
		observability.PortalRequests.WithLabelValues(endpoint, "error").Inc()
		return err
	}

	// An expired session comes back as the HTML login page, not JSON.
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "<") {
		observability.PortalRequests.WithLabelValues(endpoint, "session_expired").Inc()
		return errSessionExpired
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		observability.PortalRequests.WithLabelValues(endpoint, "decode_error").Inc()
		return decodeError(endpoint+" response", err)
	}
	if env.E != 0 {
		observability.PortalRequests.WithLabelValues(endpoint, "rejected").Inc()
		return rejectionError(env.E, env.M)
	}

	if out != nil {
		if err := json.Unmarshal(env.D, out); err != nil {
			observability.PortalRequests.WithLabelValues(endpoint, "decode_error").Inc()
			return decodeError(endpoint+" payload", err)
		}
	}

	observability.PortalRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

// doRetry executes the request with bounded retry on transport errors
// only. A response that arrives, whatever its status, is authoritative.
func (c *Client) doRetry(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	backoff := c.cfg.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			if attempt < c.cfg.RetryAttempts {
				log.Printf("Portal request failed (attempt %d/%d), retrying in %s: %v",
					attempt, c.cfg.RetryAttempts, backoff, err)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
				}
				backoff *= 2
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, errSessionExpired
		}
		if resp.StatusCode != http.StatusOK {
			return nil, rejectionError(resp.StatusCode, "unexpected HTTP status")
		}
		return body, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrNetwork, lastErr)
}
