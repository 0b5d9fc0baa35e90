package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shuttle-pass/backend/internal/config"
)

func testPortalConfig(baseURL string) config.Portal {
	return config.Portal{
		BaseURL:       baseURL,
		AuthBaseURL:   baseURL,
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	}
}

// memStore is an in-memory CredentialStore.
type memStore struct {
	mu       sync.Mutex
	username string
	secret   string
	puts     int
}

func (s *memStore) Get(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.secret, nil
}

func (s *memStore) Put(ctx context.Context, username, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username, s.secret = username, secret
	s.puts++
	return nil
}

func writeEnvelope(w http.ResponseWriter, d string) {
	fmt.Fprintf(w, `{"e":0,"m":"","d":%s}`, d)
}

// loginHandler serves the identity provider and activation endpoints.
func loginHandler(t *testing.T, logins *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/iaaa/oauthlogin.do":
			if err := r.ParseForm(); err != nil {
				t.Errorf("parsing login form: %v", err)
			}
			if got := r.PostForm.Get("appid"); got != "wproc" {
				t.Errorf("login appid = %q, want wproc", got)
			}
			if r.PostForm.Get("userName") == "" || r.PostForm.Get("redirUrl") == "" {
				t.Error("login form missing userName or redirUrl")
			}
			atomic.AddInt32(logins, 1)
			fmt.Fprint(w, `{"success":true,"token":"tok123"}`)
		case "/site/login/cas-login":
			if got := r.URL.Query().Get("token"); got != "tok123" {
				t.Errorf("activation token = %q, want tok123", got)
			}
			fmt.Fprint(w, "ok")
		default:
			t.Errorf("unexpected auth request: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	var logins int32
	srv := httptest.NewServer(loginHandler(t, &logins))
	defer srv.Close()

	store := &memStore{}
	c := NewClient(testPortalConfig(srv.URL), store)
	c.SetCredentials("2100012345", "hunter2")

	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !c.Authenticated() {
		t.Error("client not marked authenticated")
	}
	if store.puts != 1 || store.username != "2100012345" {
		t.Errorf("credentials not persisted: puts=%d username=%q", store.puts, store.username)
	}
}

func TestAuthenticateRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false}`)
	}))
	defer srv.Close()

	c := NewClient(testPortalConfig(srv.URL), nil)
	c.SetCredentials("2100012345", "wrong")

	err := c.Authenticate(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if c.Authenticated() {
		t.Error("client marked authenticated after refusal")
	}
}

func TestAuthenticateWithoutCredentials(t *testing.T) {
	c := NewClient(testPortalConfig("http://127.0.0.1:0"), nil)
	if err := c.Authenticate(context.Background()); !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
}

const listPageBody = `{
	"list": [
		{"id": 2, "name": "燕园-新校区", "table": {"83": [
			{"time_id": 101, "date": "2025-03-10", "yaxis": "08:40", "row": {"margin": 5}},
			{"time_id": 102, "date": "2025-03-10", "yaxis": "09:40", "row": {"margin": 0}}
		]}},
		{"id": 6, "name": "新校区-燕园", "table": {"91": [
			{"time_id": 201, "date": "2025-03-10", "yaxis": "18:10", "row": {"margin": 3}}
		]}}
	]
}`

// authedClient returns a client whose session is already live.
func authedClient(srvURL string) *Client {
	c := NewClient(testPortalConfig(srvURL), nil)
	c.SetCredentials("2100012345", "hunter2")
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
	return c
}

func TestListResources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/site/reservation/list-page" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("hall_id") != "1" || q.Get("page_size") != "0" || q.Get("time") != "2025-03-10" {
			t.Errorf("unexpected query: %v", q)
		}
		writeEnvelope(w, listPageBody)
	}))
	defer srv.Close()

	c := authedClient(srv.URL)
	resources, err := c.ListResources(context.Background(), "2025-03-10")
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}

	if len(resources) != 2 {
		t.Fatalf("got %d resources, want 2", len(resources))
	}
	first := resources[0]
	if first.ID != 2 || len(first.Slots) != 2 {
		t.Fatalf("first resource = %+v", first)
	}
	if s := first.Slots[0]; s.SlotID != 101 || s.StartTime != "08:40" || s.Margin != 5 {
		t.Errorf("first slot = %+v", s)
	}
}

func TestSessionExpiryTriggersOneReauth(t *testing.T) {
	var logins int32
	var listCalls int32
	login := loginHandler(t, &logins)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/site/reservation/list-page" {
			// First call: the HTML login page of a dead session.
			if atomic.AddInt32(&listCalls, 1) == 1 {
				fmt.Fprint(w, "<html><body>login</body></html>")
				return
			}
			writeEnvelope(w, listPageBody)
			return
		}
		login(w, r)
	}))
	defer srv.Close()

	c := authedClient(srv.URL)
	resources, err := c.ListResources(context.Background(), "2025-03-10")
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("got %d resources after re-auth", len(resources))
	}
	if atomic.LoadInt32(&logins) != 1 {
		t.Errorf("logins = %d, want exactly 1 silent re-auth", logins)
	}
	if atomic.LoadInt32(&listCalls) != 2 {
		t.Errorf("list calls = %d, want 2", listCalls)
	}
}

func TestEnvelopeRejectionNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"e":13,"m":"时间段已满","d":""}`)
	}))
	defer srv.Close()

	c := authedClient(srv.URL)
	err := c.Launch(context.Background(), 2, "2025-03-10", 101)
	if !errors.Is(err, ErrRemoteRejection) {
		t.Fatalf("err = %v, want ErrRemoteRejection", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1; rejections are authoritative", calls)
	}
}

func TestTransportErrorRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// Drop the connection mid-request to simulate a transport
			// failure. The next attempt succeeds.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Close()
			return
		}
		writeEnvelope(w, `{"code":"QR","name":""}`)
	}))
	defer srv.Close()

	c := authedClient(srv.URL)
	payload, err := c.TempQRCode(context.Background(), 2, "08:40")
	if err != nil {
		t.Fatalf("TempQRCode: %v", err)
	}
	if payload.Code != "QR" {
		t.Errorf("code = %q", payload.Code)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
}

func TestNetworkErrorAfterRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := authedClient(srv.URL)
	_, err := c.MyReservations(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestUnexpectedStatusIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := authedClient(srv.URL)
	err := c.CancelReservation(context.Background(), 9001, 77)
	if !errors.Is(err, ErrRemoteRejection) {
		t.Fatalf("err = %v, want ErrRemoteRejection", err)
	}
}

func TestEnsureSessionLoadsStoredCredentials(t *testing.T) {
	var logins int32
	srv := httptest.NewServer(loginHandler(t, &logins))
	defer srv.Close()

	store := &memStore{username: "2100012345", secret: "hunter2"}
	c := NewClient(testPortalConfig(srv.URL), store)

	if err := c.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if c.Username() != "2100012345" {
		t.Errorf("username = %q, want the stored one", c.Username())
	}
	if atomic.LoadInt32(&logins) != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
}

func TestResourceTableShapeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, `{"list":[{"id":2,"name":"x","table":{}}]}`)
	}))
	defer srv.Close()

	c := authedClient(srv.URL)
	_, err := c.ListResources(context.Background(), "2025-03-10")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode for empty table", err)
	}
}
