package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"worldpay-checkout/models"
)

type observation struct {
	operation, outcome string
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingObserver) ObserveBackendRequest(operation, outcome string, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{operation, outcome})
}

func TestClient_GetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payment/abc/":
			json.NewEncoder(w).Encode(models.PaymentRecord{ID: "abc", State: models.PaymentStateOpen, Environment: models.EnvironmentLive})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := NewClient(srv.URL, 0, obs).ForSession()

	record, err := c.GetPayment(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ID != "abc" || record.State != models.PaymentStateOpen {
		t.Errorf("unexpected record %+v", record)
	}

	if _, err := c.GetPayment(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if len(obs.seen) != 2 || obs.seen[0] != (observation{"get_payment", "ok"}) || obs.seen[1].outcome != "error" {
		t.Errorf("unexpected observations %+v", obs.seen)
	}
}

func TestClient_SubmitWorldpay(t *testing.T) {
	var got models.AttemptPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payment/worldpay/abc/" {
			http.Error(w, "bad route", http.StatusBadRequest)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(models.SubmissionReply{State: models.ReplyThreeDS, Frame: "https://pay.example/3ds/abc/"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0, nil)
	reply, err := c.SubmitWorldpay(context.Background(), "abc", &models.AttemptPayload{Accepts: "*/*", Email: "jo@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.State != models.ReplyThreeDS || reply.Frame == "" {
		t.Errorf("unexpected reply %+v", reply)
	}
	if got.Email != "jo@example.com" {
		t.Errorf("backend did not receive payload, got %+v", got)
	}
}

func TestClient_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, nil)
	if _, err := c.VerifyAppleMerchant(context.Background(), "https://apple-pay-gateway.apple.com/paymentservices/startSession"); !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("expected ErrUnexpectedStatus, got %v", err)
	}
}

func TestClient_SessionCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payment/abc/":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
			json.NewEncoder(w).Encode(models.PaymentRecord{ID: "abc"})
		case "/login/whoami/":
			var user *string
			if c, err := r.Cookie("session"); err == nil {
				v := "user-" + c.Value
				user = &v
			}
			json.NewEncoder(w).Encode(models.WhoAmIResponse{User: user})
		}
	}))
	defer srv.Close()

	base := NewClient(srv.URL, 0, nil)
	first := base.ForSession()
	second := base.ForSession()

	if _, err := first.GetPayment(context.Background(), "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	who, err := first.WhoAmI(context.Background())
	if err != nil || who.User == nil || *who.User != "user-s1" {
		t.Fatalf("expected session cookie to be replayed, got %+v %v", who, err)
	}
	who, err = second.WhoAmI(context.Background())
	if err != nil || who.User != nil {
		t.Errorf("cookies leaked between sessions: %+v %v", who, err)
	}
}

func TestClient_ListPayments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/" || r.URL.Query().Get("offset") != "20" || r.URL.Query().Get("limit") != "10" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode([]models.PaymentRecord{{ID: "a"}, {ID: "b"}})
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL, 0, nil).ListPayments(context.Background(), 20, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestClient_RelayKeepsLoginCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/auth/":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "staff", Path: "/"})
			http.Redirect(w, r, r.URL.Query().Get("next"), http.StatusFound)
		case "/login/whoami/":
			var user *string
			if c, err := r.Cookie("session"); err == nil {
				user = &c.Value
			}
			json.NewEncoder(w).Encode(models.WhoAmIResponse{User: user})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, nil).ForSession()
	next := url.Values{"next": {srv.URL + "/payment/login-complete/"}}
	resp, err := c.Relay(context.Background(), http.MethodGet, "login/auth/", next.Encode(), nil, http.Header{"Accept": {"text/html"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected the redirect to be returned, got %d", resp.StatusCode)
	}
	if got := c.RelayURL("/relay/", resp.Header.Get("Location")); got != "/relay/payment/login-complete/" {
		t.Errorf("unexpected relayed location %q", got)
	}

	who, err := c.WhoAmI(context.Background())
	if err != nil || who.User == nil || *who.User != "staff" {
		t.Errorf("expected relayed login cookie in the jar, got %+v %v", who, err)
	}
}

func TestClient_RelayRejectsOtherPaths(t *testing.T) {
	c := NewClient("https://payments.example.com/", 0, nil)
	for _, target := range []string{"payments/", "login/../payments/", "apple-merchant-verification/", ""} {
		if _, err := c.Relay(context.Background(), http.MethodGet, target, "", nil, nil); !errors.Is(err, ErrRelayForbidden) {
			t.Errorf("%q: expected ErrRelayForbidden, got %v", target, err)
		}
	}
}

func TestClient_RelayURL(t *testing.T) {
	c := NewClient("https://payments.example.com/", 0, nil)
	tests := []struct {
		target string
		want   string
	}{
		{
			"https://payments.example.com/login/auth/?next=https%3A%2F%2Fpayments.example.com%2Fpayment%2Flogin-complete%2F",
			"/relay/login/auth/?next=https%3A%2F%2Fpayments.example.com%2Fpayment%2Flogin-complete%2F",
		},
		{
			"https://payments.example.com/login/logout/?next=%2Fpayment%2Flogin-complete%2F",
			"/relay/login/logout/?next=%2Fpayment%2Flogin-complete%2F",
		},
		{"/payment/login-complete/", "/relay/payment/login-complete/"},
		{"https://accounts.example.org/o/oauth2/auth?client_id=x", "https://accounts.example.org/o/oauth2/auth?client_id=x"},
	}
	for _, tt := range tests {
		if got := c.RelayURL("/relay/", tt.target); got != tt.want {
			t.Errorf("RelayURL(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}
