// Package admin keeps the admin portal's login state and reads orders for it.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"worldpay-checkout/models"
	"worldpay-checkout/services/bridge"
)

const (
	DefaultPageSize = 5
	MaxPageSize     = 100
	loginComplete   = "payment/login-complete/"
)

var ErrNotLoggedIn = errors.New("admin is not logged in")

type Backend interface {
	WhoAmI(ctx context.Context) (*models.WhoAmIResponse, error)
	ListPayments(ctx context.Context, offset, limit int) ([]models.PaymentRecord, error)
	GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error)
}

// Session is one admin browser's view of the backend login.
type Session struct {
	id      string
	backend Backend
	apiRoot string
	relay   func(target string) string

	wg sync.WaitGroup

	mu      sync.Mutex
	user    *string
	popup   string
	message string
}

func NewSession(id string, backend Backend, apiRoot string) *Session {
	if !strings.HasSuffix(apiRoot, "/") {
		apiRoot += "/"
	}
	return &Session{id: id, backend: backend, apiRoot: apiRoot}
}

func (s *Session) ID() string {
	return s.id
}

// RelayThrough makes the popup URLs point at a host relay for the backend
// pages, so the login lands in this session's backend cookie jar.
func (s *Session) RelayThrough(relay func(target string) string) {
	s.relay = relay
}

// LoginURL is the popup page that logs in and then posts a login message back.
func (s *Session) LoginURL() string {
	return s.mapURL(s.apiRoot + "login/auth/?next=" + url.QueryEscape(s.apiRoot+loginComplete))
}

func (s *Session) LogoutURL() string {
	return s.mapURL(s.apiRoot + "login/logout/?next=" + url.QueryEscape("/"+loginComplete))
}

func (s *Session) mapURL(target string) string {
	if s.relay == nil {
		return target
	}
	return s.relay(target)
}

// Wait blocks until refreshes started by login messages finish.
func (s *Session) Wait() {
	s.wg.Wait()
}

// OpenPopup records the login or logout popup the client is showing.
func (s *Session) OpenPopup(logout bool) string {
	target := s.LoginURL()
	if logout {
		target = s.LogoutURL()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.popup = target
	return target
}

// Refresh asks the backend who is logged in.
func (s *Session) Refresh(ctx context.Context) (*string, error) {
	who, err := s.backend.WhoAmI(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh admin login: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = who.User
	s.message = ""
	return who.User, nil
}

// Deliver handles login messages from the login and logout popups. The backend
// is asked who is logged in off the listener's goroutine.
func (s *Session) Deliver(ctx context.Context, msg bridge.Message) {
	login, ok := msg.(bridge.LoginMessage)
	if !ok {
		return
	}

	s.mu.Lock()
	s.popup = ""
	loggedIn := s.user != nil
	if !loggedIn && !login.Successful {
		s.message = "Login failed"
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Refresh(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[Admin: %s] %v", s.id, err)
			s.mu.Lock()
			s.message = "Something went wrong"
			s.mu.Unlock()
		}
	}()
}

type State struct {
	User    *string `json:"user"`
	Popup   string  `json:"popup,omitempty"`
	Message string  `json:"message,omitempty"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{User: s.user, Popup: s.popup, Message: s.message}
}

type Page struct {
	Orders  []models.PaymentRecord `json:"orders"`
	Offset  int                    `json:"offset"`
	Limit   int                    `json:"limit"`
	HasPrev bool                   `json:"has_prev"`
	HasNext bool                   `json:"has_next"`
}

// Orders reads one page of payments. A full page means there may be more.
func (s *Session) Orders(ctx context.Context, offset, limit int) (*Page, error) {
	if err := s.RequireLogin(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	orders, err := s.backend.ListPayments(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	if orders == nil {
		orders = []models.PaymentRecord{}
	}
	return &Page{
		Orders:  orders,
		Offset:  offset,
		Limit:   limit,
		HasPrev: offset > 0,
		HasNext: len(orders) == limit,
	}, nil
}

func (s *Session) Order(ctx context.Context, id string) (*models.PaymentRecord, error) {
	if err := s.RequireLogin(); err != nil {
		return nil, err
	}
	return s.backend.GetPayment(ctx, id)
}

// RequireLogin returns ErrNotLoggedIn until the backend reports a user.
func (s *Session) RequireLogin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return ErrNotLoggedIn
	}
	return nil
}
