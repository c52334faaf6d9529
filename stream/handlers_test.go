package stream

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"gumboard-api/domain"
)

type stubAuth struct {
	err error

	mu       sync.Mutex
	lastSeen string
}

func (s *stubAuth) seen() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *stubAuth) ActorFromAuthHeader(h string) (domain.User, error) {
	s.mu.Lock()
	s.lastSeen = h
	s.mu.Unlock()
	if s.err != nil {
		return domain.User{}, s.err
	}
	return domain.User{ID: "u1"}, nil
}

func TestStreamBoardRejectsUnauthenticated(t *testing.T) {
	e := echo.New()
	Register(e, NewBroker(), &stubAuth{err: errors.New("missing authorization header")})

	req := httptest.NewRequest(http.MethodGet, "/api/boards/b1/stream", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStreamBoardDeliversUpdates(t *testing.T) {
	broker := NewBroker()
	auth := &stubAuth{}
	e := echo.New()
	Register(e, broker, auth)
	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/boards/b1/stream?token=abc", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if seen := auth.seen(); seen != "Bearer abc" {
		t.Fatalf("query token not used, saw %q", seen)
	}

	deadline := time.Now().Add(2 * time.Second)
	for broker.Subscribers("b1") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	broker.Publish("b1", []byte(`{"boardId":"b1","noteId":"n1"}`))

	lines := make(chan string, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed early, got %v", got)
			}
			if line != "" {
				got = append(got, line)
			}
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != "event: note" || !strings.Contains(got[1], `"noteId":"n1"`) {
		t.Fatalf("unexpected event %v", got)
	}

	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for broker.Subscribers("b1") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream did not unsubscribe after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
