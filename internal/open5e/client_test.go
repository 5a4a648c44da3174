package open5e_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/tomescry/internal/open5e"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*open5e.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := open5e.New(srv.URL+"/",
		open5e.WithBackoff(time.Millisecond),
	)
	return c, srv
}

func TestGetRetriesOnServerErrors(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})

	body, err := c.Get(context.Background(), srv.URL+"/monsters/goblin/")
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("Get body = %q, want success payload", body)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestGetTerminalStatus(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "no such monster", http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), srv.URL+"/monsters/missing/")
	if err == nil {
		t.Fatal("Get: expected error for 404")
	}

	var statusErr *open5e.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Get error = %T, want *open5e.StatusError", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", statusErr.StatusCode)
	}
	if !strings.Contains(statusErr.Body, "no such monster") {
		t.Fatalf("Body = %q, want excerpt carried", statusErr.Body)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want no retry on 404", got)
	}
}

func TestGetRetriesExhausted(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "dead", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := open5e.New(srv.URL+"/",
		open5e.WithBackoff(time.Millisecond),
		open5e.WithRetries(3),
	)

	_, err := c.Get(context.Background(), srv.URL+"/spells/")
	if err == nil {
		t.Fatal("Get: expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "retries exhausted") {
		t.Fatalf("error = %q, want retries exhausted", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want exactly 3", got)
	}
}

func TestGetHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow", http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, srv.URL+"/monsters/")
	if err == nil {
		t.Fatal("Get: expected error with cancelled context")
	}
}

func TestRoot(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"monsters":"https://api.example/monsters/","manifest":"https://api.example/manifest/"}`)
	})

	root, err := c.Root(context.Background())
	if err != nil {
		t.Fatalf("Root: unexpected error: %v", err)
	}
	if root["monsters"] != "https://api.example/monsters/" {
		t.Fatalf("Root = %v, want monsters listing URL", root)
	}
}

func TestForEachItemPagination(t *testing.T) {
	t.Parallel()

	var sawLimit atomic.Bool
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			if r.URL.Query().Get("limit") == "50" {
				sawLimit.Store(true)
			}
			resp := map[string]any{
				"count": 3,
				"next":  srv.URL + "/monsters/?page=2&limit=50",
				"results": []map[string]any{
					{"slug": "goblin"},
					{"slug": "orc"},
				},
			}
			json.NewEncoder(w).Encode(resp)
		case "2":
			resp := map[string]any{
				"count":   3,
				"next":    nil,
				"results": []map[string]any{{"slug": "zombie"}},
			}
			json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := open5e.New(srv.URL+"/", open5e.WithBackoff(time.Millisecond))

	var slugs []string
	err := c.ForEachItem(context.Background(), srv.URL+"/monsters/", 50, func(item map[string]any) error {
		slugs = append(slugs, item["slug"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachItem: unexpected error: %v", err)
	}

	want := []string{"goblin", "orc", "zombie"}
	if len(slugs) != len(want) {
		t.Fatalf("slugs = %v, want %v", slugs, want)
	}
	for i := range want {
		if slugs[i] != want[i] {
			t.Fatalf("slugs[%d] = %q, want %q", i, slugs[i], want[i])
		}
	}
	if !sawLimit.Load() {
		t.Fatal("first page request did not carry the limit parameter")
	}
}

func TestForEachItemBareArray(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"slug":"air"},{"slug":"fire"}]`)
	})

	var slugs []string
	err := c.ForEachItem(context.Background(), srv.URL+"/planes/", 0, func(item map[string]any) error {
		slugs = append(slugs, item["slug"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachItem: unexpected error: %v", err)
	}
	if len(slugs) != 2 || slugs[0] != "air" || slugs[1] != "fire" {
		t.Fatalf("slugs = %v, want [air fire]", slugs)
	}
}

func TestForEachItemStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count":2,"next":null,"results":[{"slug":"a"},{"slug":"b"}]}`)
	})

	boom := errors.New("stop here")
	var seen int
	err := c.ForEachItem(context.Background(), srv.URL+"/feats/", 0, func(item map[string]any) error {
		seen++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ForEachItem error = %v, want callback error", err)
	}
	if seen != 1 {
		t.Fatalf("seen = %d, want walk stopped after first item", seen)
	}
}

func TestForEachItemKeepsExistingQuery(t *testing.T) {
	t.Parallel()

	var gotQuery atomic.Value
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		fmt.Fprint(w, `{"count":0,"next":null,"results":[]}`)
	})

	err := c.ForEachItem(context.Background(), srv.URL+"/spells/?document__slug=wotc-srd", 25, func(map[string]any) error {
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachItem: unexpected error: %v", err)
	}
	if q := gotQuery.Load().(string); strings.Contains(q, "limit=") {
		t.Fatalf("query = %q, want no limit appended to a parameterised URL", q)
	}
}
