package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestGetIdempotencyKey_IsReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("unset key reported as %q/%v", k, ok)
	}
	if IsReplay(c) {
		t.Fatalf("unset replay reported true")
	}

	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must be absent")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay flag must be false")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("replay flag not honored")
	}
}

func TestIdempotencyScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	got := map[string]string{}
	r.POST("/complaints", func(c *gin.Context) { got["create"] = IdempotencyScope(c) })
	r.POST("/complaints/:id/comments", func(c *gin.Context) { got["comment"] = IdempotencyScope(c) })

	for _, path := range []string{"/complaints", "/complaints/c42/comments"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}
	if got["create"] != ScopeComplaints || got["comment"] != ScopeCommentsPrefix+"c42" {
		t.Fatalf("scopes = %v", got)
	}
}

// lookupCall records what the validator asked the store.
type lookupCall struct {
	scope, key string
	now        time.Time
}

type fakeLookup struct {
	known map[string]bool // scope|key
	err   error
	calls []lookupCall
}

func (f *fakeLookup) lookup(_ context.Context, scope, key string, now time.Time) (bool, error) {
	f.calls = append(f.calls, lookupCall{scope, key, now})
	return f.known[scope+"|"+key], f.err
}

// outcome is what the downstream handler observed.
type outcome struct {
	ran    bool
	key    string
	replay bool
	bypass bool
}

func validatedRouter(opts IdempotencyOptions, lookup IdempotencyLookup, seen *outcome) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		k, _ := GetIdempotencyKey(c)
		*seen = outcome{ran: true, key: k, replay: IsReplay(c), bypass: IsRateBypass(c)}
		c.Status(http.StatusOK)
	}
	r.POST("/complaints", h)
	r.POST("/complaints/:id/comments", h)
	r.PUT("/complaints/:id/status", h)
	return r
}

func TestIdempotencyValidator(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	store := &fakeLookup{known: map[string]bool{
		"complaints|k-seen":     true,
		"comments:c1|k-comment": true,
	}}

	cases := []struct {
		name      string
		method    string
		path      string
		key       string
		wantCode  int
		want      outcome
		wantScope string // "" means no lookup
	}{
		{"no header", http.MethodPost, "/complaints", "", 200, outcome{ran: true}, ""},
		{"fresh key", http.MethodPost, "/complaints", "k-new", 200, outcome{ran: true, key: "k-new"}, ScopeComplaints},
		{"seen key", http.MethodPost, "/complaints", "k-seen", 200, outcome{ran: true, key: "k-seen", replay: true, bypass: true}, ScopeComplaints},
		{"comment scope hit", http.MethodPost, "/complaints/c1/comments", "k-comment", 200, outcome{ran: true, key: "k-comment", replay: true, bypass: true}, "comments:c1"},
		{"same key other complaint", http.MethodPost, "/complaints/c2/comments", "k-comment", 200, outcome{ran: true, key: "k-comment"}, "comments:c2"},
		{"put skips lookup", http.MethodPut, "/complaints/c1/status", "k-seen", 200, outcome{ran: true, key: "k-seen"}, ""},
		{"bad characters", http.MethodPost, "/complaints", "has space", 400, outcome{}, ""},
		{"too long", http.MethodPost, "/complaints", strings.Repeat("a", 201), 400, outcome{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store.calls = nil
			var seen outcome
			r := validatedRouter(IdempotencyOptions{Now: func() time.Time { return fixed }}, store.lookup, &seen)

			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.key != "" {
				req.Header.Set(HeaderIdempotencyKey, tc.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("code = %d; want %d", w.Code, tc.wantCode)
			}
			if seen != tc.want {
				t.Fatalf("handler saw %+v; want %+v", seen, tc.want)
			}
			switch {
			case tc.wantScope == "" && len(store.calls) != 0:
				t.Fatalf("unexpected lookup %+v", store.calls)
			case tc.wantScope != "":
				if len(store.calls) != 1 || store.calls[0].scope != tc.wantScope || !store.calls[0].now.Equal(fixed) {
					t.Fatalf("lookup calls = %+v", store.calls)
				}
			}
			if tc.wantCode == http.StatusBadRequest {
				var body map[string]string
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("400 body: %v", err)
				}
				if body["code"] != "bad_idempotency_key" || body["request_id"] != w.Header().Get(requestIDHeader) {
					t.Fatalf("400 body = %v", body)
				}
			}
		})
	}
}

func TestIdempotencyValidator_CustomRules(t *testing.T) {
	var seen outcome
	r := validatedRouter(IdempotencyOptions{MaxLen: 4, Pattern: regexp.MustCompile(`^[0-9]+$`)}, nil, &seen)

	for key, code := range map[string]int{"1234": 200, "12345": 400, "12a": 400} {
		req := httptest.NewRequest(http.MethodPost, "/complaints", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != code {
			t.Errorf("key %q = %d; want %d", key, w.Code, code)
		}
	}
}

func TestIdempotencyValidator_LookupErrorProceedsAsFresh(t *testing.T) {
	buf := captureLogger(t)
	store := &fakeLookup{err: errors.New("store down")}
	var seen outcome
	r := validatedRouter(IdempotencyOptions{}, store.lookup, &seen)

	req := httptest.NewRequest(http.MethodPost, "/complaints", nil)
	req.Header.Set(HeaderIdempotencyKey, "k1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || seen.replay || seen.bypass || seen.key != "k1" {
		t.Fatalf("code=%d seen=%+v", w.Code, seen)
	}
	if line := findLine(logLines(buf), "idempotency lookup failed"); line == nil || line["scope"] != ScopeComplaints {
		t.Fatalf("lookup failure not logged: %s", buf.String())
	}
}
