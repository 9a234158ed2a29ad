package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/roamorg/internal/commands"
	"github.com/starford/roamorg/internal/testutil"
)

const inbox = "#+title: Inbox\n* [[id:n1][Note one]]\nbody\n* Plain\n"

// testEnv sets up a temp roam directory, index, runner, and router.
// An empty authToken means auth is disabled.
func testEnv(t *testing.T, authToken string) (*testutil.Env, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) (*testutil.Env, http.Handler) {
	t.Helper()
	env := testutil.NewEnv(t, map[string]string{
		"fleeting/n1.org": testutil.OrgNode("n1", "Note one", ":idea:", ""),
		"inbox.org":       inbox,
	}, nil)
	router := NewRouter(env.Runner, env.Store, authToken, sseHandler)
	return env, router
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) commands.Status {
	t.Helper()
	var st commands.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v (body %s)", err, w.Body.String())
	}
	return st
}

func TestRelocateWhileDisabled(t *testing.T) {
	env, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/relocate", PositionRequest{At: "inbox.org:2"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body = %s", w.Code, w.Body.String())
	}
	st := decodeStatus(t, w)
	if st.Level != commands.LevelWarn || !strings.Contains(st.Message, "disabled") {
		t.Errorf("status = %+v", st)
	}
	if env.Read(t, "inbox.org") != inbox {
		t.Error("inbox changed while disabled")
	}
}

func TestRelocateAfterEnable(t *testing.T) {
	env, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/mode/enable", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("enable = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPost, "/relocate", PositionRequest{File: "inbox.org", Line: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("relocate = %d, body = %s", w.Code, w.Body.String())
	}
	if st := decodeStatus(t, w); st.Command != commands.CmdRelocate {
		t.Errorf("command = %q", st.Command)
	}
	if got := env.Read(t, "permanent/n1/n1.org"); !strings.Contains(got, "#+filetags: :note:") {
		t.Errorf("relocated node = %q", got)
	}
	if strings.Contains(env.Read(t, "inbox.org"), "Note one") {
		t.Error("entry was not cut from the inbox")
	}
}

func TestRelocateBadInput(t *testing.T) {
	_, router := testEnv(t, "")
	do(t, router, http.MethodPost, "/mode/enable", ModeRequest{AnyDir: true})

	req := httptest.NewRequest(http.MethodPost, "/relocate", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/relocate", PositionRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing position = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/delete", PositionRequest{At: "inbox.org:4"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("headline without link = %d, want 422", w.Code)
	}
	w = do(t, router, http.MethodPost, "/delete", PositionRequest{At: "inbox.org:1"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("not a headline = %d, want 422", w.Code)
	}
}

func TestModeEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	if st := decodeStatus(t, do(t, router, http.MethodGet, "/mode", nil)); !strings.Contains(st.Message, "disabled") {
		t.Errorf("initial mode = %q", st.Message)
	}
	if st := decodeStatus(t, do(t, router, http.MethodPost, "/mode/toggle", nil)); !strings.Contains(st.Message, "enabled") {
		t.Errorf("toggle = %q", st.Message)
	}
	if st := decodeStatus(t, do(t, router, http.MethodPost, "/mode/disable", nil)); !strings.Contains(st.Message, "disabled") {
		t.Errorf("disable = %q", st.Message)
	}
	if w := do(t, router, http.MethodPost, "/mode/explode", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown action = %d, want 404", w.Code)
	}
}

func TestValidateReportsMissingDirectories(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/validate", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("validate = %d, want 422", w.Code)
	}
	if st := decodeStatus(t, w); !strings.Contains(st.Message, "FAIL permanent_dir") {
		t.Errorf("message = %q", st.Message)
	}

	if w := do(t, router, http.MethodPost, "/mkdirs", nil); w.Code != http.StatusOK {
		t.Fatalf("mkdirs = %d", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/top-index", nil); w.Code != http.StatusOK {
		t.Fatalf("top-index = %d", w.Code)
	}
}

func TestGetNode(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/nodes/n1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get node = %d", w.Code)
	}
	if st := decodeStatus(t, w); !strings.Contains(st.Message, "Note one") {
		t.Errorf("message = %q", st.Message)
	}

	if w := do(t, router, http.MethodGet, "/nodes/ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing node = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search?q=idea&limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	if st := decodeStatus(t, w); !strings.HasPrefix(st.Message, "1 result(s)") {
		t.Errorf("message = %q", st.Message)
	}

	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestSyncEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodPost, "/sync", nil); w.Code != http.StatusOK {
		t.Errorf("sync = %d", w.Code)
	}
}

func TestServeFile(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/files/inbox.org", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("file = %d", w.Code)
	}
	if w.Body.String() != inbox {
		t.Errorf("body = %q", w.Body.String())
	}

	if w := do(t, router, http.MethodGet, "/files/fleeting%2Fn1.org", nil); w.Code != http.StatusOK {
		t.Errorf("encoded path = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/files/missing.org", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing file = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/files/notes.txt", nil); w.Code != http.StatusBadRequest {
		t.Errorf("non-org file = %d, want 400", w.Code)
	}
}

func TestRequireBearer(t *testing.T) {
	_, router := testEnv(t, "secret")

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer secret", http.StatusOK},
		{"lowercase scheme", "bearer secret", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"prefix of token", "Bearer secre", http.StatusUnauthorized},
		{"basic scheme", "Basic c2VjcmV0", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/mode", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

// stubSSE writes headers and blocks until the request context is done.
var stubSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, "secret", stubSSE)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, "tok", stubSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
