package meshapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/reseda/meshd/internal/externalops"
	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/registrar"
)

type fakeRegisterer struct {
	info meshnode.Public
	err  error
}

func (f *fakeRegisterer) Register(ctx context.Context, ip, authKey string) (meshnode.Public, error) {
	return f.info, f.err
}

func newTestRouter(reg registerer) chi.Router {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h := &Handler{registrar: reg, logger: logger}
	router := chi.NewRouter()
	router.Mount("/", h.Routes())
	return router
}

func TestEcho(t *testing.T) {
	router := newTestRouter(&fakeRegisterer{})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRegisterSuccess(t *testing.T) {
	want := meshnode.Public{ID: "nz-1111", IP: "1.2.3.4"}
	router := newTestRouter(&fakeRegisterer{info: want})

	body := `{"auth":"secret"}`
	r := httptest.NewRequest(http.MethodPost, "/register/1.2.3.4", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var got meshnode.Public
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("id = %s, want %s", got.ID, want.ID)
	}
}

func TestRegisterForbidden(t *testing.T) {
	router := newTestRouter(&fakeRegisterer{err: registrar.ErrForbidden})

	body := `{"auth":"wrong"}`
	r := httptest.NewRequest(http.MethodPost, "/register/1.2.3.4", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRegisterTransientFailure(t *testing.T) {
	router := newTestRouter(&fakeRegisterer{err: errWrap{externalops.ErrTransient}})

	body := `{"auth":"secret"}`
	r := httptest.NewRequest(http.MethodPost, "/register/1.2.3.4", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// errWrap lets tests construct an error that wraps externalops.ErrTransient
// without importing the registrar's own wrapping (fmt.Errorf with %w).
type errWrap struct{ err error }

func (e errWrap) Error() string { return "registering: " + e.err.Error() }
func (e errWrap) Unwrap() error { return e.err }

func TestRegisterMissingAuthField(t *testing.T) {
	router := newTestRouter(&fakeRegisterer{})

	r := httptest.NewRequest(http.MethodPost, "/register/1.2.3.4", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}
