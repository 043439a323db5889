package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shortontech/botgate/internal/classify"
	"github.com/shortontech/botgate/internal/consent"
	"github.com/shortontech/botgate/internal/event"
	"github.com/shortontech/botgate/internal/metrics"
	"github.com/shortontech/botgate/internal/render"
	"github.com/shortontech/botgate/pkg/config"
)

const (
	chromeUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	redirectURL = "https://dest.example/next"
)

type testEnv struct {
	Env
	store  *consent.MemoryStore
	events *[]event.Event
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	r, err := render.New(render.Config{RedirectURL: redirectURL, Content: render.DefaultContent()})
	if err != nil {
		t.Fatal(err)
	}
	store := consent.NewMemoryStore()
	m := metrics.NewMetrics()
	events := &[]event.Event{}
	return testEnv{
		Env: Env{
			Cfg: config.Config{
				MaxBodyBytes:     1024,
				RedirectURL:      redirectURL,
				ConsentKeyPrefix: "botgate_",
			},
			Classifier: classify.New(classify.Config{}),
			Renderer:   r,
			Gate:       consent.NewGate(store, redirectURL, m, nil),
			Emit:       func(e event.Event) { *events = append(*events, e) },
			Metrics:    m,
		},
		store:  store,
		events: events,
	}
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// formPost is what the no-script consent buttons submit.
func formPost(path string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func cookieValue(w *httptest.ResponseRecorder, name string) string {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
