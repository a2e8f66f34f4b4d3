package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/okian/rsvp/internal/adapters/http/api"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	mu        sync.Mutex
	submitted []model.Guest
	submitErr error
	panicOn   bool
	items     []model.Guest
	listErr   error
	filter    model.Filter
	stats     model.Stats
	pingErr   error
}

func (m *mockDeps) Submit(_ context.Context, g model.Guest) (model.Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn {
		panic("boom")
	}
	if m.submitErr != nil {
		return model.Guest{}, m.submitErr
	}
	g.ID = int64(len(m.submitted) + 1)
	m.submitted = append(m.submitted, g)
	return g, nil
}

func (m *mockDeps) List(_ context.Context, f model.Filter) ([]model.Guest, error) {
	m.filter = f
	return m.items, m.listErr
}

func (m *mockDeps) Stats(context.Context) (model.Stats, error) { return m.stats, m.listErr }
func (m *mockDeps) Ping(context.Context) error                 { return m.pingErr }

func do(h http.Handler, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for _, f := range mutate {
		f(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestPostRSVP(t *testing.T) {
	Convey("Given the API handler", t, func() {
		deps := &mockDeps{}
		h := api.NewServer(deps, api.WithLogger(logger.NewNop()), api.WithMaxBodyBytes(256)).Handler(context.Background())

		Convey("When a full RSVP is posted", func() {
			w := do(h, http.MethodPost, "/rsvp", `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","number":"555-0100","extra":1}`)

			Convey("Then it is stored and acknowledged", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["message"], ShouldEqual, "RSVP received")
				So(deps.submitted, ShouldHaveLength, 1)
				g := deps.submitted[0]
				So(model.Text(g.FirstName), ShouldEqual, "Ada")
				So(model.Text(g.LastName), ShouldEqual, "Lovelace")
				So(model.Text(g.Email), ShouldEqual, "ada@example.com")
				So(model.Text(g.Number), ShouldEqual, "555-0100")
			})
		})

		Convey("When fields are missing or null", func() {
			w := do(h, http.MethodPost, "/rsvp", `{"firstName":"Ada","email":null}`)

			Convey("Then they are passed on as NULL", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				g := deps.submitted[0]
				So(g.LastName, ShouldBeNil)
				So(g.Email, ShouldBeNil)
				So(g.Number, ShouldBeNil)
			})
		})

		Convey("When an empty object is posted", func() {
			w := do(h, http.MethodPost, "/rsvp", `{}`)

			Convey("Then an all-NULL row is stored", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.submitted, ShouldHaveLength, 1)
			})
		})

		Convey("When phone is sent instead of number", func() {
			w := do(h, http.MethodPost, "/rsvp", `{"phone":"555-0199"}`)

			Convey("Then it is stored as the number", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(model.Text(deps.submitted[0].Number), ShouldEqual, "555-0199")
			})
		})

		Convey("When both phone and number are sent", func() {
			_ = do(h, http.MethodPost, "/rsvp", `{"phone":"1","number":"2"}`)

			Convey("Then number wins", func() {
				So(model.Text(deps.submitted[0].Number), ShouldEqual, "2")
			})
		})

		Convey("When scalar values are not strings", func() {
			w := do(h, http.MethodPost, "/rsvp", `{"number":5550100,"firstName":true}`)

			Convey("Then they are stored as text", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(model.Text(deps.submitted[0].Number), ShouldEqual, "5550100")
				So(model.Text(deps.submitted[0].FirstName), ShouldEqual, "true")
			})
		})

		Convey("When the body is malformed", func() {
			for _, body := range []string{`{"firstName":`, ``, `[]`, `null`, `"x"`, `{"email":{"a":1}}`} {
				w := do(h, http.MethodPost, "/rsvp", body)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["error"], ShouldNotBeEmpty)
			}

			Convey("Then nothing reaches the store", func() {
				So(deps.submitted, ShouldBeEmpty)
			})
		})

		Convey("When a valid object is followed by more input", func() {
			for _, body := range []string{`{"firstName":"a"} trailing-garbage`, `{"firstName":"a"}{"firstName":"b"}`} {
				w := do(h, http.MethodPost, "/rsvp", body)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["error"], ShouldContainSubstring, "single JSON value")
			}
			w := do(h, http.MethodPost, "/rsvp", `{"firstName":"a"}`+strings.Repeat(" ", 300))
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decode(w)["error"], ShouldContainSubstring, "too large")

			Convey("Then nothing reaches the store", func() {
				So(deps.submitted, ShouldBeEmpty)
			})
		})

		Convey("When the body is too large", func() {
			w := do(h, http.MethodPost, "/rsvp", `{"firstName":"`+strings.Repeat("a", 300)+`"}`)

			Convey("Then a 500 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["error"], ShouldContainSubstring, "too large")
			})
		})

		Convey("When the store fails", func() {
			deps.submitErr = errors.New(`insert guest: ERROR: relation "guest" does not exist`)
			w := do(h, http.MethodPost, "/rsvp", `{"firstName":"Ada"}`)

			Convey("Then the error text is returned with 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["error"], ShouldEqual, deps.submitErr.Error())
			})
		})

		Convey("When the handler panics", func() {
			deps.panicOn = true
			w := do(h, http.MethodPost, "/rsvp", `{}`)

			Convey("Then the recover middleware answers 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["error"], ShouldEqual, "internal server error")
			})
		})

		Convey("When another method is used", func() {
			w := do(h, http.MethodGet, "/rsvp", "")

			Convey("Then 405 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(decode(w)["error"], ShouldEqual, "method not allowed")
			})
		})

		Convey("When a request id is supplied", func() {
			w := do(h, http.MethodPost, "/rsvp", `{}`, func(r *http.Request) { r.Header.Set("X-Request-ID", "abc-123") })

			Convey("Then it is echoed back", func() {
				So(w.Header().Get("X-Request-ID"), ShouldEqual, "abc-123")
			})
		})

		Convey("When no request id is supplied", func() {
			w := do(h, http.MethodPost, "/rsvp", `{}`)

			Convey("Then one is generated", func() {
				So(w.Header().Get("X-Request-ID"), ShouldHaveLength, 36)
			})
		})

		Convey("When a browser sends a CORS preflight", func() {
			w := do(h, http.MethodOptions, "/rsvp", "", func(r *http.Request) {
				r.Header.Set("Origin", "https://wedding.example")
				r.Header.Set("Access-Control-Request-Method", http.MethodPost)
				r.Header.Set("Access-Control-Request-Headers", "content-type")
			})

			Convey("Then it is answered by the CORS layer", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
			})
		})
	})
}

func TestHealthMetricsAndQR(t *testing.T) {
	Convey("Given the API handler", t, func() {
		deps := &mockDeps{}
		h := api.NewServer(deps, api.WithLogger(logger.NewNop()), api.WithQRTarget("https://wedding.example/")).Handler(context.Background())

		Convey("When the database is reachable", func() {
			w := do(h, http.MethodGet, "/healthz", "")

			Convey("Then healthz is ok", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "ok")
			})
		})

		Convey("When the database is down", func() {
			deps.pingErr = errors.New("connection refused")
			w := do(h, http.MethodGet, "/healthz", "")

			Convey("Then healthz is degraded", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decode(w)["status"], ShouldEqual, "degraded")
				So(decode(w)["error"], ShouldEqual, "connection refused")
			})
		})

		Convey("When metrics are scraped after a request", func() {
			_ = do(h, http.MethodPost, "/rsvp", `{}`)
			w := do(h, http.MethodGet, "/metrics", "")

			Convey("Then the rsvp counters are exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "rsvp_service_http_requests_total")
			})
		})

		Convey("When the QR path is visited", func() {
			w := do(h, http.MethodGet, "/qr", "")

			Convey("Then it redirects permanently", func() {
				So(w.Code, ShouldEqual, http.StatusPermanentRedirect)
				So(w.Header().Get("Location"), ShouldEqual, "https://wedding.example/")
			})
		})

		Convey("When the docs are requested", func() {
			So(do(h, http.MethodGet, "/openapi.yaml", "").Code, ShouldEqual, http.StatusOK)
			So(do(h, http.MethodGet, "/api-docs", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("When admin routes are requested without admins configured", func() {
			w := do(h, http.MethodGet, "/rsvps", "")

			Convey("Then they do not exist", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestAdminRoutes(t *testing.T) {
	Convey("Given the API with one admin user", t, func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
		So(err, ShouldBeNil)
		last := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		deps := &mockDeps{
			items: []model.Guest{{ID: 2, FirstName: model.Ptr("Grace")}, {ID: 1}},
			stats: model.Stats{Total: 2, WithEmail: 1, DistinctEmails: 1, LastSubmittedAt: &last},
		}
		live := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		h := api.NewServer(deps,
			api.WithLogger(logger.NewNop()),
			api.WithAdmins(map[string]string{"kristen": string(hash)}),
			api.WithLive(live),
		).Handler(context.Background())

		auth := func(user, pass string) func(*http.Request) {
			return func(r *http.Request) { r.SetBasicAuth(user, pass) }
		}

		Convey("When no credentials are sent", func() {
			w := do(h, http.MethodGet, "/rsvps", "")

			Convey("Then a challenge is returned", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(w.Header().Get("WWW-Authenticate"), ShouldStartWith, "Basic realm=")
			})
		})

		Convey("When the password is wrong or the user unknown", func() {
			So(do(h, http.MethodGet, "/rsvps", "", auth("kristen", "nope")).Code, ShouldEqual, http.StatusUnauthorized)
			So(do(h, http.MethodGet, "/rsvps", "", auth("mallory", "s3cret")).Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When listing with valid credentials", func() {
			w := do(h, http.MethodGet, "/rsvps?q=gr&limit=10&offset=5", "", auth("kristen", "s3cret"))

			Convey("Then the items and count are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["count"], ShouldEqual, float64(2))
				So(body["items"], ShouldHaveLength, 2)
				So(deps.filter, ShouldResemble, model.Filter{Query: "gr", Limit: 10, Offset: 5})
			})
		})

		Convey("When the store has no rows", func() {
			deps.items = nil
			w := do(h, http.MethodGet, "/rsvps", "", auth("kristen", "s3cret"))

			Convey("Then an empty list is returned", func() {
				So(w.Body.String(), ShouldContainSubstring, `"items":[]`)
			})
		})

		Convey("When paging parameters are invalid", func() {
			for _, q := range []string{"limit=abc", "limit=-1", "offset=x", "offset=-2"} {
				w := do(h, http.MethodGet, "/rsvps?"+q, "", auth("kristen", "s3cret"))
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the store fails", func() {
			deps.listErr = errors.New("timeout")
			w := do(h, http.MethodGet, "/rsvps", "", auth("kristen", "s3cret"))

			Convey("Then 500 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["error"], ShouldEqual, "timeout")
			})
		})

		Convey("When stats are requested", func() {
			w := do(h, http.MethodGet, "/rsvps/stats", "", auth("kristen", "s3cret"))

			Convey("Then the aggregate is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["total"], ShouldEqual, float64(2))
				So(body["withEmail"], ShouldEqual, float64(1))
				So(body["lastSubmittedAt"], ShouldEqual, "2026-06-01T12:00:00Z")
			})
		})

		Convey("When the live feed is requested", func() {
			So(do(h, http.MethodGet, "/rsvps/live", "").Code, ShouldEqual, http.StatusUnauthorized)
			So(do(h, http.MethodGet, "/rsvps/live", "", auth("kristen", "s3cret")).Code, ShouldEqual, http.StatusTeapot)
		})
	})
}

func TestWrapKind(t *testing.T) {
	Convey("Given a wrapped error", t, func() {
		cause := errors.New("disk full")
		err := api.WrapKind("api.op", api.ErrSubmit, cause)

		Convey("Then both kind and cause are reachable", func() {
			So(errors.Is(err, api.ErrSubmit), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: submit rsvp: disk full")
		})

		Convey("And NewKind carries no cause", func() {
			e := api.NewKind("api.op", api.ErrUnauthorized)
			So(errors.Is(e, api.ErrUnauthorized), ShouldBeTrue)
			So(e.Error(), ShouldEqual, "api.op: unauthorized")
		})
	})
}
