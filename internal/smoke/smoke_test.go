package smoke_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/okian/rsvp/internal/adapters/http/api"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/internal/smoke"
	"github.com/okian/rsvp/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// memDeps is an in-memory backend behind the real HTTP handlers.
type memDeps struct {
	mu      sync.Mutex
	rows    []model.Guest
	drop    int // silently lose every n-th row
	calls   int
	pingErr error
}

func (m *memDeps) Submit(_ context.Context, g model.Guest) (model.Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.drop > 0 && m.calls%m.drop == 0 {
		return g, nil
	}
	g.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, g)
	return g, nil
}

func (m *memDeps) List(context.Context, model.Filter) ([]model.Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Guest(nil), m.rows...), nil
}

func (m *memDeps) Stats(context.Context) (model.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := model.Stats{Total: int64(len(m.rows))}
	for _, g := range m.rows {
		if g.Recipient() != "" {
			st.WithEmail++
		}
	}
	return st, nil
}

func (m *memDeps) Ping(context.Context) error { return m.pingErr }

func newService(t *testing.T, deps *memDeps) *httptest.Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := api.NewServer(deps,
		api.WithLogger(logger.NewNop()),
		api.WithAdmins(map[string]string{"admin": string(hash)}),
	).Handler(context.Background())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		deps := &memDeps{rows: []model.Guest{{ID: 1}}}
		srv := newService(t, deps)
		cfg := smoke.Config{
			BaseURL:       srv.URL,
			Count:         30,
			Workers:       4,
			AdminUser:     "admin",
			AdminPassword: "pw",
			Logger:        logger.NewNop(),
		}

		Convey("When the smoke test runs", func() {
			stats, err := smoke.Run(context.Background(), cfg)

			Convey("Then every rsvp is accepted and the totals verified", func() {
				So(err, ShouldBeNil)
				So(stats.Generated, ShouldEqual, 30)
				So(stats.Successful, ShouldEqual, 30)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Verified, ShouldBeTrue)
				So(stats.Before.Total, ShouldEqual, int64(1))
				So(stats.After.Total, ShouldEqual, int64(31))
				So(stats.After.WithEmail, ShouldEqual, int64(20))
				So(deps.rows, ShouldHaveLength, 31)
			})

			Convey("And generated names are tagged for searching", func() {
				So(strings.Count(model.Text(deps.rows[1].LastName), "-"), ShouldBeGreaterThanOrEqualTo, 1)
				So(deps.rows[1].FirstName, ShouldNotBeNil)
			})
		})

		Convey("When rows go missing after being acknowledged", func() {
			deps.drop = 5
			_, err := smoke.Run(context.Background(), cfg)

			Convey("Then verification fails", func() {
				So(errors.Is(err, smoke.ErrVerify), ShouldBeTrue)
			})
		})

		Convey("When no admin credentials are given", func() {
			cfg.AdminUser = ""
			stats, err := smoke.Run(context.Background(), cfg)

			Convey("Then only submission is checked", func() {
				So(err, ShouldBeNil)
				So(stats.Verified, ShouldBeFalse)
				So(stats.Before, ShouldBeNil)
			})
		})

		Convey("When the admin password is wrong", func() {
			cfg.AdminPassword = "nope"
			_, err := smoke.Run(context.Background(), cfg)

			Convey("Then the stats request fails", func() {
				So(errors.Is(err, smoke.ErrRequest), ShouldBeTrue)
			})
		})

		Convey("When the database is down", func() {
			deps.pingErr = errors.New("connection refused")
			_, err := smoke.Run(context.Background(), cfg)

			Convey("Then the run stops at the health check", func() {
				So(errors.Is(err, smoke.ErrUnhealthy), ShouldBeTrue)
				So(deps.calls, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a service that rejects every rsvp", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				w.WriteHeader(http.StatusOK)
				return
			}
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		}))
		defer srv.Close()

		stats, err := smoke.Run(context.Background(), smoke.Config{BaseURL: srv.URL, Count: 5, Workers: 2, Logger: logger.NewNop()})

		Convey("Then the run reports that nothing was accepted", func() {
			So(errors.Is(err, smoke.ErrNoneSent), ShouldBeTrue)
			So(stats.Failed, ShouldEqual, 5)
		})
	})
}
