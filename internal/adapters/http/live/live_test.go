package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestHubWebsocket(t *testing.T) {
	Convey("Given a hub served over httptest", t, func() {
		hub := NewHub(logger.NewNop(), WithPingInterval(time.Second))
		srv := httptest.NewServer(hub)
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
		So(err, ShouldBeNil)
		defer func() { _ = conn.Close() }()
		So(waitFor(func() bool { return hub.Subscribers() == 1 }), ShouldBeTrue)

		Convey("When a guest is published", func() {
			hub.Publish(context.Background(), model.Guest{ID: 3, FirstName: model.Ptr("Ada")})

			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, data, err := conn.ReadMessage()

			Convey("Then the subscriber receives an insert frame", func() {
				So(err, ShouldBeNil)
				var ev Event
				So(json.Unmarshal(data, &ev), ShouldBeNil)
				So(ev.Type, ShouldEqual, EventInsert)
				So(ev.Guest.ID, ShouldEqual, int64(3))
				So(model.Text(ev.Guest.FirstName), ShouldEqual, "Ada")
				So(ev.Guest.Email, ShouldBeNil)
			})
		})

		Convey("When the client disconnects", func() {
			_ = conn.Close()

			Convey("Then the subscriber is removed", func() {
				So(waitFor(func() bool { return hub.Subscribers() == 0 }), ShouldBeTrue)
			})
		})

		Convey("When the hub is closed", func() {
			hub.Close()

			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err := conn.ReadMessage()

			Convey("Then the client gets a normal close", func() {
				So(websocket.IsCloseError(err, websocket.CloseNormalClosure), ShouldBeTrue)
				So(hub.Subscribers(), ShouldEqual, 0)
			})

			Convey("And new clients are turned away", func() {
				c2, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
				So(err, ShouldBeNil)
				defer func() { _ = c2.Close() }()
				_ = c2.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, _, err = c2.ReadMessage()
				So(websocket.IsCloseError(err, websocket.CloseGoingAway), ShouldBeTrue)
			})
		})
	})
}

func TestHubDropsSlowSubscribers(t *testing.T) {
	Convey("Given a subscriber whose buffer is full", t, func() {
		hub := NewHub(logger.NewNop())
		s := &subscriber{send: make(chan []byte, 1)}
		So(hub.add(s), ShouldBeTrue)

		hub.Broadcast([]byte("one"))
		hub.Broadcast([]byte("two"))

		Convey("Then it is disconnected after the buffered frame", func() {
			So(hub.Subscribers(), ShouldEqual, 0)
			first, ok := <-s.send
			So(ok, ShouldBeTrue)
			So(string(first), ShouldEqual, "one")
			_, ok = <-s.send
			So(ok, ShouldBeFalse)
		})
	})
}

func TestWithOrigins(t *testing.T) {
	Convey("Given a hub limited to one origin", t, func() {
		hub := NewHub(logger.NewNop(), WithOrigins([]string{" https://ok.example "}))
		srv := httptest.NewServer(hub)
		defer srv.Close()

		Convey("When a foreign origin connects", func() {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Origin": {"https://bad.example"}})

			Convey("Then the upgrade is refused", func() {
				So(err, ShouldNotBeNil)
				So(resp, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			})
		})

		Convey("When the allowed origin connects", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Origin": {"https://OK.example"}})

			Convey("Then the upgrade succeeds", func() {
				So(err, ShouldBeNil)
				_ = conn.Close()
			})
		})
	})

	Convey("A wildcard keeps every origin allowed", t, func() {
		hub := NewHub(logger.NewNop(), WithOrigins([]string{"*"}))
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://anything.example")
		So(hub.upgrader.CheckOrigin(r), ShouldBeTrue)
	})
}

func TestRelay(t *testing.T) {
	Convey("Given a relay on miniredis", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer func() { _ = client.Close() }()

		hub := NewHub(logger.NewNop())
		s := &subscriber{send: make(chan []byte, 4)}
		So(hub.add(s), ShouldBeTrue)

		relay := NewRelay(client, hub, "", logger.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- relay.Run(ctx) }()
		So(waitFor(func() bool { return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1 }), ShouldBeTrue)

		Convey("When a guest is published", func() {
			relay.Publish(ctx, model.Guest{ID: 11})

			Convey("Then the frame comes back through redis to the hub", func() {
				select {
				case frame := <-s.send:
					var ev Event
					So(json.Unmarshal(frame, &ev), ShouldBeNil)
					So(ev.Guest.ID, ShouldEqual, int64(11))
				case <-time.After(2 * time.Second):
					t.Fatal("frame not relayed")
				}
				cancel()
				So(<-done, ShouldBeNil)
			})
		})

		Convey("When redis is gone", func() {
			cancel()
			<-done
			mr.Close()
			relay.Publish(context.Background(), model.Guest{ID: 12})

			Convey("Then the frame is delivered locally", func() {
				frame := <-s.send
				So(string(frame), ShouldContainSubstring, `"id":12`)
			})
		})
	})
}
