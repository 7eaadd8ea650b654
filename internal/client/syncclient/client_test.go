package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeServer is a scriptable stand-in for the snackboard API.
type fakeServer struct {
	mu          sync.Mutex
	ranking     []types.UserRecord
	pushes      []pushRequest
	order       []string
	rankingCode int
	pushCode    int
	contentType string
	rawRanking  string
	limits      []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{rankingCode: http.StatusOK, pushCode: http.StatusOK, contentType: "application/json; charset=utf-8"}
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/records":
		f.order = append(f.order, "push")
		var req pushRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.pushes = append(f.pushes, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.pushCode)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/ranking":
		f.order = append(f.order, "pull")
		f.limits = append(f.limits, r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", f.contentType)
		w.WriteHeader(f.rankingCode)
		if f.rawRanking != "" {
			_, _ = w.Write([]byte(f.rawRanking))
			return
		}
		_ = json.NewEncoder(w).Encode(f.ranking)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServer) set(fn func(f *fakeServer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func TestNew(t *testing.T) {
	Convey("Given server URLs", t, func() {
		Convey("When the URL is valid", func() {
			c, err := New("http://localhost:9080/")

			Convey("Then the trailing slash is dropped", func() {
				So(err, ShouldBeNil)
				So(c.BaseURL(), ShouldEqual, "http://localhost:9080")
				So(c.Loaded(), ShouldBeFalse)
				So(c.Ranking(), ShouldBeEmpty)
			})
		})

		Convey("When the URL is not http(s)", func() {
			for _, raw := range []string{"", "localhost:9080", "ftp://host", "http://"} {
				_, err := New(raw)
				So(errors.Is(err, ErrInvalidBaseURL), ShouldBeTrue)
			}
		})
	})
}

func TestClientPushAndPull(t *testing.T) {
	Convey("Given a client against a working server", t, func() {
		fake := newFakeServer()
		fake.ranking = []types.UserRecord{{ID: "b", Name: "Bob", Count: 9}, {ID: "a", Name: "Alice", Count: 7}}
		srv := httptest.NewServer(fake)
		defer srv.Close()

		c, err := New(srv.URL, WithRankingLimit(5), WithTimeout(2*time.Second))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("When pushing a count", func() {
			ok := c.Push(ctx, "a", "Alice", 7)

			Convey("Then the server receives the body and the ranking is pulled after", func() {
				So(ok, ShouldBeTrue)
				fake.mu.Lock()
				defer fake.mu.Unlock()
				So(fake.pushes, ShouldResemble, []pushRequest{{UserID: "a", UserName: "Alice", Count: 7}})
				So(fake.order, ShouldResemble, []string{"push", "pull"})
				So(fake.limits, ShouldResemble, []string{"5"})
			})

			Convey("Then the ranking is held", func() {
				So(c.Loaded(), ShouldBeTrue)
				got := c.Ranking()
				So(len(got), ShouldEqual, 2)
				So(got[0].Name, ShouldEqual, "Bob")
			})
		})

		Convey("When a caller mutates the returned ranking", func() {
			c.Pull(ctx)
			got := c.Ranking()
			got[0].Name = "mutated"

			Convey("Then the held ranking is unaffected", func() {
				So(c.Ranking()[0].Name, ShouldEqual, "Bob")
			})
		})

		Convey("When the push is rejected", func() {
			fake.set(func(f *fakeServer) { f.pushCode = http.StatusBadRequest })
			ok := c.Push(ctx, "", "Alice", 7)

			Convey("Then false is returned and no pull happens", func() {
				So(ok, ShouldBeFalse)
				fake.mu.Lock()
				defer fake.mu.Unlock()
				So(fake.order, ShouldResemble, []string{"push"})
			})
		})

		Convey("When no limit is configured", func() {
			c2, _ := New(srv.URL, WithRankingLimit(0))
			c2.Pull(ctx)

			Convey("Then the limit parameter is omitted", func() {
				fake.mu.Lock()
				defer fake.mu.Unlock()
				So(fake.limits, ShouldResemble, []string{""})
			})
		})
	})
}

func TestClientKeepsPreviousRanking(t *testing.T) {
	Convey("Given a client that already pulled a ranking", t, func() {
		fake := newFakeServer()
		fake.ranking = []types.UserRecord{{ID: "a", Name: "Alice", Count: 1}}
		srv := httptest.NewServer(fake)
		defer srv.Close()

		c, err := New(srv.URL)
		So(err, ShouldBeNil)
		ctx := context.Background()
		So(len(c.Pull(ctx)), ShouldEqual, 1)

		Convey("When the server returns 500", func() {
			fake.set(func(f *fakeServer) { f.rankingCode = http.StatusInternalServerError })

			Convey("Then the previous ranking is kept", func() {
				got := c.Pull(ctx)
				So(len(got), ShouldEqual, 1)
				So(got[0].Name, ShouldEqual, "Alice")
			})
		})

		Convey("When the server answers with HTML", func() {
			fake.set(func(f *fakeServer) {
				f.contentType = "text/html"
				f.rawRanking = "<html>oops</html>"
			})

			Convey("Then the previous ranking is kept", func() {
				So(c.Pull(ctx)[0].Name, ShouldEqual, "Alice")
			})
		})

		Convey("When the JSON is malformed", func() {
			fake.set(func(f *fakeServer) { f.rawRanking = "[{" })

			Convey("Then the previous ranking is kept", func() {
				So(c.Pull(ctx)[0].Name, ShouldEqual, "Alice")
			})
		})

		Convey("When the server is gone", func() {
			srv.Close()

			Convey("Then pulls and pushes degrade quietly", func() {
				So(c.Pull(ctx)[0].Name, ShouldEqual, "Alice")
				So(c.Push(ctx, "a", "Alice", 2), ShouldBeFalse)
				So(c.Loaded(), ShouldBeTrue)
			})
		})

		Convey("When the caller's context is already done", func() {
			fake.set(func(f *fakeServer) { f.ranking = []types.UserRecord{{ID: "z", Name: "Zed", Count: 99}} })
			canceled, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then the result is discarded", func() {
				So(c.Pull(canceled)[0].Name, ShouldEqual, "Alice")
			})
		})
	})
}

func TestClientFirstPullFailure(t *testing.T) {
	Convey("Given a client whose first pull fails", t, func() {
		fake := newFakeServer()
		fake.rankingCode = http.StatusServiceUnavailable
		srv := httptest.NewServer(fake)
		defer srv.Close()

		c, err := New(srv.URL)
		So(err, ShouldBeNil)

		Convey("Then the ranking stays empty and unloaded", func() {
			got := c.Pull(context.Background())
			So(got, ShouldNotBeNil)
			So(len(got), ShouldEqual, 0)
			So(c.Loaded(), ShouldBeFalse)
		})
	})
}

func TestIsJSON(t *testing.T) {
	Convey("Given content types", t, func() {
		So(isJSON("application/json"), ShouldBeTrue)
		So(isJSON("application/json; charset=utf-8"), ShouldBeTrue)
		So(isJSON("text/plain"), ShouldBeFalse)
		So(isJSON(""), ShouldBeFalse)
	})
}
