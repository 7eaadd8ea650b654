package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/okian/snackboard/internal/adapters/http/api"
	"github.com/okian/snackboard/internal/adapters/repository"
	service "github.com/okian/snackboard/internal/app"
	"github.com/okian/snackboard/internal/domain/ranking"
	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockStore is an in-memory Dependencies implementation.
type mockStore struct {
	mu        sync.Mutex
	records   []types.UserRecord
	upsertErr error
	readErr   error
	limits    []int
}

func (m *mockStore) Records(ctx context.Context) ([]types.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return types.CloneRecords(m.records), nil
}

func (m *mockStore) Ranking(ctx context.Context, limit int) ([]types.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, limit)
	if m.readErr != nil {
		return nil, m.readErr
	}
	return ranking.Rank(m.records, limit), nil
}

func (m *mockStore) Upsert(ctx context.Context, id, name string, count int) (types.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return types.UserRecord{}, m.upsertErr
	}
	rec := types.UserRecord{ID: id, Name: name, Count: count}
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i] = rec
			return rec, nil
		}
	}
	m.records = append(m.records, rec)
	return rec, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}).
		Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeMap(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func decodeRecords(w *httptest.ResponseRecorder) []types.UserRecord {
	var out []types.UserRecord
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		mux := newMux(&mockStore{})

		Convey("Then health endpoint should serve metrics", func() {
			w := do(mux, "GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "snackboard_server_")
		})

		Convey("And stats endpoint should be accessible", func() {
			w := do(mux, "GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeMap(w)["started"], ShouldEqual, true)
		})

		Convey("And ranking endpoint should be accessible", func() {
			w := do(mux, "GET", "/ranking", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("And records endpoint should be accessible", func() {
			w := do(mux, "GET", "/records", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})

		Convey("And legacy paths should be served", func() {
			So(do(mux, "GET", "/salgadinhos", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "GET", "/salgadinhos/ranking", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("And unknown paths should 404", func() {
			So(do(mux, "GET", "/leaderboard", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And a nil mux should panic", func() {
			server := api.NewServer(&mockStore{}, &mockStatsProvider{})
			So(func() { server.Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}

func TestRankingHandler(t *testing.T) {
	Convey("Given a ranking handler over three records", t, func() {
		store := &mockStore{records: []types.UserRecord{
			{ID: "a", Name: "alice", Count: 3},
			{ID: "c", Name: "Carl", Count: 5},
			{ID: "b", Name: "Bob", Count: 3},
		}}
		mux := newMux(store)

		Convey("When requesting without a limit", func() {
			w := do(mux, "GET", "/ranking", "")

			Convey("Then all records are returned in rank order", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				got := decodeRecords(w)
				So(len(got), ShouldEqual, 3)
				So(got[0].Name, ShouldEqual, "Carl")
				So(got[1].Name, ShouldEqual, "alice")
				So(got[2].Name, ShouldEqual, "Bob")
			})
		})

		Convey("When requesting with limit=2", func() {
			w := do(mux, "GET", "/ranking?limit=2", "")

			Convey("Then the head of the ranking is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(decodeRecords(w)), ShouldEqual, 2)
				So(store.limits[len(store.limits)-1], ShouldEqual, 2)
			})
		})

		Convey("When the limit exceeds the collection", func() {
			w := do(mux, "GET", "/ranking?limit=50", "")

			Convey("Then every record is returned", func() {
				So(len(decodeRecords(w)), ShouldEqual, 3)
			})
		})

		Convey("When the limit is not a positive number", func() {
			for _, raw := range []string{"abc", "0", "-4", ""} {
				w := do(mux, "GET", "/ranking?limit="+raw, "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(decodeRecords(w)), ShouldEqual, 3)
			}

			Convey("Then no limit is applied", func() {
				for _, l := range store.limits {
					So(l, ShouldEqual, 0)
				}
			})
		})

		Convey("When the limit has trailing text", func() {
			w := do(mux, "GET", "/ranking?limit=2abc", "")

			Convey("Then its leading integer is used", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(decodeRecords(w)), ShouldEqual, 2)
			})
		})

		Convey("When the read fails", func() {
			store.readErr = errors.New("disk gone")
			w := do(mux, "GET", "/ranking", "")

			Convey("Then a 500 with message and error is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decodeMap(w)
				So(body["message"], ShouldNotBeEmpty)
				So(body["error"], ShouldContainSubstring, "disk gone")
			})
		})

		Convey("When using a method other than GET", func() {
			w := do(mux, "DELETE", "/ranking", "")

			Convey("Then 405 is returned with an Allow header", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(w.Header().Get("Allow"), ShouldEqual, "GET")
			})
		})
	})
}

func TestRecordsHandler_Post(t *testing.T) {
	Convey("Given a records handler over an empty store", t, func() {
		store := &mockStore{}
		mux := newMux(store)

		Convey("When posting an empty object", func() {
			w := do(mux, "POST", "/records", `{}`)

			Convey("Then it should return 400 with a message", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decodeMap(w)
				So(body["message"], ShouldNotBeEmpty)
				_, hasError := body["error"]
				So(hasError, ShouldBeFalse)
				So(len(store.records), ShouldEqual, 0)
			})
		})

		Convey("When posting malformed bodies", func() {
			cases := []string{
				`{"userName":"Ana","count":1}`,
				`{"userId":"","userName":"Ana","count":1}`,
				`{"userId":"   ","userName":"Ana","count":1}`,
				`{"userId":42,"userName":"Ana","count":1}`,
				`{"userId":"u1","count":1}`,
				`{"userId":"u1","userName":null,"count":1}`,
				`{"userId":"u1","userName":7,"count":1}`,
				`{"userId":"u1","userName":"Ana"}`,
				`{"userId":"u1","userName":"Ana","count":"3"}`,
				`{"userId":"u1","userName":"Ana","count":-1}`,
				`{"userId":"u1","userName":"Ana","count":1.5}`,
				`null`,
			}

			Convey("Then each is rejected with 400", func() {
				for _, body := range cases {
					w := do(mux, "POST", "/records", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
				So(len(store.records), ShouldEqual, 0)
			})
		})

		Convey("When the body is not JSON", func() {
			for _, body := range []string{"", "not json", `{"userId":`, `[1,2]`} {
				w := do(mux, "POST", "/records", body)

				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeMap(w)["message"], ShouldNotBeEmpty)
			}
		})

		Convey("When posting a valid body", func() {
			w := do(mux, "POST", "/records", `{"userId":"u1","userName":"Ana","count":3}`)

			Convey("Then it should return 200 echoing the record", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeMap(w)
				So(body["message"], ShouldNotBeEmpty)
				So(body["userId"], ShouldEqual, "u1")
				So(body["userName"], ShouldEqual, "Ana")
				So(body["count"], ShouldEqual, 3)
			})

			Convey("And the store holds exactly one record", func() {
				So(len(store.records), ShouldEqual, 1)
				So(store.records[0], ShouldResemble, types.UserRecord{ID: "u1", Name: "Ana", Count: 3})
			})
		})

		Convey("When the count is zero or a whole float", func() {
			So(do(mux, "POST", "/records", `{"userId":"u1","userName":"","count":0}`).Code, ShouldEqual, http.StatusOK)
			So(do(mux, "POST", "/records", `{"userId":"u2","userName":"Bo","count":4.0}`).Code, ShouldEqual, http.StatusOK)

			Convey("Then both are accepted", func() {
				So(len(store.records), ShouldEqual, 2)
				So(store.records[1].Count, ShouldEqual, 4)
			})
		})

		Convey("When the write fails", func() {
			store.upsertErr = fmt.Errorf("%w: disk full", repository.ErrPersist)
			w := do(mux, "POST", "/records", `{"userId":"u1","userName":"Ana","count":3}`)

			Convey("Then a 500 with message and error is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decodeMap(w)
				So(body["message"], ShouldNotBeEmpty)
				So(body["error"], ShouldContainSubstring, "disk full")
			})
		})

		Convey("When the store rejects the record", func() {
			store.upsertErr = fmt.Errorf("%w: %w", repository.ErrInvalidRecord, types.ErrNegativeCount)
			w := do(mux, "POST", "/records", `{"userId":"u1","userName":"Ana","count":3}`)

			Convey("Then it is reported as a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When using an unsupported method", func() {
			w := do(mux, "PUT", "/records", `{}`)

			Convey("Then 405 lists GET and POST", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(w.Header().Get("Allow"), ShouldEqual, "GET, POST")
			})
		})
	})
}

func TestRecordsHandler_Get(t *testing.T) {
	Convey("Given records stored out of rank order", t, func() {
		store := &mockStore{records: []types.UserRecord{
			{ID: "a", Name: "Alice", Count: 1},
			{ID: "b", Name: "Bob", Count: 9},
		}}
		mux := newMux(store)

		Convey("When listing records", func() {
			w := do(mux, "GET", "/records", "")

			Convey("Then storage order is preserved", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				got := decodeRecords(w)
				So(got[0].ID, ShouldEqual, "a")
				So(got[1].ID, ShouldEqual, "b")
			})
		})

		Convey("When the read fails", func() {
			store.readErr = errors.New("boom")
			w := do(mux, "GET", "/records", "")

			Convey("Then 500 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	Convey("Given a health handler", t, func() {
		handler := api.NewHealthHandler()

		Convey("When handling health check request", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()
			handler.HandleHealth(w, req)

			Convey("Then it should return OK status", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestStatsHandler_HandleStats(t *testing.T) {
	Convey("Given a stats handler", t, func() {
		mockStats := &mockStatsProvider{
			stats: map[string]interface{}{
				"totalRecords": 12,
				"started":      true,
			},
		}
		handler := api.NewStatsHandler(mockStats)

		Convey("When handling stats request", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()
			handler.HandleStats(w, req)

			Convey("Then it should return stats", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var response map[string]interface{}
				So(json.NewDecoder(w.Body).Decode(&response), ShouldBeNil)
				So(response["totalRecords"], ShouldEqual, 12)
				So(response["started"], ShouldEqual, true)
			})
		})

		Convey("When posting to stats", func() {
			req := httptest.NewRequest("POST", "/stats", nil)
			w := httptest.NewRecorder()
			handler.HandleStats(w, req)

			Convey("Then it should return 405", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestAPI_EndToEnd(t *testing.T) {
	Convey("Given the API over a real service and data file", t, func() {
		svc := service.New(service.WithDataFile(filepath.Join(t.TempDir(), "snacks.json")))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(context.Background(), mux)

		Convey("When two users sync and one updates", func() {
			So(do(mux, "POST", "/records", `{"userId":"u1","userName":"Alice","count":3}`).Code, ShouldEqual, http.StatusOK)
			So(do(mux, "POST", "/records", `{"userId":"u2","userName":"Bob","count":9}`).Code, ShouldEqual, http.StatusOK)
			So(do(mux, "POST", "/records", `{"userId":"u1","userName":"Alice","count":7}`).Code, ShouldEqual, http.StatusOK)

			Convey("Then the ranking is Bob then Alice", func() {
				got := decodeRecords(do(mux, "GET", "/ranking", ""))
				So(len(got), ShouldEqual, 2)
				So(got[0].Name, ShouldEqual, "Bob")
				So(got[0].Count, ShouldEqual, 9)
				So(got[1].Name, ShouldEqual, "Alice")
				So(got[1].Count, ShouldEqual, 7)
				So(got[0].LastUpdated.IsZero(), ShouldBeFalse)
			})

			Convey("And stats report two records", func() {
				So(decodeMap(do(mux, "GET", "/stats", ""))["totalRecords"], ShouldEqual, 2)
			})
		})

		Convey("When posting {} to an empty store", func() {
			w := do(mux, "POST", "/records", `{}`)

			Convey("Then 400 is returned and nothing is stored", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(strings.TrimSpace(do(mux, "GET", "/records", "").Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When one valid body is posted to an empty store", func() {
			So(do(mux, "POST", "/records", `{"userId":"solo","userName":"Solo","count":1}`).Code, ShouldEqual, http.StatusOK)

			Convey("Then exactly one record exists", func() {
				So(len(decodeRecords(do(mux, "GET", "/records", ""))), ShouldEqual, 1)
			})
		})
	})
}
