package linkcheck_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/agiraud1/radar-fr/internal/domain/linkcheck"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeStore struct {
	signals []model.Signal
	since   time.Time
	limit   int
	err     error
}

func (f *fakeStore) RecentSignals(_ context.Context, since time.Time, limit int) ([]model.Signal, error) {
	f.since, f.limit = since, limit
	return f.signals, f.err
}

type fakeMarker struct {
	mu     sync.Mutex
	notes  map[int64]string
	human  map[int64]bool
	failOn int64
}

func (m *fakeMarker) MarkBroken(_ context.Context, id int64, note string) (bool, error) {
	if id == m.failOn {
		return false, model.ErrTransientIO
	}
	if m.human[id] {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[id] = note
	return true, nil
}

func newServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/nohead", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte("hello"))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	return httptest.NewServer(mux)
}

func TestSweep(t *testing.T) {
	Convey("Given a checker over a test server", t, func() {
		ctx := context.Background()
		srv := newServer()
		defer srv.Close()

		store := &fakeStore{signals: []model.Signal{
			{ID: 1, URL: srv.URL + "/ok"},
			{ID: 2, URL: srv.URL + "/gone"},
			{ID: 3, URL: srv.URL + "/nohead"},
			{ID: 4, URL: srv.URL + "/forbidden"},
			{ID: 5, URL: "http://127.0.0.1:1/unreachable"},
			{ID: 6, URL: "::not a url"},
		}}
		marker := &fakeMarker{notes: map[int64]string{}, human: map[int64]bool{}}
		now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
		checker := linkcheck.New(store, marker,
			linkcheck.WithHTTPClient(srv.Client()),
			linkcheck.WithUserAgent("test-agent"),
			linkcheck.WithTimeout(time.Second),
			linkcheck.WithConcurrency(3),
			linkcheck.WithClock(func() time.Time { return now }),
		)

		Convey("When sweeping with defaults", func() {
			rep, err := checker.Sweep(ctx)

			Convey("Then broken links are tagged with their status", func() {
				So(err, ShouldBeNil)
				So(rep.RunID, ShouldNotBeEmpty)
				So(rep.Scanned, ShouldEqual, 6)
				So(rep.OK, ShouldEqual, 2)
				So(rep.Broken, ShouldEqual, 4)
				So(rep.Tagged, ShouldEqual, 4)
				So(marker.notes[2], ShouldEqual, "auto(check-links): status=404")
				So(marker.notes[4], ShouldEqual, "auto(check-links): status=403")
				So(marker.notes[5], ShouldEqual, "auto(check-links): status=none")
				So(marker.notes[6], ShouldEqual, "auto(check-links): status=none")
				So(marker.notes, ShouldNotContainKey, int64(3))
			})

			Convey("Then the default window is used", func() {
				So(store.limit, ShouldEqual, 200)
				So(store.since, ShouldEqual, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC))
			})
		})

		Convey("When a signal already has human feedback or tagging fails", func() {
			marker.human[2] = true
			marker.failOn = 4
			rep, err := checker.SweepWith(ctx, linkcheck.Params{LookbackDays: 3, Limit: 10})

			Convey("Then it is skipped or counted as failed", func() {
				So(err, ShouldBeNil)
				So(rep.Skipped, ShouldEqual, 1)
				So(rep.Failed, ShouldEqual, 1)
				So(rep.Tagged, ShouldEqual, 2)
				So(store.limit, ShouldEqual, 10)
				So(store.since, ShouldEqual, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC))
			})
		})

		Convey("When listing signals fails", func() {
			store.err = model.ErrTransientIO
			_, err := checker.Sweep(ctx)
			So(errors.Is(err, model.ErrTransientIO), ShouldBeTrue)
		})
	})
}

func TestNote(t *testing.T) {
	Convey("Given link statuses", t, func() {
		So(linkcheck.Note(0), ShouldEqual, "auto(check-links): status=none")
		So(linkcheck.Note(500), ShouldEqual, "auto(check-links): status=500")
	})
}
