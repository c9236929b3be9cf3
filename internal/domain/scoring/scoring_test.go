package scoring_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var day = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

func TestAggregate(t *testing.T) {
	Convey("Given the signal groups of a day", t, func() {
		Convey("When a company has one heavy and two light signals", func() {
			scores := scoring.Aggregate(day, []model.SignalGroup{
				{CompanyID: 1, Type: model.TypeProcCollective, WeightSum: 100, Count: 1},
				{CompanyID: 1, Type: model.TypeOther, WeightSum: 60, Count: 2},
			})

			Convey("Then the total is the sum and the heavy type dominates", func() {
				So(scores, ShouldHaveLength, 1)
				So(scores[0].ScoreTotal, ShouldEqual, 160)
				So(scores[0].TopSignalType, ShouldEqual, model.TypeProcCollective)
				So(scores[0].Explanation, ShouldContainSubstring, "2024-05-02")
				So(scores[0].Explanation, ShouldContainSubstring, "3 signal(s)")
			})
		})

		Convey("When weight sums tie", func() {
			scores := scoring.Aggregate(day, []model.SignalGroup{
				{CompanyID: 7, Type: model.TypeMAProject, WeightSum: 60, Count: 1},
				{CompanyID: 7, Type: model.TypeOther, WeightSum: 60, Count: 2},
			})

			Convey("Then the higher count wins", func() {
				So(scores[0].TopSignalType, ShouldEqual, model.TypeOther)
				So(scores[0].ScoreTotal, ShouldEqual, 120)
			})
		})

		Convey("When weight sums and counts tie", func() {
			groups := []model.SignalGroup{
				{CompanyID: 7, Type: model.TypeSaleOfBusiness, WeightSum: 70, Count: 1},
				{CompanyID: 7, Type: model.TypeMAProject, WeightSum: 70, Count: 1},
			}
			first := scoring.Aggregate(day, groups)
			reversed := scoring.Aggregate(day, []model.SignalGroup{groups[1], groups[0]})

			Convey("Then the smallest type name wins regardless of input order", func() {
				So(first[0].TopSignalType, ShouldEqual, model.TypeMAProject)
				So(reversed[0].TopSignalType, ShouldEqual, model.TypeMAProject)
			})
		})

		Convey("When several companies are present", func() {
			scores := scoring.Aggregate(day.Add(15*time.Hour), []model.SignalGroup{
				{CompanyID: 9, Type: model.TypeOther, WeightSum: 30, Count: 1},
				{CompanyID: 2, Type: model.TypeOther, WeightSum: 30, Count: 1},
			})

			Convey("Then output is ordered by company and dated at midnight", func() {
				So(scores, ShouldHaveLength, 2)
				So(scores[0].CompanyID, ShouldEqual, 2)
				So(scores[1].CompanyID, ShouldEqual, 9)
				So(scores[0].ScoreDate, ShouldEqual, day)
			})
		})

		Convey("When there are no groups", func() {
			So(scoring.Aggregate(day, nil), ShouldBeEmpty)
		})
	})
}

type fakeStore struct {
	mu      sync.Mutex
	groups  map[string][]model.SignalGroup
	scores  map[string]model.DailyScore
	reads   atomic.Int32
	gate    chan struct{}
	readErr error
	failOn  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{groups: map[string][]model.SignalGroup{}, scores: map[string]model.DailyScore{}}
}

// SignalGroups snapshots the groups, then holds the first read on gate.
func (f *fakeStore) SignalGroups(ctx context.Context, date time.Time) ([]model.SignalGroup, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	f.mu.Lock()
	groups := append([]model.SignalGroup(nil), f.groups[model.FormatDate(date)]...)
	f.mu.Unlock()
	if n := f.reads.Add(1); n == 1 && f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return groups, nil
}

func (f *fakeStore) addGroup(date string, g model.SignalGroup) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[date] = append(f.groups[date], g)
}

func (f *fakeStore) score(key string) (model.DailyScore, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scores[key]
	return s, ok
}

func waitForReads(f *fakeStore, n int32) {
	for f.reads.Load() < n {
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeStore) UpsertDailyScore(_ context.Context, s model.DailyScore) error {
	if s.CompanyID == f.failOn {
		return model.ErrTransientIO
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[fmt.Sprintf("%s/%d", model.FormatDate(s.ScoreDate), s.CompanyID)] = s
	return nil
}

func TestAggregatorRecompute(t *testing.T) {
	Convey("Given an aggregator over a store with one day of signals", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		store.groups["2024-05-02"] = []model.SignalGroup{
			{CompanyID: 1, Type: model.TypeProcCollective, WeightSum: 100, Count: 1},
			{CompanyID: 2, Type: model.TypeOther, WeightSum: 30, Count: 1},
		}
		agg := scoring.NewAggregator(store)

		Convey("When recomputing that date twice", func() {
			n1, err1 := agg.Recompute(ctx, &day)
			first := store.scores["2024-05-02/1"]
			n2, err2 := agg.Recompute(ctx, &day)

			Convey("Then the rows are overwritten, not accumulated", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(n1, ShouldEqual, 2)
				So(n2, ShouldEqual, 2)
				So(store.scores, ShouldHaveLength, 2)
				So(store.scores["2024-05-02/1"].ScoreTotal, ShouldEqual, first.ScoreTotal)
			})
		})

		Convey("When recomputing a date without signals", func() {
			empty := day.AddDate(0, 0, -10)
			n, err := agg.Recompute(ctx, &empty)

			Convey("Then nothing is written", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				So(store.scores, ShouldBeEmpty)
			})
		})

		Convey("When the date is omitted", func() {
			paris, err := time.LoadLocation("Europe/Paris")
			clock := func() time.Time { return time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC) }
			So(err, ShouldBeNil)
			agg := scoring.NewAggregator(store, scoring.WithLocation(paris), scoring.WithClock(clock))
			n, err := agg.Recompute(ctx, nil)

			Convey("Then today in the configured zone is used", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				So(model.FormatDate(agg.Today()), ShouldEqual, "2024-05-02")
			})
		})

		Convey("When reading groups fails", func() {
			store.readErr = model.ErrTransientIO
			_, err := agg.Recompute(ctx, &day)

			Convey("Then the run aborts with the cause", func() {
				So(errors.Is(err, model.ErrTransientIO), ShouldBeTrue)
			})
		})

		Convey("When an upsert fails", func() {
			store.failOn = 2
			_, err := agg.Recompute(ctx, &day)

			Convey("Then the run aborts and names the company", func() {
				So(errors.Is(err, model.ErrTransientIO), ShouldBeTrue)
				So(strings.Contains(err.Error(), "company 2"), ShouldBeTrue)
			})
		})

		Convey("When a signal is written while an earlier run is reading", func() {
			store.gate = make(chan struct{})
			doneA := make(chan int, 1)
			go func() {
				n, _ := agg.Recompute(ctx, &day)
				doneA <- n
			}()
			waitForReads(store, 1)

			store.addGroup("2024-05-02", model.SignalGroup{CompanyID: 3, Type: model.TypeSaleOfBusiness, WeightSum: 60, Count: 1})
			doneB := make(chan struct{})
			var nB int
			var errB error
			go func() {
				nB, errB = agg.Recompute(ctx, &day)
				close(doneB)
			}()
			time.Sleep(20 * time.Millisecond)
			close(store.gate)
			nA := <-doneA
			<-doneB

			Convey("Then the later caller reads again and scores the new company", func() {
				So(nA, ShouldEqual, 2)
				So(errB, ShouldBeNil)
				So(nB, ShouldEqual, 3)
				So(store.reads.Load(), ShouldEqual, 2)
				_, ok := store.score("2024-05-02/3")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When the first of two callers is cancelled mid-run", func() {
			store.gate = make(chan struct{})
			ctxA, cancelA := context.WithCancel(ctx)
			defer cancelA()
			errA := make(chan error, 1)
			go func() {
				_, err := agg.Recompute(ctxA, &day)
				errA <- err
			}()
			waitForReads(store, 1)

			doneB := make(chan struct{})
			var nB int
			var errB error
			go func() {
				nB, errB = agg.Recompute(context.Background(), &day)
				close(doneB)
			}()
			time.Sleep(20 * time.Millisecond)
			cancelA()
			<-doneB

			Convey("Then only the cancelled caller fails", func() {
				So(errors.Is(<-errA, context.Canceled), ShouldBeTrue)
				So(errB, ShouldBeNil)
				So(nB, ShouldEqual, 2)
			})
		})

		Convey("When the caller's context ends while waiting for another run", func() {
			store.gate = make(chan struct{})
			defer close(store.gate)
			go func() { _, _ = agg.Recompute(ctx, &day) }()
			waitForReads(store, 1)

			waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			_, err := agg.Recompute(waitCtx, &day)

			Convey("Then it returns the context error without reading", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(store.reads.Load(), ShouldEqual, 1)
			})
		})
	})
}
