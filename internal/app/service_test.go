package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/agiraud1/radar-fr/internal/adapters/repository/sqlite"
	service "github.com/agiraud1/radar-fr/internal/app"
	"github.com/agiraud1/radar-fr/internal/config"
	"github.com/agiraud1/radar-fr/internal/domain/linkcheck"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Scheduler.Enabled = false
	cfg.LinkCheck.Timeout = time.Second
	return cfg
}

func newService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	return newServiceWithConfig(t, testConfig(), opts...)
}

func newServiceWithConfig(t *testing.T, cfg *config.Config, opts ...service.Option) *service.Service {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	opts = append([]service.Option{
		service.WithStore(st),
		service.WithLogger(logger.Nop()),
		service.WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	svc := service.New(cfg, opts...)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	return svc
}

func day(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New(nil)
		ctx := context.Background()

		Convey("Then operations report it is not started", func() {
			_, err := svc.Recompute(ctx, nil)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.QueryScores(ctx, nil, 0)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.Health(ctx).Healthy(), ShouldBeFalse)
			So(svc.GetStats(ctx)["started"], ShouldEqual, false)
		})
	})

	Convey("Given a started service", t, func() {
		svc := newService(t)
		ctx := context.Background()

		Convey("When it is stopped", func() {
			svc.Stop(ctx)

			Convey("Then it reports stopped and stopping again is harmless", func() {
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
				So(func() { svc.Stop(ctx) }, ShouldNotPanic)
			})
		})

		Convey("Then stats describe the store and jobs", func() {
			stats := svc.GetStats(ctx)
			So(stats["started"], ShouldEqual, true)
			So(stats["today"], ShouldEqual, "2024-03-10")
			So(stats["jobs"], ShouldContainKey, service.JobRecompute)
			So(stats["signals"], ShouldEqual, 0)
			svc.Stop(ctx)
		})
	})

	Convey("Given a configuration with an invalid classifier rule", t, func() {
		cfg := config.New()
		cfg.Scheduler.Enabled = false
		cfg.Classifier.Rules = []config.RuleConfig{{Name: "broken", Type: "X", Weight: 1, Confidence: 2, Terms: []string{"x"}}}
		st, err := sqlite.OpenMemory(context.Background())
		So(err, ShouldBeNil)
		svc := service.New(cfg, service.WithStore(st), service.WithLogger(logger.Nop()))

		Convey("Then Start fails with a validation error", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			_ = st.Close()
		})
	})
}

func TestService_IngestAndScore(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newService(t)
		ctx := context.Background()
		Reset(func() { svc.Stop(ctx) })
		d := day("2024-03-05")

		Convey("When three notices for one company are ingested", func() {
			rep, err := svc.Ingest(ctx, "TEST", []model.RawItem{
				{Date: d, URL: "https://example.test/1", Text: "Liquidation judiciaire de ACME (SIREN 123456789)"},
				{Date: d, URL: "https://example.test/2", Text: "Modification statutaire ACME (SIREN 123456789)"},
				{Date: d, URL: "https://example.test/3", Text: "Transfert de siège ACME (SIREN 123456789)"},
			})
			So(err, ShouldBeNil)
			So(rep.Written, ShouldEqual, 3)

			n, err := svc.Recompute(ctx, &d)
			So(err, ShouldBeNil)

			Convey("Then one score sums the weights under the dominant type", func() {
				So(n, ShouldEqual, 1)
				scores, err := svc.QueryScores(ctx, &d, 0)
				So(err, ShouldBeNil)
				So(scores, ShouldHaveLength, 1)
				So(scores[0].ScoreTotal, ShouldEqual, 160)
				So(scores[0].TopSignalType, ShouldEqual, model.TypeProcCollective)
				So(scores[0].CompanyName, ShouldEqual, "ACME")
				So(scores[0].Explanation, ShouldContainSubstring, "2024-03-05")
			})

			Convey("Then recomputing again changes nothing", func() {
				again, err := svc.Recompute(ctx, &d)
				So(err, ShouldBeNil)
				So(again, ShouldEqual, 1)
				scores, err := svc.QueryScores(ctx, &d, 10)
				So(err, ShouldBeNil)
				So(scores, ShouldHaveLength, 1)
				So(scores[0].ScoreTotal, ShouldEqual, 160)
			})

			Convey("Then a date without signals writes nothing", func() {
				empty := day("2024-03-06")
				n, err := svc.Recompute(ctx, &empty)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})

			Convey("Then the company detail carries its scores", func() {
				page, err := svc.ListSignals(ctx, model.SignalFilter{Limit: 1})
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 3)
				So(*page.NextOffset, ShouldEqual, 1)
				So(page.PrevOffset, ShouldBeNil)

				detail, err := svc.Company(ctx, *page.Items[0].CompanyID)
				So(err, ShouldBeNil)
				So(detail.Company.Name, ShouldEqual, "ACME")
				So(detail.RecentScores, ShouldHaveLength, 1)
			})
		})

		Convey("When the same URL is ingested with and without a registration", func() {
			_, err := svc.Ingest(ctx, "TEST", []model.RawItem{
				{Date: d, URL: "https://example.test/x", Text: "Cession de fonds: BETA (SIREN 987654321)"},
			})
			So(err, ShouldBeNil)
			_, err = svc.Ingest(ctx, "REPLAY", []model.RawItem{
				{Date: d, URL: "https://example.test/x", Text: "Cession de fonds sans identifiant"},
			})
			So(err, ShouldBeNil)

			Convey("Then one signal remains, still linked to its company and first source", func() {
				page, err := svc.ListSignals(ctx, model.SignalFilter{})
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 1)
				So(page.Items[0].Source, ShouldEqual, "TEST")
				So(page.Items[0].CompanyID, ShouldNotBeNil)
				So(page.Items[0].Excerpt, ShouldEqual, "Cession de fonds sans identifiant")
			})
		})

		Convey("When the sample collector runs", func() {
			rep, err := svc.CollectAndIngest(ctx, 0)
			So(err, ShouldBeNil)

			Convey("Then every sample is written and today's score is computable", func() {
				So(rep.Source, ShouldEqual, "BODACC")
				So(rep.Written, ShouldEqual, 8)
				n, err := svc.Recompute(ctx, nil)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				scores, err := svc.QueryScores(ctx, nil, 5)
				So(err, ShouldBeNil)
				So(scores[0].ScoreDate, ShouldEqual, "2024-03-10")
				So(scores[0].ScoreTotal, ShouldEqual, 100)
			})
		})

		Convey("When limits are out of range", func() {
			_, err := svc.QueryScores(ctx, nil, 201)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			_, err = svc.ListSignals(ctx, model.SignalFilter{Offset: -1})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			from, to := day("2024-03-05"), day("2024-03-01")
			_, err = svc.ListSignals(ctx, model.SignalFilter{DateFrom: &from, DateTo: &to})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When a missing company is requested", func() {
			_, err := svc.Company(ctx, 999)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_ConfiguredLimits(t *testing.T) {
	Convey("Given a service with narrow signal pages and wide feedback lists", t, func() {
		cfg := testConfig()
		cfg.Signals.DefaultLimit = 2
		cfg.Signals.MaxLimit = 3
		cfg.Feedback.MaxLimit = 60
		svc := newServiceWithConfig(t, cfg)
		ctx := context.Background()
		Reset(func() { svc.Stop(ctx) })

		d := day("2024-03-05")
		_, err := svc.Ingest(ctx, "TEST", []model.RawItem{
			{Date: d, URL: "https://example.test/p1", Text: "Transfert de siège"},
			{Date: d, URL: "https://example.test/p2", Text: "Modification du capital"},
			{Date: d, URL: "https://example.test/p3", Text: "Nomination du gérant"},
			{Date: d, URL: "https://example.test/p4", Text: "Changement de dénomination"},
		})
		So(err, ShouldBeNil)

		Convey("When signals are listed", func() {
			page, err := svc.ListSignals(ctx, model.SignalFilter{})
			So(err, ShouldBeNil)
			_, overErr := svc.ListSignals(ctx, model.SignalFilter{Limit: 4})

			Convey("Then the signals bounds apply, not the score bounds", func() {
				So(page.Items, ShouldHaveLength, 2)
				So(page.Total, ShouldEqual, 4)
				So(errors.Is(overErr, model.ErrValidation), ShouldBeTrue)
				_, err := svc.QueryScores(ctx, &d, 100)
				So(err, ShouldBeNil)
			})
		})

		Convey("When feedback is read", func() {
			page, err := svc.ListSignals(ctx, model.SignalFilter{Limit: 1})
			So(err, ShouldBeNil)
			id := page.Items[0].ID
			_, wide := svc.GetFeedback(ctx, id, 55)
			_, over := svc.GetFeedback(ctx, id, 61)

			Convey("Then the configured feedback maximum is enforced", func() {
				So(wide, ShouldBeNil)
				So(errors.Is(over, model.ErrValidation), ShouldBeTrue)
			})
		})
	})
}

func TestService_FeedbackAndLinks(t *testing.T) {
	Convey("Given signals whose URLs point at a test server", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/gone" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		svc := newService(t, service.WithHTTPClient(srv.Client()))
		ctx := context.Background()
		Reset(func() {
			svc.Stop(ctx)
			srv.Close()
		})

		today := day("2024-03-10")
		_, err := svc.Ingest(ctx, "TEST", []model.RawItem{
			{Date: today, URL: srv.URL + "/ok", Text: "Fusion de GAMMA (SIREN 111222333)"},
			{Date: today, URL: srv.URL + "/gone", Text: "Fusion de DELTA (SIREN 444555666)"},
		})
		So(err, ShouldBeNil)
		page, err := svc.ListSignals(ctx, model.SignalFilter{})
		So(err, ShouldBeNil)
		ids := map[string]int64{}
		for _, v := range page.Items {
			ids[v.URL] = v.ID
		}
		gone := ids[srv.URL+"/gone"]

		Convey("When the link sweep runs", func() {
			rep, err := svc.CheckLinks(ctx, linkcheck.Params{})
			So(err, ShouldBeNil)

			Convey("Then the broken link is tagged by the system user", func() {
				So(rep.Scanned, ShouldEqual, 2)
				So(rep.OK, ShouldEqual, 1)
				So(rep.Tagged, ShouldEqual, 1)
				sum, err := svc.GetFeedback(ctx, gone, 0)
				So(err, ShouldBeNil)
				So(sum.Latest, ShouldHaveLength, 1)
				So(sum.Latest[0].UserID, ShouldEqual, model.SystemUserID)
				So(sum.Latest[0].Label, ShouldEqual, model.LabelBrokenLink)
				So(*sum.Latest[0].Note, ShouldEqual, "auto(check-links): status=404")

				filtered, err := svc.ListSignals(ctx, model.SignalFilter{Label: model.LabelBrokenLink})
				So(err, ShouldBeNil)
				So(filtered.Total, ShouldEqual, 1)
			})

			Convey("Then a human verdict replaces it and later sweeps leave it alone", func() {
				fb, err := svc.SubmitFeedback(ctx, gone, 42, "reliable", "  checked manually  ")
				So(err, ShouldBeNil)
				So(*fb.Note, ShouldEqual, "checked manually")

				again, err := svc.CheckLinks(ctx, linkcheck.Params{LookbackDays: 1, Limit: 10})
				So(err, ShouldBeNil)
				So(again.Skipped, ShouldEqual, 1)
				So(again.Tagged, ShouldEqual, 0)

				sum, err := svc.GetFeedback(ctx, gone, 10)
				So(err, ShouldBeNil)
				So(sum.Counts, ShouldHaveLength, 1)
				So(sum.Counts[0].Label, ShouldEqual, model.LabelReliable)
			})
		})

		Convey("When feedback is invalid", func() {
			_, err := svc.SubmitFeedback(ctx, gone, 42, "spam", "")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			_, err = svc.SubmitFeedback(ctx, 9999, 42, "reliable", "")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			_, err = svc.CheckLinks(ctx, linkcheck.Params{LookbackDays: 91})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			_, err = svc.CheckLinks(ctx, linkcheck.Params{Limit: 1001})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("When jobs are triggered on demand", func() {
			So(svc.RunJob(ctx, service.JobRecompute), ShouldBeNil)
			So(svc.RunJob(ctx, service.JobCheckLinks), ShouldBeNil)

			Convey("Then today's scores exist", func() {
				scores, err := svc.QueryScores(ctx, nil, 0)
				So(err, ShouldBeNil)
				So(scores, ShouldHaveLength, 2)
			})
		})
	})
}
