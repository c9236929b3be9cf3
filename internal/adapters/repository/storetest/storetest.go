// Package storetest holds the behaviour suite every repository.Store backend
// must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
	"github.com/agiraud1/radar-fr/internal/domain/model"
)

// Opener returns an empty, migrated store. The suite closes it.
type Opener func(t *testing.T) repository.Store

func day(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func signal(companyID *int64, url, date string, typ model.SignalType, weight int, excerpt string) model.Signal {
	return model.Signal{
		CompanyID:  companyID,
		Source:     "BODACC",
		Type:       typ,
		EventDate:  day(date),
		URL:        url,
		Excerpt:    excerpt,
		Weight:     weight,
		Confidence: 0.9,
	}
}

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()

	convey.Convey("Given an empty store", t, func() {
		st := open(t)
		convey.Reset(func() { _ = st.Close() })

		convey.Convey("When a company is upserted twice", func() {
			id1, err := st.UpsertCompany(ctx, model.CountryFR, "123456789", model.UnknownCompanyName)
			convey.So(err, convey.ShouldBeNil)
			id2, err := st.UpsertCompany(ctx, model.CountryFR, "123456789", "ACME SAS")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the id is stable and the placeholder name is replaced", func() {
				convey.So(id2, convey.ShouldEqual, id1)
				c, err := st.Company(ctx, id1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(c.Name, convey.ShouldEqual, "ACME SAS")
				convey.So(*c.RegistrationNumber, convey.ShouldEqual, "123456789")
				convey.So(c.Country, convey.ShouldEqual, model.CountryFR)
			})

			convey.Convey("Then a resolved name is never downgraded", func() {
				_, err := st.UpsertCompany(ctx, model.CountryFR, "123456789", model.UnknownCompanyName)
				convey.So(err, convey.ShouldBeNil)
				c, err := st.Company(ctx, id1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(c.Name, convey.ShouldEqual, "ACME SAS")
			})
		})

		convey.Convey("When an unknown company is requested", func() {
			_, err := st.Company(ctx, 4242)

			convey.Convey("Then ErrNotFound is returned", func() {
				convey.So(errors.Is(err, model.ErrNotFound), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a signal URL is written twice", func() {
			cid, err := st.UpsertCompany(ctx, model.CountryFR, "111111111", "ALPHA")
			convey.So(err, convey.ShouldBeNil)
			id1, err := st.UpsertSignal(ctx, signal(&cid, "https://example.test/a", "2024-05-01", model.TypeOther, 30, "first"))
			convey.So(err, convey.ShouldBeNil)
			again := signal(nil, "https://example.test/a", "2024-05-02", model.TypeProcCollective, 100, "second")
			again.Source = "INFOGREFFE"
			id2, err := st.UpsertSignal(ctx, again)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then one row is kept, refreshed, with its company link and source intact", func() {
				convey.So(id2, convey.ShouldEqual, id1)
				sigs, err := st.RecentSignals(ctx, day("2024-01-01"), 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(sigs, convey.ShouldHaveLength, 1)
				convey.So(sigs[0].Type, convey.ShouldEqual, model.TypeProcCollective)
				convey.So(sigs[0].Weight, convey.ShouldEqual, 100)
				convey.So(sigs[0].Excerpt, convey.ShouldEqual, "second")
				convey.So(model.FormatDate(sigs[0].EventDate), convey.ShouldEqual, "2024-05-02")
				convey.So(sigs[0].CompanyID, convey.ShouldNotBeNil)
				convey.So(*sigs[0].CompanyID, convey.ShouldEqual, cid)
				convey.So(sigs[0].Source, convey.ShouldEqual, "BODACC")
			})
		})

		convey.Convey("When signals of several companies share a date", func() {
			a, _ := st.UpsertCompany(ctx, model.CountryFR, "111111111", "ALPHA")
			b, _ := st.UpsertCompany(ctx, model.CountryFR, "222222222", "BETA")
			for _, s := range []model.Signal{
				signal(&a, "https://example.test/1", "2024-05-01", model.TypeProcCollective, 100, ""),
				signal(&a, "https://example.test/2", "2024-05-01", model.TypeOther, 30, ""),
				signal(&a, "https://example.test/3", "2024-05-01", model.TypeOther, 30, ""),
				signal(&b, "https://example.test/4", "2024-05-01", model.TypeSaleOfBusiness, 70, ""),
				signal(nil, "https://example.test/5", "2024-05-01", model.TypeOther, 30, ""),
				signal(&b, "https://example.test/6", "2024-05-02", model.TypeOther, 30, ""),
			} {
				_, err := st.UpsertSignal(ctx, s)
				convey.So(err, convey.ShouldBeNil)
			}

			convey.Convey("Then groups roll up per company and type, skipping orphans", func() {
				groups, err := st.SignalGroups(ctx, day("2024-05-01"))
				convey.So(err, convey.ShouldBeNil)
				convey.So(groups, convey.ShouldHaveLength, 3)
				sums := map[int64]int64{}
				for _, g := range groups {
					sums[g.CompanyID] += g.WeightSum
					if g.CompanyID == a && g.Type == model.TypeOther {
						convey.So(g.Count, convey.ShouldEqual, 2)
					}
				}
				convey.So(sums[a], convey.ShouldEqual, 160)
				convey.So(sums[b], convey.ShouldEqual, 70)
			})

			convey.Convey("Then scores rank by total and are overwritten in place", func() {
				d := day("2024-05-01")
				convey.So(st.UpsertDailyScore(ctx, model.DailyScore{CompanyID: b, ScoreDate: d, ScoreTotal: 70, TopSignalType: model.TypeSaleOfBusiness}), convey.ShouldBeNil)
				convey.So(st.UpsertDailyScore(ctx, model.DailyScore{CompanyID: a, ScoreDate: d, ScoreTotal: 10, TopSignalType: model.TypeOther}), convey.ShouldBeNil)
				convey.So(st.UpsertDailyScore(ctx, model.DailyScore{CompanyID: a, ScoreDate: d, ScoreTotal: 160, TopSignalType: model.TypeProcCollective, Explanation: "x"}), convey.ShouldBeNil)

				scores, err := st.QueryScores(ctx, d, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(scores, convey.ShouldHaveLength, 2)
				convey.So(scores[0].CompanyID, convey.ShouldEqual, a)
				convey.So(scores[0].ScoreTotal, convey.ShouldEqual, 160)
				convey.So(scores[0].CompanyName, convey.ShouldEqual, "ALPHA")
				convey.So(scores[0].ScoreDate, convey.ShouldEqual, "2024-05-01")
				convey.So(scores[0].TopSignalType, convey.ShouldEqual, model.TypeProcCollective)
				convey.So(scores[1].CompanyID, convey.ShouldEqual, b)

				top, err := st.QueryScores(ctx, d, 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(top, convey.ShouldHaveLength, 1)

				none, err := st.QueryScores(ctx, day("2024-05-03"), 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(none, convey.ShouldBeEmpty)

				hist, err := st.CompanyScores(ctx, a, 5)
				convey.So(err, convey.ShouldBeNil)
				convey.So(hist, convey.ShouldHaveLength, 1)
			})

			convey.Convey("Then equal totals are ordered by company id", func() {
				d := day("2024-05-01")
				convey.So(st.UpsertDailyScore(ctx, model.DailyScore{CompanyID: b, ScoreDate: d, ScoreTotal: 50, TopSignalType: model.TypeOther}), convey.ShouldBeNil)
				convey.So(st.UpsertDailyScore(ctx, model.DailyScore{CompanyID: a, ScoreDate: d, ScoreTotal: 50, TopSignalType: model.TypeOther}), convey.ShouldBeNil)
				scores, err := st.QueryScores(ctx, d, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(scores[0].CompanyID, convey.ShouldBeLessThan, scores[1].CompanyID)
			})

			convey.Convey("Then recent signals are newest first and bounded", func() {
				sigs, err := st.RecentSignals(ctx, day("2024-05-01"), 2)
				convey.So(err, convey.ShouldBeNil)
				convey.So(sigs, convey.ShouldHaveLength, 2)
				convey.So(sigs[0].URL, convey.ShouldEqual, "https://example.test/6")

				later, err := st.RecentSignals(ctx, day("2024-05-02"), 50)
				convey.So(err, convey.ShouldBeNil)
				convey.So(later, convey.ShouldHaveLength, 1)
			})

			convey.Convey("Then counts reflect the rows", func() {
				c, err := st.Counts(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(c.Companies, convey.ShouldEqual, 2)
				convey.So(c.Signals, convey.ShouldEqual, 6)
			})
		})

		convey.Convey("When feedback is written on a signal", func() {
			sid, err := st.UpsertSignal(ctx, signal(nil, "https://example.test/f", "2024-05-01", model.TypeOther, 30, ""))
			convey.So(err, convey.ShouldBeNil)
			now := time.Now().UTC().Truncate(time.Millisecond)
			note := "looks fine"

			first, err := st.SubmitFeedback(ctx, model.Feedback{SignalID: sid, UserID: 7, Label: model.LabelReliable, Note: &note, CreatedAt: now})
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the stored row is returned", func() {
				convey.So(first.ID, convey.ShouldBeGreaterThan, 0)
				convey.So(first.Label, convey.ShouldEqual, model.LabelReliable)
				convey.So(*first.Note, convey.ShouldEqual, note)
				convey.So(first.CreatedAt.Equal(now), convey.ShouldBeTrue)
			})

			convey.Convey("Then a second write by the same user overwrites it", func() {
				second, err := st.SubmitFeedback(ctx, model.Feedback{SignalID: sid, UserID: 7, Label: model.LabelUnclear, CreatedAt: now.Add(time.Second)})
				convey.So(err, convey.ShouldBeNil)
				convey.So(second.ID, convey.ShouldEqual, first.ID)
				convey.So(second.Note, convey.ShouldBeNil)

				latest, err := st.LatestFeedback(ctx, sid, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(latest, convey.ShouldHaveLength, 1)
				convey.So(latest[0].Label, convey.ShouldEqual, model.LabelUnclear)
			})

			convey.Convey("Then a system row is refused next to the human one", func() {
				written, err := st.MarkSystemFeedback(ctx, model.Feedback{SignalID: sid, UserID: model.SystemUserID, Label: model.LabelBrokenLink, CreatedAt: now.Add(2 * time.Second)})
				convey.So(err, convey.ShouldBeNil)
				convey.So(written, convey.ShouldBeFalse)

				counts, err := st.FeedbackCounts(ctx, sid)
				convey.So(err, convey.ShouldBeNil)
				convey.So(counts, convey.ShouldHaveLength, 1)
				convey.So(counts[0].Label, convey.ShouldEqual, model.LabelReliable)
			})
		})

		convey.Convey("When the link checker marks an unlabelled signal", func() {
			sid, err := st.UpsertSignal(ctx, signal(nil, "https://example.test/g", "2024-05-01", model.TypeOther, 30, ""))
			convey.So(err, convey.ShouldBeNil)
			now := time.Now().UTC().Truncate(time.Millisecond)
			mark := model.Feedback{SignalID: sid, UserID: model.SystemUserID, Label: model.LabelBrokenLink, CreatedAt: now}

			written, err := st.MarkSystemFeedback(ctx, mark)
			convey.So(err, convey.ShouldBeNil)
			convey.So(written, convey.ShouldBeTrue)

			convey.Convey("Then marking again overwrites the single system row", func() {
				mark.CreatedAt = now.Add(time.Second)
				written, err := st.MarkSystemFeedback(ctx, mark)
				convey.So(err, convey.ShouldBeNil)
				convey.So(written, convey.ShouldBeTrue)

				latest, err := st.LatestFeedback(ctx, sid, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(latest, convey.ShouldHaveLength, 1)
				convey.So(latest[0].UserID, convey.ShouldEqual, model.SystemUserID)
				convey.So(latest[0].CreatedAt.Equal(mark.CreatedAt), convey.ShouldBeTrue)
			})

			convey.Convey("Then a human verdict replaces the system row in the same write", func() {
				fb, err := st.SubmitFeedback(ctx, model.Feedback{SignalID: sid, UserID: 9, Label: model.LabelReliable, CreatedAt: now.Add(time.Second)})
				convey.So(err, convey.ShouldBeNil)
				convey.So(fb.UserID, convey.ShouldEqual, 9)

				latest, err := st.LatestFeedback(ctx, sid, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(latest, convey.ShouldHaveLength, 1)
				convey.So(latest[0].UserID, convey.ShouldEqual, 9)
			})

			convey.Convey("Then a human write on a missing signal fails without side effects", func() {
				_, err := st.SubmitFeedback(ctx, model.Feedback{SignalID: sid + 1000, UserID: 9, Label: model.LabelReliable, CreatedAt: now})
				convey.So(err, convey.ShouldNotBeNil)

				latest, err := st.LatestFeedback(ctx, sid, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(latest, convey.ShouldHaveLength, 1)
				convey.So(latest[0].UserID, convey.ShouldEqual, model.SystemUserID)
			})
		})

		convey.Convey("When existence is checked", func() {
			sid, err := st.UpsertSignal(ctx, signal(nil, "https://example.test/f", "2024-05-01", model.TypeOther, 30, ""))
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then existence checks distinguish known signals", func() {
				ok, err := st.SignalExists(ctx, sid)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ok, convey.ShouldBeTrue)
				ok, err = st.SignalExists(ctx, sid+1000)
				convey.So(err, convey.ShouldBeNil)
				convey.So(ok, convey.ShouldBeFalse)

				none, err := st.LatestFeedback(ctx, sid+1000, 10)
				convey.So(err, convey.ShouldBeNil)
				convey.So(none, convey.ShouldNotBeNil)
				convey.So(none, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When signals are listed with filters", func() {
			a, _ := st.UpsertCompany(ctx, model.CountryFR, "333333333", "GAMMA")
			ids := map[string]int64{}
			for _, s := range []model.Signal{
				signal(&a, "https://example.test/l1", "2024-04-01", model.TypeProcCollective, 100, "Ouverture d'une procédure de redressement judiciaire"),
				signal(&a, "https://example.test/l2", "2024-04-02", model.TypeSaleOfBusiness, 70, "Cession de fonds de commerce"),
				signal(nil, "https://example.test/l3", "2024-04-03", model.TypeOther, 30, "Modification du capital 100% libéré"),
				signal(nil, "https://example.test/l4", "2024-04-04", model.TypeOther, 30, "Transfert de siège"),
			} {
				id, err := st.UpsertSignal(ctx, s)
				convey.So(err, convey.ShouldBeNil)
				ids[s.URL] = id
			}
			_, err := st.SubmitFeedback(ctx, model.Feedback{SignalID: ids["https://example.test/l2"], UserID: 3, Label: model.LabelFalsePositive, CreatedAt: time.Now()})
			convey.So(err, convey.ShouldBeNil)

			list := func(f model.SignalFilter) ([]string, int) {
				if f.Limit == 0 {
					f.Limit = 50
				}
				views, total, err := st.ListSignals(ctx, f)
				convey.So(err, convey.ShouldBeNil)
				urls := make([]string, 0, len(views))
				for _, v := range views {
					urls = append(urls, v.URL)
				}
				return urls, total
			}

			convey.Convey("Then an empty filter returns everything newest first", func() {
				urls, total := list(model.SignalFilter{})
				convey.So(total, convey.ShouldEqual, 4)
				convey.So(urls, convey.ShouldResemble, []string{
					"https://example.test/l4", "https://example.test/l3",
					"https://example.test/l2", "https://example.test/l1",
				})
			})

			convey.Convey("Then the text query is case-insensitive and treats % literally", func() {
				urls, total := list(model.SignalFilter{Query: "CESSION"})
				convey.So(total, convey.ShouldEqual, 1)
				convey.So(urls, convey.ShouldResemble, []string{"https://example.test/l2"})

				urls, _ = list(model.SignalFilter{Query: "100%"})
				convey.So(urls, convey.ShouldResemble, []string{"https://example.test/l3"})

				_, total = list(model.SignalFilter{Query: "%"})
				convey.So(total, convey.ShouldEqual, 1)
			})

			convey.Convey("Then type, label and date range narrow the listing", func() {
				_, total := list(model.SignalFilter{Type: model.TypeOther})
				convey.So(total, convey.ShouldEqual, 2)

				urls, _ := list(model.SignalFilter{Label: model.LabelFalsePositive})
				convey.So(urls, convey.ShouldResemble, []string{"https://example.test/l2"})

				from, to := day("2024-04-02"), day("2024-04-03")
				urls, total = list(model.SignalFilter{DateFrom: &from, DateTo: &to})
				convey.So(total, convey.ShouldEqual, 2)
				convey.So(urls, convey.ShouldResemble, []string{"https://example.test/l3", "https://example.test/l2"})
			})

			convey.Convey("Then paging keeps the total and joins company data", func() {
				views, total, err := st.ListSignals(ctx, model.SignalFilter{Limit: 2, Offset: 2})
				convey.So(err, convey.ShouldBeNil)
				convey.So(total, convey.ShouldEqual, 4)
				convey.So(views, convey.ShouldHaveLength, 2)
				convey.So(views[1].URL, convey.ShouldEqual, "https://example.test/l1")
				convey.So(*views[1].CompanyName, convey.ShouldEqual, "GAMMA")
				convey.So(views[1].EventDate, convey.ShouldEqual, "2024-04-01")

				past, total, err := st.ListSignals(ctx, model.SignalFilter{Limit: 2, Offset: 10})
				convey.So(err, convey.ShouldBeNil)
				convey.So(total, convey.ShouldEqual, 4)
				convey.So(past, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the store health is checked", func() {
			h := st.Health(ctx)

			convey.Convey("Then it reports healthy", func() {
				convey.So(h.Healthy(), convey.ShouldBeTrue)
				convey.So(h.Driver, convey.ShouldNotBeEmpty)
			})

			convey.Convey("Then migrating again is a no-op", func() {
				convey.So(st.Migrate(ctx), convey.ShouldBeNil)
			})
		})
	})
}
