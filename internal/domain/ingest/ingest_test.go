package ingest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agiraud1/radar-fr/internal/domain/classify"
	"github.com/agiraud1/radar-fr/internal/domain/ingest"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeStore mirrors the upsert semantics of the SQL stores.
type fakeStore struct {
	mu         sync.Mutex
	companies  map[string]*model.Company
	signals    map[string]*model.Signal
	nextID     int64
	failURL    string
	signalCall int
}

func newFakeStore() *fakeStore {
	return &fakeStore{companies: map[string]*model.Company{}, signals: map[string]*model.Signal{}}
}

func (f *fakeStore) UpsertCompany(_ context.Context, country, reg, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.companies[reg]; ok {
		if c.Name == model.UnknownCompanyName && name != model.UnknownCompanyName {
			c.Name = name
		}
		return c.ID, nil
	}
	f.nextID++
	r := reg
	f.companies[reg] = &model.Company{ID: f.nextID, Country: country, RegistrationNumber: &r, Name: name}
	return f.nextID, nil
}

func (f *fakeStore) UpsertSignal(_ context.Context, s model.Signal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signalCall++
	if s.URL == f.failURL {
		return 0, model.ErrTransientIO
	}
	if old, ok := f.signals[s.URL]; ok {
		if old.CompanyID != nil {
			s.CompanyID = old.CompanyID
		}
		s.ID = old.ID
		f.signals[s.URL] = &s
		return s.ID, nil
	}
	f.nextID++
	s.ID = f.nextID
	f.signals[s.URL] = &s
	return s.ID, nil
}

func TestIngest(t *testing.T) {
	Convey("Given an ingestor over an empty store", t, func() {
		ctx := context.Background()
		store := newFakeStore()
		c, err := classify.New()
		So(err, ShouldBeNil)
		in := ingest.New(store, c)
		day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

		Convey("When a notice with a registration number is ingested", func() {
			rep := in.Ingest(ctx, "BODACC", []model.RawItem{{
				Date: day,
				URL:  "https://x/1",
				Text: "Ouverture d'une procédure de redressement judiciaire pour SOCIETE DURAND SAS (SIREN 512345678).",
			}})

			Convey("Then a company and a classified signal are written", func() {
				So(rep.Written, ShouldEqual, 1)
				So(rep.Failed, ShouldEqual, 0)
				So(store.companies["512345678"].Name, ShouldEqual, "SOCIETE DURAND SAS")
				s := store.signals["https://x/1"]
				So(s.Type, ShouldEqual, model.TypeProcCollective)
				So(s.Weight, ShouldEqual, 100)
				So(*s.CompanyID, ShouldEqual, store.companies["512345678"].ID)
				So(s.Source, ShouldEqual, "BODACC")
			})
		})

		Convey("When a notice has no registration number", func() {
			rep := in.Ingest(ctx, "BODACC", []model.RawItem{{Date: day, URL: "https://x/2", Text: "Projet de fusion"}})

			Convey("Then the signal is stored without a company", func() {
				So(rep.Written, ShouldEqual, 1)
				So(rep.Unresolved, ShouldEqual, 1)
				So(store.signals["https://x/2"].CompanyID, ShouldBeNil)
			})
		})

		Convey("When the same URL is ingested twice", func() {
			in.Ingest(ctx, "BODACC", []model.RawItem{{Date: day, URL: "https://x/3", Text: "Cession de fonds: MARTIN (SIREN 498765432)"}})
			in.Ingest(ctx, "BODACC", []model.RawItem{{Date: day.AddDate(0, 0, 1), URL: "https://x/3", Text: "Rectificatif sans numéro"}})

			Convey("Then one signal exists and keeps its company", func() {
				So(store.signals, ShouldHaveLength, 1)
				s := store.signals["https://x/3"]
				So(s.CompanyID, ShouldNotBeNil)
				So(s.Type, ShouldEqual, model.TypeOther)
				So(s.EventDate, ShouldEqual, day.AddDate(0, 0, 1))
			})
		})

		Convey("When a batch carries exact duplicates and invalid items", func() {
			item := model.RawItem{Date: day, URL: "https://x/4", Text: "Fusion"}
			rep := in.Ingest(ctx, "BODACC", []model.RawItem{item, item, {Date: day, Text: "no url"}, {URL: "https://x/5", Text: "no date"}})

			Convey("Then duplicates are skipped and invalid items fail", func() {
				So(rep.Received, ShouldEqual, 4)
				So(rep.Written, ShouldEqual, 1)
				So(rep.Duplicates, ShouldEqual, 1)
				So(rep.Failed, ShouldEqual, 2)
				So(store.signalCall, ShouldEqual, 1)
			})
		})

		Convey("When one item fails to write", func() {
			store.failURL = "https://x/bad"
			rep := in.Ingest(ctx, "BODACC", []model.RawItem{
				{Date: day, URL: "https://x/bad", Text: "Fusion"},
				{Date: day, URL: "https://x/good", Text: "Fusion"},
			})

			Convey("Then the rest of the batch is still written", func() {
				So(rep.Failed, ShouldEqual, 1)
				So(rep.Written, ShouldEqual, 1)
				So(store.signals, ShouldContainKey, "https://x/good")
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			rep := in.Ingest(cctx, "BODACC", []model.RawItem{{Date: day, URL: "https://x/6", Text: "Fusion"}})

			Convey("Then nothing is written", func() {
				So(rep.Failed, ShouldEqual, 1)
				So(store.signals, ShouldBeEmpty)
			})
		})
	})
}

func TestExtract(t *testing.T) {
	Convey("Given notice texts", t, func() {
		Convey("When a SIREN is present", func() {
			reg, ok := ingest.ExtractRegistration("Plan de cession partielle pour METAINDUSTRIE SAS (SIREN 612009876).")
			So(ok, ShouldBeTrue)
			So(reg, ShouldEqual, "612009876")
		})

		Convey("When a bare 9-digit number is present", func() {
			reg, ok := ingest.ExtractRegistration("Société 545667788 radiée")
			So(ok, ShouldBeTrue)
			So(reg, ShouldEqual, "545667788")
		})

		Convey("When no number is present", func() {
			_, ok := ingest.ExtractRegistration("SIREN inconnu 1234")
			So(ok, ShouldBeFalse)
		})

		Convey("When resolving names", func() {
			n, ok := ingest.ResolveName("Transfert de siège social: LOGI-TRANS (SIREN 801223344) vers Lyon.")
			So(ok, ShouldBeTrue)
			So(n, ShouldEqual, "LOGI-TRANS")

			n, ok = ingest.ResolveName("Cession d'actifs non stratégiques par ALPHA AUTO (SIREN 512334455).")
			So(ok, ShouldBeTrue)
			So(n, ShouldEqual, "ALPHA AUTO")

			_, ok = ingest.ResolveName("cession par la société (SIREN 512334455)")
			So(ok, ShouldBeFalse)

			_, ok = ingest.ResolveName("aucun numéro")
			So(ok, ShouldBeFalse)
		})
	})
}
