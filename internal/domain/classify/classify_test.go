package classify_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/agiraud1/radar-fr/internal/domain/classify"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassifyDefaults(t *testing.T) {
	Convey("Given the default classifier", t, func() {
		c, err := classify.New()
		So(err, ShouldBeNil)

		Convey("When the text mentions a collective proceeding", func() {
			got := c.Classify("Jugement d'ouverture de LIQUIDATION JUDICIAIRE simplifiée")

			Convey("Then it is PROC_COLLECTIVE with full weight", func() {
				So(got.Type, ShouldEqual, model.TypeProcCollective)
				So(got.Weight, ShouldEqual, 100)
				So(got.Confidence, ShouldEqual, 0.95)
			})
		})

		Convey("When the text mentions both a merger and a sale of business", func() {
			got := c.Classify("Projet de fusion suivi d'une cession de fonds de commerce")

			Convey("Then the higher priority rule wins", func() {
				So(got.Type, ShouldEqual, model.TypeSaleOfBusiness)
				So(got.Weight, ShouldEqual, 70)
				So(got.Confidence, ShouldEqual, 0.80)
			})
		})

		Convey("When the text mentions a merger", func() {
			got := c.Classify("Projet de Fusion par absorption")

			Convey("Then it is an M&A project", func() {
				So(got.Type, ShouldEqual, model.TypeMAProject)
				So(got.Weight, ShouldEqual, 60)
			})
		})

		Convey("When nothing matches", func() {
			got := c.Classify("Transfert de siège social")

			Convey("Then the fallback applies", func() {
				So(got.Type, ShouldEqual, model.TypeOther)
				So(got.Weight, ShouldEqual, 30)
				So(got.Confidence, ShouldEqual, 0.50)
				So(got.Rule, ShouldEqual, "fallback")
			})
		})

		Convey("When classifying concurrently", func() {
			var wg sync.WaitGroup
			results := make([]model.SignalType, 32)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i] = c.Classify("redressement judiciaire").Type
				}(i)
			}
			wg.Wait()

			Convey("Then every call agrees", func() {
				for _, r := range results {
					So(r, ShouldEqual, model.TypeProcCollective)
				}
			})
		})
	})
}

func TestClassifyCustomRules(t *testing.T) {
	Convey("Given a custom rule table", t, func() {
		rules := []classify.Rule{
			{Name: "dissolution", Kind: classify.MatchAll, Terms: []string{"Dissolution", "anticipée"}, Type: "DISSOLUTION", Weight: 80, Confidence: 0.9},
		}
		c, err := classify.New(
			classify.WithRules(rules),
			classify.WithFallback(model.Classification{Type: model.TypeOther, Weight: 5, Confidence: 0.1}),
		)
		So(err, ShouldBeNil)

		Convey("When all terms are present", func() {
			So(c.Classify("DISSOLUTION ANTICIPÉE de la société").Type, ShouldEqual, model.SignalType("DISSOLUTION"))
		})

		Convey("When only one term is present", func() {
			got := c.Classify("dissolution")

			Convey("Then the custom fallback applies", func() {
				So(got.Weight, ShouldEqual, 5)
				So(got.Rule, ShouldEqual, "fallback")
			})
		})

		Convey("When the caller mutates the input table afterwards", func() {
			rules[0].Type = "MUTATED"

			Convey("Then the classifier is unaffected", func() {
				So(c.Rules()[0].Type, ShouldEqual, model.SignalType("DISSOLUTION"))
			})
		})
	})

	Convey("Given an invalid rule table", t, func() {
		cases := []classify.Rule{
			{Name: "no-terms", Kind: classify.MatchAny, Type: "X", Weight: 1, Confidence: 0.5},
			{Name: "bad-kind", Kind: "some", Terms: []string{"a"}, Type: "X", Weight: 1, Confidence: 0.5},
			{Name: "bad-conf", Kind: classify.MatchAny, Terms: []string{"a"}, Type: "X", Weight: 1, Confidence: 1.5},
			{Name: "no-type", Kind: classify.MatchAny, Terms: []string{"a"}, Weight: 1, Confidence: 0.5},
		}
		for _, r := range cases {
			_, err := classify.New(classify.WithRules([]classify.Rule{r}))
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		}
	})
}
