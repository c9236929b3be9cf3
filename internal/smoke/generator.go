package smoke

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/agiraud1/radar-fr/internal/domain/classify"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/scoring"
)

// templates cover every built-in rule plus the fallback. %[1]s is the
// company name, %[2]s its registration number.
var templates = []string{
	"Jugement d'ouverture de liquidation judiciaire pour %[1]s (SIREN %[2]s).",
	"Ouverture d'une procédure de redressement judiciaire: %[1]s (SIREN %[2]s).",
	"Cession de fonds de commerce: %[1]s (SIREN %[2]s) cède son activité.",
	"Projet de fusion: %[1]s (SIREN %[2]s) absorbe une filiale.",
	"Modification statutaire de %[1]s (SIREN %[2]s).",
}

// Company is one generated company and the score expected for it.
type Company struct {
	Registration string
	Name         string
	Expected     model.DailyScore
}

// Plan is the generated workload of a run.
type Plan struct {
	RunID     string
	Notices   []Notice
	Companies []Company
}

// Generate builds a deterministic workload for cfg. Expected scores are
// computed with the built-in rules, so the server must run with them too.
func Generate(cfg Config, classifier *classify.Classifier) Plan {
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // test data
	runID := letters(rng, 6)
	day := model.DateOf(cfg.Date)
	date := model.FormatDate(day)

	plan := Plan{RunID: runID}
	seen := make(map[string]bool, cfg.Companies)
	var groups []model.SignalGroup
	for i := 0; i < cfg.Companies; i++ {
		reg := fmt.Sprintf("9%08d", rng.Intn(100_000_000))
		for seen[reg] {
			reg = fmt.Sprintf("9%08d", rng.Intn(100_000_000))
		}
		seen[reg] = true
		name := fmt.Sprintf("SMOKE %s %s SAS", runID, alpha(i))

		byType := map[model.SignalType]*model.SignalGroup{}
		n := 1 + rng.Intn(cfg.MaxNoticesPerCompany)
		for j := 0; j < n; j++ {
			text := fmt.Sprintf(templates[rng.Intn(len(templates))], name, reg)
			c := classifier.Classify(text)
			g, ok := byType[c.Type]
			if !ok {
				g = &model.SignalGroup{CompanyID: int64(i), Type: c.Type}
				byType[c.Type] = g
			}
			g.WeightSum += int64(c.Weight)
			g.Count++
			plan.Notices = append(plan.Notices, Notice{
				Date: date,
				Text: text,
				URL:  fmt.Sprintf("https://smoke.invalid/%s/%d/%d", runID, i, j),
			})
		}
		for _, g := range byType {
			groups = append(groups, *g)
		}
		plan.Companies = append(plan.Companies, Company{Registration: reg, Name: name})
	}

	for _, s := range scoring.Aggregate(day, groups) {
		plan.Companies[s.CompanyID].Expected = s
	}
	rng.Shuffle(len(plan.Notices), func(i, j int) {
		plan.Notices[i], plan.Notices[j] = plan.Notices[j], plan.Notices[i]
	})
	return plan
}

// Batches splits notices into slices of at most size items.
func Batches(notices []Notice, size int) [][]Notice {
	var out [][]Notice
	for len(notices) > 0 {
		n := min(size, len(notices))
		out = append(out, notices[:n])
		notices = notices[n:]
	}
	return out
}

func letters(rng *rand.Rand, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('A' + rng.Intn(26)))
	}
	return b.String()
}

// alpha renders i in bijective base 26: 0 -> A, 25 -> Z, 26 -> AA.
func alpha(i int) string {
	var buf []byte
	for i++; i > 0; i = (i - 1) / 26 {
		buf = append([]byte{byte('A' + (i-1)%26)}, buf...)
	}
	return string(buf)
}
