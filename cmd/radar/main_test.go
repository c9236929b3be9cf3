package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/agiraud1/radar-fr/internal/adapters/http/api"
	"github.com/agiraud1/radar-fr/internal/adapters/repository/sqlite"
	service "github.com/agiraud1/radar-fr/internal/app"
	"github.com/agiraud1/radar-fr/internal/config"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then every subcommand is registered", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			for _, want := range []string{"serve", "recompute", "ingest", "check-links", "migrate", "smoke", "version"} {
				convey.So(names[want], convey.ShouldBeTrue)
			}
		})

		convey.Convey("Then version prints the build information", func() {
			out, err := execute("version")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "radar version "+Version)
		})

		convey.Convey("Then a malformed --date is rejected before any work", func() {
			_, err := execute("recompute", "--date", "10/03/2024")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "--date")
		})

		convey.Convey("Then a negative --limit is rejected", func() {
			_, err := execute("ingest", "--limit", "-1")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestBatchCommands(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "data", "radar.db")
	t.Setenv("RADAR_DATABASE__DRIVER", config.DriverSQLite)
	t.Setenv("RADAR_DATABASE__DSN", dsn)
	t.Setenv("RADAR_LOG_LEVEL", "error")

	convey.Convey("Given an on-disk SQLite configuration", t, func() {
		convey.Convey("When migrate runs twice", func() {
			_, err := execute("migrate")
			convey.So(err, convey.ShouldBeNil)
			_, err = execute("migrate")
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the database file exists", func() {
				_, statErr := os.Stat(dsn)
				convey.So(statErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the sample notices are ingested and today is recomputed", func() {
			out, err := execute("ingest")
			convey.So(err, convey.ShouldBeNil)
			var rep map[string]any
			convey.So(json.Unmarshal([]byte(out), &rep), convey.ShouldBeNil)
			convey.So(rep["source"], convey.ShouldEqual, "BODACC")
			convey.So(rep["received"], convey.ShouldEqual, 8)

			out, err = execute("recompute")
			convey.So(err, convey.ShouldBeNil)
			var res map[string]any
			convey.So(json.Unmarshal([]byte(out), &res), convey.ShouldBeNil)
			convey.So(res["ok"], convey.ShouldEqual, true)
			convey.So(res["updated_rows"], convey.ShouldBeGreaterThan, 0)
		})
	})
}

func TestHandler(t *testing.T) {
	convey.Convey("Given a started service behind the combined router", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Database.DSN = sqlite.MemoryDSN
		cfg.Scheduler.Enabled = false
		cfg.InternalToken = "secret"

		svc := service.New(cfg, service.WithLogger(logger.Nop()))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		convey.Reset(func() { svc.Stop(ctx) })

		h := newHandler(ctx, cfg, svc, logger.Nop())
		get := func(target string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
			return rec
		}

		convey.Convey("Then the API and the OpenAPI document share the router", func() {
			convey.So(get("/readyz").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api/scores/latest").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then the admin routes require the configured token", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/admin/score-daily", http.NoBody)
			h.ServeHTTP(rec, req)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusUnauthorized)

			rec = httptest.NewRecorder()
			req = httptest.NewRequest(http.MethodPost, "/collector/bodacc/ingest?limit=3", http.NoBody)
			req.Header.Set(api.HeaderInternalToken, "secret")
			h.ServeHTTP(rec, req)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"received":3`)
		})
	})
}
