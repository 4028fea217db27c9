package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/region"
	"github.com/commonwealth-analytics/thriving-index/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve pipeline results over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		idx, _, err := loadRegionIndex(cfg.Geography)
		if err != nil {
			return err
		}

		mux := resultsMux(st, idx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resultsMux builds the read-only results API.
func resultsMux(st store.Store, idx *region.Index) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/regions", func(w http.ResponseWriter, r *http.Request) {
		regions := make([]*region.Region, 0, idx.NumRegions())
		for _, code := range idx.Codes() {
			if reg, ok := idx.Region(code); ok {
				regions = append(regions, reg)
			}
		}
		writeJSON(w, http.StatusOK, regions)
	})

	mux.HandleFunc("GET /api/variables", func(w http.ResponseWriter, r *http.Request) {
		variables, err := st.ListRegionalVariables(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list variables failed"})
			return
		}
		if variables == nil {
			variables = []string{}
		}
		writeJSON(w, http.StatusOK, variables)
	})

	mux.HandleFunc("GET /api/series/{variable}", func(w http.ResponseWriter, r *http.Request) {
		series, err := st.LoadRegionalSeries(r.Context(), r.PathValue("variable"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "variable not found"})
			return
		}
		writeJSON(w, http.StatusOK, series)
	})

	mux.HandleFunc("GET /api/coverage", func(w http.ResponseWriter, r *http.Request) {
		variables, err := st.ListRegionalVariables(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list variables failed"})
			return
		}
		coverage := make(map[string]any, len(variables))
		for _, variable := range variables {
			report, err := st.LoadAggregationReport(r.Context(), variable)
			if err != nil {
				continue
			}
			coverage[variable] = report
		}
		writeJSON(w, http.StatusOK, coverage)
	})

	mux.HandleFunc("GET /api/peers", func(w http.ResponseWriter, r *http.Request) {
		runID, artifact, err := st.LatestMatchRun(r.Context())
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no match runs"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "artifact": artifact})
	})

	mux.HandleFunc("GET /api/peers/{code}", func(w http.ResponseWriter, r *http.Request) {
		_, artifact, err := st.LatestMatchRun(r.Context())
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no match runs"})
			return
		}
		entry, ok := artifact.Targets[r.PathValue("code")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown target region"})
			return
		}
		writeJSON(w, http.StatusOK, entry)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}
