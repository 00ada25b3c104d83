// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/relabs-tech/imu_buffer_bridge/internal/bridge"
	"github.com/relabs-tech/imu_buffer_bridge/internal/gps"
	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
)

// newWebMux routes the register console and the JSON API.
func newWebMux(console *RegisterConsole, d *bridge.Dispatcher, rc *gps.Receiver) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws/registers", console)

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		msg := StatusMessage{Time: time.Now().UTC().Format(time.RFC3339), Bridge: d.Stats()}
		if rc != nil {
			fix := rc.Fix()
			msg.GPS = &fix
		}
		writeJSON(w, msg)
	})

	mux.HandleFunc("/api/registers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, regmap.Info())
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// runWeb serves mux on port until ctx is done.
func runWeb(ctx context.Context, port int, mux *http.ServeMux) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web: listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}
