// Package httpstatus serves the most recent readings as JSON.
package httpstatus

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"

	"github.com/ericogr/mcp9800-to-mqtt/pkg/config"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/output"
	"github.com/ericogr/mcp9800-to-mqtt/pkg/sensor"
)

const (
	DefaultListen = ":8080"
	httpTimeout   = 3 * time.Second
)

type HTTPOutput struct {
	mu     sync.RWMutex
	latest []sensor.Reading

	server *http.Server
}

func NewHTTP(cfg config.HTTPConfig) (output.Output, error) {
	listen := cfg.Listen
	if listen == "" {
		listen = DefaultListen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("http listen: %w", err)
	}
	h := &HTTPOutput{}
	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http status server stopped", "err", err)
		}
	}()
	log.Info("http status listening", "addr", ln.Addr().String())
	return h, nil
}

// Handler returns the router serving /readings and /readings/:register.
func (h *HTTPOutput) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/readings", h.handleReadings)
	router.GET("/readings/:register", h.handleRegister)
	return router
}

func (h *HTTPOutput) Publish(readings []sensor.Reading) error {
	snapshot := make([]sensor.Reading, len(readings))
	copy(snapshot, readings)
	h.mu.Lock()
	h.latest = snapshot
	h.mu.Unlock()
	return nil
}

func (h *HTTPOutput) Close() error {
	if h.server == nil {
		return nil
	}
	return h.server.Close()
}

func (h *HTTPOutput) handleReadings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.mu.RLock()
	readings := h.latest
	h.mu.RUnlock()
	if readings == nil {
		readings = []sensor.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *HTTPOutput) handleRegister(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	name := p.ByName("register")
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, reading := range h.latest {
		if reading.Register == name {
			writeJSON(w, http.StatusOK, reading)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no reading for register %q", name)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("http status encode", "err", err)
	}
}
