package collector

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// Connection reports whether the radio link is up; mqtt.Client satisfies it.
type Connection interface {
	IsConnectionOpen() bool
}

// NewHTTPMux serves /healthz, /readyz, /data/latest and, with a gatherer, /metrics.
func NewHTTPMux(svc *Service, conn Connection, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", &healthHandler{svc: svc, conn: conn})
	mux.Handle("/readyz", &readyHandler{svc: svc, conn: conn, minErrorAge: 2 * time.Second})
	mux.HandleFunc("/data/latest", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list := svc.Latest(q.Get("metric"), q.Get("device"))

		type outT struct {
			Topic     string  `json:"topic"`
			Metric    string  `json:"metric"`
			DeviceID  string  `json:"device_id,omitempty"`
			Value     float64 `json:"value"`
			Timestamp string  `json:"timestamp"`
		}
		out := make([]outT, 0, len(list))
		for _, v := range list {
			out = append(out, outT{
				Topic: v.Topic, Metric: string(v.Metric), DeviceID: v.DeviceID,
				Value: v.Value, Timestamp: v.Timestamp.UTC().Format(time.RFC3339),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Data-Source", "cache")
		_ = json.NewEncoder(w).Encode(out)
	})
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

type healthHandler struct {
	svc  *Service
	conn Connection
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string  `json:"status"`
		RadioConnected  bool    `json:"radio_connected"`
		Breaker         string  `json:"breaker"`
		LastWriteErrorS float64 `json:"last_write_error_age_sec"`
	}
	age := h.svc.LastErrorAge()
	st := status{
		RadioConnected:  h.conn != nil && h.conn.IsConnectionOpen(),
		Breaker:         h.svc.BreakerState().String(),
		LastWriteErrorS: age.Seconds(),
	}
	sinkOK := h.svc.BreakerState() == gobreaker.StateClosed

	switch {
	case st.RadioConnected && sinkOK && age > 30*time.Second:
		st.Status = "ok"
	case st.RadioConnected || sinkOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// readyHandler answers 200 only when every dependency is usable.
type readyHandler struct {
	svc         *Service
	conn        Connection
	minErrorAge time.Duration
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.conn != nil && h.conn.IsConnectionOpen() &&
		h.svc.BreakerState() != gobreaker.StateOpen &&
		h.svc.LastErrorAge() > h.minErrorAge
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}
