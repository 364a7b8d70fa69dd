package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// Readiness tracks the dependencies /ready reports on. Optional
// dependencies that are down show as "unavailable" without failing the check.
type Readiness struct {
	mu                sync.RWMutex
	orchestratorReady bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

// NewReadiness starts with MQTT and Postgres optional and nothing ready.
func NewReadiness() *Readiness {
	return &Readiness{mqttOptional: true, postgresOptional: true}
}

func (r *Readiness) SetOrchestratorReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orchestratorReady = ready
}

func (r *Readiness) SetMQTT(connected, optional bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mqttConnected = connected
	r.mqttOptional = optional
}

func (r *Readiness) SetPostgres(connected, optional bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postgresConnected = connected
	r.postgresOptional = optional
}

// CheckStatus is one dependency's entry in the readiness response.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// Evaluate computes the readiness response.
func (r *Readiness) Evaluate() ReadinessResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: make(map[string]CheckStatus)}
	var reasons []string

	check := func(name string, ok, optional bool) {
		switch {
		case ok:
			resp.Checks[name] = CheckStatus{Status: "ok", Optional: optional}
		case optional:
			resp.Checks[name] = CheckStatus{Status: "unavailable", Optional: true}
		default:
			resp.Checks[name] = CheckStatus{Status: "not_ready"}
			resp.Ready = false
			reasons = append(reasons, name+" not ready")
		}
	}
	check("orchestrator", r.orchestratorReady, false)
	check("mqtt", r.mqttConnected, r.mqttOptional)
	check("postgres", r.postgresConnected, r.postgresOptional)

	resp.NotReadyMsg = strings.Join(reasons, "; ")
	return resp
}

func (r *Readiness) connected() (mqtt, postgres bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mqttConnected, r.postgresConnected
}

func (r *Readiness) handler(w http.ResponseWriter, _ *http.Request) {
	resp := r.Evaluate()
	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
