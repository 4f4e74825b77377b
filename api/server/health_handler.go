// health_handler.go - HTTP handler for /nodehealth, /health/liveness, /health/readiness
package server

import (
	"net/http"
)

// HandleLiveness responds to /health/liveness. A node that can answer is alive.
func (s *Server) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Alive: true})
}

// HandleReadiness responds to /health/readiness
func (s *Server) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := s.NodeReadiness()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ReadinessResponse{Ready: ready})
}

// NodeReadiness returns true once the store answers queries.
func (s *Server) NodeReadiness() bool {
	if s.ready != nil {
		return s.ready()
	}
	if s.stats == nil {
		return true
	}
	_, err := s.stats.Stats()
	return err == nil
}

// NodeHealthResponse is the response type for the /nodehealth endpoint
type NodeHealthResponse struct {
	Status  string      `json:"status"`
	Metrics NodeMetrics `json:"metrics"`
}

// HandleNodeHealth responds to /nodehealth (summary health)
func (s *Server) HandleNodeHealth(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()
	writeJSON(w, http.StatusOK, NodeHealthResponse{
		Status:  nodeStatus(metrics),
		Metrics: metrics,
	})
}
