// status_handler.go - HTTP handler for /status
package server

import (
	"net/http"
)

// HandleStatus responds to /status with node status
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()

	resp := StatusResponse{
		Status:     nodeStatus(metrics),
		Uptime:     metrics.UptimeSeconds,
		ProgramID:  s.prog.ProgramID().String(),
		Accounts:   metrics.Accounts,
		Events:     metrics.Events,
		Version:    NodeVersion(),
		APIVersion: APIVersion(),
		Metrics:    metrics,
	}
	writeJSON(w, http.StatusOK, resp)
}
