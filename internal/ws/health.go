package ws

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/wabridge/backend/internal/session"
)

type healthResponse struct {
	Status        session.Status `json:"status"`
	Connected     bool           `json:"connected"`
	UptimeSeconds float64        `json:"uptime"`
	Clients       int            `json:"clients"`
	PID           int            `json:"pid"`
	CPUPercent    float64        `json:"cpuPercent"`
	RSSBytes      uint64         `json:"rssBytes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.controller.Snapshot()
	resp := healthResponse{
		Status:        snap.Status,
		Connected:     snap.Connected(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Clients:       s.broadcaster.ClientCount(),
		PID:           os.Getpid(),
	}

	// Process stats are best-effort; the endpoint stays useful without
	// them on platforms where they fail.
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			resp.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			resp.RSSBytes = mem.RSS
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
