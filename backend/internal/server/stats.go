package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/shirou/gopsutil/process"

	"github.com/BioHazard786/Warpcast/backend/internal/signaling"
)

// StatsReport is the body served on /stats.
type StatsReport struct {
	Rooms      int     `json:"rooms"`
	Users      int     `json:"users"`
	CPUPercent float64 `json:"cpuPercent"`
	MemPercent float32 `json:"memPercent"`
}

// Stats reports live room and presence counts plus the server's own
// resource usage.
type Stats struct {
	store    *signaling.RoomStore
	presence *signaling.Presence
	proc     *process.Process
	log      *slog.Logger
}

func NewStats(store *signaling.RoomStore, presence *signaling.Presence, log *slog.Logger) *Stats {
	s := &Stats{store: store, presence: presence, log: log}

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process metrics unavailable", "err", err)
		return s
	}
	s.proc = p
	return s
}

// Report collects a snapshot. Process metrics are left at zero when they
// cannot be read.
func (s *Stats) Report() StatsReport {
	r := StatsReport{
		Rooms: s.store.Rooms(),
		Users: s.presence.Len(),
	}
	if s.proc == nil {
		return r
	}

	if cpu, err := s.proc.CPUPercent(); err == nil {
		r.CPUPercent = cpu
	} else {
		s.log.Debug("Error while finding process cpu usage", "err", err)
	}
	if ram, err := s.proc.MemoryPercent(); err == nil {
		r.MemPercent = ram
	} else {
		s.log.Debug("Error while finding process ram usage", "err", err)
	}
	return r
}

func (s *Stats) Handler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Report())
}
