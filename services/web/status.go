package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
)

// SystemInfo describes the machine the controller runs on.
type SystemInfo struct {
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	Platform string `json:"platform"`
	Kernel   string `json:"kernel"`
	Arch     string `json:"arch"`
	CPUModel string `json:"cpu_model"`
	CPUCores int    `json:"cpu_cores"`
	BootTime uint64 `json:"boot_time"`
}

type SystemInfoFunc func(ctx context.Context) (SystemInfo, error)

// HostSystemInfo reads host and CPU details through gopsutil.
func HostSystemInfo(ctx context.Context) (SystemInfo, error) {
	var si SystemInfo
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return si, err
	}
	si.Hostname = hi.Hostname
	si.OS = hi.OS
	si.Platform = hi.Platform
	si.Kernel = hi.KernelVersion
	si.Arch = hi.KernelArch
	si.BootTime = hi.BootTime

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		si.CPUModel = infos[0].ModelName
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		si.CPUCores = n
	}
	return si, nil
}

type statusDoc struct {
	Name        string      `json:"name"`
	Version     string      `json:"version,omitempty"`
	Started     time.Time   `json:"started"`
	StartedAgo  string      `json:"started_ago"`
	Uptime      string      `json:"uptime"`
	StorageSize int64       `json:"storage_bytes"`
	Storage     string      `json:"storage"`
	Channels    int         `json:"channels"`
	System      *SystemInfo `json:"system,omitempty"`
	SystemError string      `json:"system_error,omitempty"`
}

// GET /api/status
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	size := s.store.Size()
	doc := statusDoc{
		Name:        s.opts.Name,
		Version:     s.opts.Version,
		Started:     s.opts.Started,
		StartedAgo:  humanize.Time(s.opts.Started),
		Uptime:      time.Since(s.opts.Started).Round(time.Second).String(),
		StorageSize: size,
		Storage:     humanize.IBytes(uint64(max(size, 0))),
		Channels:    len(s.store.Channels()),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if si, err := s.opts.System(ctx); err != nil {
		s.log.Warn("system info unavailable", "err", err)
		doc.SystemError = err.Error()
	} else {
		doc.System = &si
	}
	writeJSON(w, http.StatusOK, doc)
}
