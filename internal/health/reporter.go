package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentbox/agentbox/internal/target"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Vitals is a point-in-time snapshot of system resources.
type Vitals struct {
	At             time.Time `json:"at"`
	MemoryUsedMB   float64   `json:"memory_used_mb"`
	MemoryTotalMB  float64   `json:"memory_total_mb"`
	SwapUsedMB     float64   `json:"swap_used_mb"`
	SwapTotalMB    float64   `json:"swap_total_mb"`
	DiskUsedGB     float64   `json:"disk_used_gb"`
	DiskTotalGB    float64   `json:"disk_total_gb"`
	Load1          float64   `json:"load1"`
	Load5          float64   `json:"load5"`
	Load15         float64   `json:"load15"`
	TargetMemoryMB float64   `json:"target_memory_mb"`
	TargetProcs    int       `json:"target_procs"`
	Trend          Trend     `json:"trend"`
}

// Reporter samples the target, persists the sample to the bounded
// metrics file and renders vitals reports.
type Reporter struct {
	target target.Target
	store  *FileStore
	cfg    TrendConfig
	// diskPath is the filesystem whose usage is reported.
	diskPath string
}

// NewReporter builds a Reporter. diskPath defaults to "/" when empty.
func NewReporter(tg target.Target, store *FileStore, cfg TrendConfig, diskPath string) (*Reporter, error) {
	if tg == nil {
		return nil, fmt.Errorf("health: nil target")
	}
	if store == nil {
		return nil, fmt.Errorf("health: nil metrics store")
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &Reporter{target: tg, store: store, cfg: cfg, diskPath: diskPath}, nil
}

// Sample takes one target snapshot and appends it to the metrics file.
func (r *Reporter) Sample() (Sample, error) {
	snap, err := r.target.Snapshot()
	if err != nil {
		return Sample{}, err
	}
	smp := Sample{At: time.Now(), MemoryMB: snap.MemoryMB}
	if err := r.store.Append(smp); err != nil {
		return Sample{}, err
	}
	return smp, nil
}

// Trend loads the persisted series and projects it. Each call also
// records a fresh sample so repeated invocations feed the store.
func (r *Reporter) Trend() (Trend, error) {
	if _, err := r.Sample(); err != nil {
		return Trend{}, err
	}
	series, err := r.store.Load()
	if err != nil {
		return Trend{}, err
	}
	return Project(series, r.cfg), nil
}

// Report samples once and returns full vitals. Vitals collection is
// best-effort: a missing swap device or load source leaves the fields
// at zero rather than failing the report.
func (r *Reporter) Report() (Vitals, error) {
	v := Vitals{At: time.Now()}

	snap, err := r.target.Snapshot()
	if err != nil {
		return v, err
	}
	v.TargetMemoryMB = snap.MemoryMB
	v.TargetProcs = snap.Count()

	if err := r.store.Append(Sample{At: v.At, MemoryMB: snap.MemoryMB}); err != nil {
		return v, err
	}
	series, err := r.store.Load()
	if err != nil {
		return v, err
	}
	v.Trend = Project(series, r.cfg)

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		v.MemoryUsedMB = float64(vm.Used) / (1024 * 1024)
		v.MemoryTotalMB = float64(vm.Total) / (1024 * 1024)
	}
	if sw, err := mem.SwapMemory(); err == nil && sw != nil {
		v.SwapUsedMB = float64(sw.Used) / (1024 * 1024)
		v.SwapTotalMB = float64(sw.Total) / (1024 * 1024)
	}
	if du, err := disk.Usage(r.diskPath); err == nil && du != nil {
		v.DiskUsedGB = float64(du.Used) / (1024 * 1024 * 1024)
		v.DiskTotalGB = float64(du.Total) / (1024 * 1024 * 1024)
	}
	if la, err := load.Avg(); err == nil && la != nil {
		v.Load1, v.Load5, v.Load15 = la.Load1, la.Load5, la.Load15
	}
	return v, nil
}

// Format renders vitals for the terminal.
func Format(v Vitals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "agentbox health @ %s\n", v.At.Format(time.RFC3339))
	fmt.Fprintf(&b, "  memory: %.0f / %.0f MB\n", v.MemoryUsedMB, v.MemoryTotalMB)
	fmt.Fprintf(&b, "  swap:   %.0f / %.0f MB\n", v.SwapUsedMB, v.SwapTotalMB)
	fmt.Fprintf(&b, "  disk:   %.1f / %.1f GB\n", v.DiskUsedGB, v.DiskTotalGB)
	fmt.Fprintf(&b, "  load:   %.2f %.2f %.2f\n", v.Load1, v.Load5, v.Load15)
	fmt.Fprintf(&b, "  target: %.0f MB across %d processes\n", v.TargetMemoryMB, v.TargetProcs)
	fmt.Fprintf(&b, "  trend:  %s\n", v.Trend)
	return b.String()
}
