// Package health reports the state of the host and the database file, shown in the settings modal
// and served by the health endpoint. Failed checks don't fail the report, they become warnings.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// report statuses
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Thresholds trigger warnings, zero values disable the check
type Thresholds struct {
	DiskFreeBelow int     // percent of free space on the database volume
	MemoryAbove   int     // percent of used memory
	LoadPerCPU    float64 // 1 minute load average divided by logical cpus
}

// DefaultThresholds used when none set
var DefaultThresholds = Thresholds{DiskFreeBelow: 10, MemoryAbove: 90, LoadPerCPU: 2}

// Checker collects health reports
type Checker struct {
	dbPath     string
	started    time.Time
	thresholds Thresholds
}

// Report is a snapshot of host and database state
type Report struct {
	Status     string    `json:"status"`
	Time       time.Time `json:"time"`
	Uptime     string    `json:"uptime"`
	Hostname   string    `json:"hostname,omitempty"`
	Platform   string    `json:"platform,omitempty"`
	GoVersion  string    `json:"go_version"`
	Goroutines int       `json:"goroutines"`
	CPUs       int       `json:"cpus"`
	DB         DBInfo    `json:"db"`
	Disk       *Usage    `json:"disk,omitempty"`
	Memory     *Usage    `json:"memory,omitempty"`
	Load       *LoadAvg  `json:"load,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// DBInfo is the size of the database file and its write-ahead log
type DBInfo struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	WALSize int64  `json:"wal_size"`
}

// Usage is total and used amount of a resource, in bytes
type Usage struct {
	Path        string  `json:"path,omitempty"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// LoadAvg is the system load average
type LoadAvg struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// New makes Checker for the database file at dbPath
func New(dbPath string, thresholds Thresholds) *Checker {
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds
	}
	return &Checker{dbPath: dbPath, started: time.Now(), thresholds: thresholds}
}

// Report collects the current state
func (c *Checker) Report(ctx context.Context) Report {
	res := Report{
		Status:     StatusOK,
		Time:       time.Now(),
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		CPUs:       runtime.NumCPU(),
		DB:         DBInfo{Path: c.dbPath},
	}
	warn := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	if fi, err := os.Stat(c.dbPath); err == nil {
		res.DB.Size = fi.Size()
	} else {
		warn("database file: %v", err)
	}
	if fi, err := os.Stat(c.dbPath + "-wal"); err == nil {
		res.DB.WALSize = fi.Size()
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		res.Hostname = info.Hostname
		res.Platform = fmt.Sprintf("%s %s %s", info.Platform, info.PlatformVersion, info.KernelArch)
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		res.CPUs = n
	}

	dir := filepath.Dir(c.dbPath)
	if du, err := disk.UsageWithContext(ctx, dir); err == nil {
		res.Disk = &Usage{Path: dir, Total: du.Total, Used: du.Used, Free: du.Free, UsedPercent: du.UsedPercent}
		if free := 100 - du.UsedPercent; c.thresholds.DiskFreeBelow > 0 && free < float64(c.thresholds.DiskFreeBelow) {
			warn("disk free at %.0f%% on %s, below %d%%", free, dir, c.thresholds.DiskFreeBelow)
		}
	} else {
		warn("disk usage of %s: %v", dir, err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		res.Memory = &Usage{Total: vm.Total, Used: vm.Used, Free: vm.Available, UsedPercent: vm.UsedPercent}
		if c.thresholds.MemoryAbove > 0 && vm.UsedPercent >= float64(c.thresholds.MemoryAbove) {
			warn("memory at %.0f%%, threshold %d%%", vm.UsedPercent, c.thresholds.MemoryAbove)
		}
	} else {
		warn("memory: %v", err)
	}

	if la, err := load.AvgWithContext(ctx); err == nil {
		res.Load = &LoadAvg{Load1: la.Load1, Load5: la.Load5, Load15: la.Load15}
		if limit := c.thresholds.LoadPerCPU * float64(res.CPUs); limit > 0 && la.Load1 >= limit {
			warn("load at %.2f, threshold %.2f", la.Load1, limit)
		}
	}

	if len(res.Warnings) > 0 {
		res.Status = StatusDegraded
		log.Printf("[DEBUG] health degraded: %v", res.Warnings)
	}
	return res
}
