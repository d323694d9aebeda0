package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// MetricsManager owns the registry and the system gauges
type MetricsManager struct {
	systemCPUUsage    *prometheus.GaugeVec
	systemMemoryUsage *prometheus.GaugeVec

	goGoroutines    prometheus.Gauge
	goHeapAlloc     prometheus.Gauge
	goHeapSys       prometheus.Gauge
	goGCPauseNs     prometheus.Histogram
	goGCCPUFraction prometheus.Gauge

	processStartTime prometheus.Gauge

	registry *prometheus.Registry

	initialized bool
	mu          sync.RWMutex
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton instance of MetricsManager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = &MetricsManager{
			registry: prometheus.NewRegistry(),
		}
	})
	return instance
}

// Registry returns the registry all portal metrics live on
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

// InitializeSystemMetrics registers the system and runtime gauges once
func (mm *MetricsManager) InitializeSystemMetrics() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.initialized {
		return
	}

	mm.systemCPUUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Current CPU usage percentage",
		},
		[]string{"core"},
	)
	mm.systemMemoryUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "system_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		},
		[]string{"type"},
	)
	mm.goGoroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labportal_goroutines",
		Help: "Number of goroutines that currently exist",
	})
	mm.goHeapAlloc = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labportal_heap_alloc_bytes",
		Help: "Heap memory usage in bytes",
	})
	mm.goHeapSys = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labportal_heap_sys_bytes",
		Help: "Heap memory reserved in bytes",
	})
	mm.goGCPauseNs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "labportal_gc_pause_nanoseconds",
		Help:    "GC pause time in nanoseconds",
		Buckets: prometheus.ExponentialBuckets(1000, 2, 20),
	})
	mm.goGCCPUFraction = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labportal_gc_cpu_fraction",
		Help: "Fraction of CPU time used by GC",
	})
	mm.processStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "labportal_process_start_time_seconds",
		Help: "Start time of the process since unix epoch in seconds",
	})

	mm.registry.MustRegister(
		mm.systemCPUUsage,
		mm.systemMemoryUsage,
		mm.goGoroutines,
		mm.goHeapAlloc,
		mm.goHeapSys,
		mm.goGCPauseNs,
		mm.goGCCPUFraction,
		mm.processStartTime,
	)
	mm.processStartTime.Set(float64(time.Now().Unix()))

	mm.initialized = true
}

// StartSystemMetrics collects system metrics every interval until ctx is done
func StartSystemMetrics(ctx context.Context, interval time.Duration) {
	mm := GetInstance()
	mm.InitializeSystemMetrics()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mm.collectSystemMetrics()
				mm.collectGoRuntimeMetrics()
			}
		}
	}()
}

func (mm *MetricsManager) collectSystemMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	if cpuPercentages, err := cpu.Percent(0, true); err == nil {
		for i, percentage := range cpuPercentages {
			mm.systemCPUUsage.WithLabelValues(fmt.Sprintf("cpu%d", i)).Set(percentage)
		}
	}

	if vmstat, err := mem.VirtualMemory(); err == nil {
		mm.systemMemoryUsage.WithLabelValues("total").Set(float64(vmstat.Total))
		mm.systemMemoryUsage.WithLabelValues("available").Set(float64(vmstat.Available))
		mm.systemMemoryUsage.WithLabelValues("used").Set(float64(vmstat.Used))
	}
}

func (mm *MetricsManager) collectGoRuntimeMetrics() {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.initialized {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goGoroutines.Set(float64(runtime.NumGoroutine()))
	mm.goHeapAlloc.Set(float64(m.HeapAlloc))
	mm.goHeapSys.Set(float64(m.HeapSys))
	mm.goGCPauseNs.Observe(float64(m.PauseNs[(m.NumGC+255)%256]))
	mm.goGCCPUFraction.Set(m.GCCPUFraction)
}
