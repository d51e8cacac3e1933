package api

import (
	"database/sql"
	"net/http"
	"runtime"
	"time"
)

// ConnectionChecker reports broker connectivity. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// StatsProvider reports connection pool statistics. *sql.DB satisfies it.
type StatsProvider interface {
	Stats() sql.DBStats
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	WebSocket     WSMetrics          `json:"websocket"`
	MQTT          MQTTMetrics        `json:"mqtt"`
	Database      *DatabaseMetrics   `json:"database,omitempty"`
	Experiment    *ExperimentMetrics `json:"experiment,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains run archive connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// ExperimentMetrics summarises the attached experiment.
type ExperimentMetrics struct {
	ID             string  `json:"id"`
	IsExecuting    bool    `json:"is_executing"`
	Paused         bool    `json:"paused"`
	Records        int     `json:"records"`
	Datapoints     int     `json:"datapoints"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns process and experiment metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Enabled: true, Connected: s.mqtt.IsConnected()}
	}

	if s.db != nil {
		st := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	if exp := s.Experiment(); exp != nil {
		st := exp.Status()
		points := 0
		for _, dps := range exp.Timeline() {
			points += len(dps)
		}
		metrics.Experiment = &ExperimentMetrics{
			ID:             st.ID,
			IsExecuting:    st.IsExecuting,
			Paused:         st.Paused,
			Records:        st.Records,
			Datapoints:     points,
			ElapsedSeconds: st.Elapsed.Seconds(),
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
