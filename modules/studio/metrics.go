package studio

import (
	"sync"
	"time"
)

// Metrics - server counters exposed on /metrics
type Metrics struct {
	mutex sync.RWMutex

	startTime      time.Time
	totalModals    int
	activeModals   int
	jobsSubmitted  int
	jobsSucceeded  int
	jobsFailed     int
	assetsAccepted int
}

// MetricsSnapshot - JSON view of Metrics
type MetricsSnapshot struct {
	StartTime      time.Time `json:"startTime"`
	Uptime         string    `json:"uptime"`
	TotalModals    int       `json:"totalModals"`
	ActiveModals   int       `json:"activeModals"`
	JobsSubmitted  int       `json:"jobsSubmitted"`
	JobsSucceeded  int       `json:"jobsSucceeded"`
	JobsFailed     int       `json:"jobsFailed"`
	AssetsAccepted int       `json:"assetsAccepted"`
}

func newMetrics(now time.Time) *Metrics {
	return &Metrics{startTime: now}
}

func (m *Metrics) update(fn func(m *Metrics)) {
	if m == nil {
		return
	}
	m.mutex.Lock()
	fn(m)
	m.mutex.Unlock()
}

func (m *Metrics) modalOpened() { m.update(func(m *Metrics) { m.totalModals++; m.activeModals++ }) }
func (m *Metrics) modalRemoved() { m.update(func(m *Metrics) { m.activeModals-- }) }
func (m *Metrics) jobSubmitted() { m.update(func(m *Metrics) { m.jobsSubmitted++ }) }
func (m *Metrics) jobSucceeded() { m.update(func(m *Metrics) { m.jobsSucceeded++ }) }
func (m *Metrics) jobFailed() { m.update(func(m *Metrics) { m.jobsFailed++ }) }
func (m *Metrics) assetAccepted() { m.update(func(m *Metrics) { m.assetsAccepted++ }) }

// Snapshot - copy of the counters
func (m *Metrics) Snapshot(now time.Time) MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return MetricsSnapshot{
		StartTime:      m.startTime,
		Uptime:         now.Sub(m.startTime).Round(time.Second).String(),
		TotalModals:    m.totalModals,
		ActiveModals:   m.activeModals,
		JobsSubmitted:  m.jobsSubmitted,
		JobsSucceeded:  m.jobsSucceeded,
		JobsFailed:     m.jobsFailed,
		AssetsAccepted: m.assetsAccepted,
	}
}
