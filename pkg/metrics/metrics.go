// Package metrics exposes Prometheus metrics for the sync engines and
// notification listeners.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sync directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Announcement events.
const (
	AnnouncementSent      = "sent"
	AnnouncementQueued    = "queued"
	AnnouncementDuplicate = "duplicate"
	AnnouncementReceived  = "received"
	AnnouncementIgnored   = "ignored"
)

var (
	// syncsTotal counts backend sync attempts.
	// Labels:
	//   - direction: "up" or "down"
	//   - result: "success" or "failure"
	syncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orangeshare_syncs_total",
			Help: "Total number of backend sync attempts",
		},
		[]string{"direction", "result"},
	)

	announcementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orangeshare_announcements_total",
			Help: "Total number of announcements handled by notification listeners",
		},
		[]string{"event"},
	)

	listenerConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orangeshare_listener_connected",
			Help: "Whether the listener for a notification server is connected (1) or not (0)",
		},
		[]string{"server"},
	)

	folderSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orangeshare_folder_size_bytes",
			Help: "Last sampled size of a synced folder",
		},
		[]string{"folder"},
	)
)

func init() {
	prometheus.MustRegister(syncsTotal)
	prometheus.MustRegister(announcementsTotal)
	prometheus.MustRegister(listenerConnected)
	prometheus.MustRegister(folderSize)
}

// RecordSync records the outcome of a sync in the given direction.
func RecordSync(direction string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	syncsTotal.WithLabelValues(direction, result).Inc()
}

// RecordAnnouncement records an announcement event.
func RecordAnnouncement(event string) {
	announcementsTotal.WithLabelValues(event).Inc()
}

// SetListenerConnected records whether the listener for `server` is connected.
func SetListenerConnected(server string, connected bool) {
	value := 0.0
	if connected {
		value = 1
	}
	listenerConnected.WithLabelValues(server).Set(value)
}

// SetFolderSize records the last sampled size of a folder.
func SetFolderSize(folder string, bytes int64) {
	folderSize.WithLabelValues(folder).Set(float64(bytes))
}
