package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSync(t *testing.T) {
	syncsTotal.Reset()

	RecordSync(DirectionUp, true)
	RecordSync(DirectionUp, true)
	RecordSync(DirectionDown, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(syncsTotal.WithLabelValues(DirectionUp, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(syncsTotal.WithLabelValues(DirectionDown, "failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(syncsTotal.WithLabelValues(DirectionDown, "success")))
}

func TestRecordAnnouncement(t *testing.T) {
	announcementsTotal.Reset()

	RecordAnnouncement(AnnouncementSent)
	RecordAnnouncement(AnnouncementDuplicate)
	RecordAnnouncement(AnnouncementDuplicate)

	assert.Equal(t, 1.0, testutil.ToFloat64(announcementsTotal.WithLabelValues(AnnouncementSent)))
	assert.Equal(t, 2.0, testutil.ToFloat64(announcementsTotal.WithLabelValues(AnnouncementDuplicate)))
}

func TestGauges(t *testing.T) {
	SetListenerConnected("tcp://example.com:1986", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(listenerConnected.WithLabelValues("tcp://example.com:1986")))

	SetListenerConnected("tcp://example.com:1986", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(listenerConnected.WithLabelValues("tcp://example.com:1986")))

	SetFolderSize("docs", 2048)
	assert.Equal(t, 2048.0, testutil.ToFloat64(folderSize.WithLabelValues("docs")))
}
