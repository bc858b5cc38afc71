package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestSetQueueSize(t *testing.T) {
	SetQueueSize("metrics-test-lane", 3)

	body := scrape(t)
	assert.Contains(t, body, `queue_size{lane="metrics-test-lane"} 3`)

	SetQueueSize("metrics-test-lane", 0)
	body = scrape(t)
	assert.Contains(t, body, `queue_size{lane="metrics-test-lane"} 0`)
}

func TestRecordTruncationDropped(t *testing.T) {
	RecordTruncationDropped(2)
	RecordTruncationDropped(0)
	RecordTruncationDropped(-5)

	body := scrape(t)
	assert.Contains(t, body, `truncation_dropped_messages_total 2`)
}
