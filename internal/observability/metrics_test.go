package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordFrameSent(70)
	RecordSendFailure()
	RecordConnectAttempt()
	RecordConnected()
	RecordFeedback()
	RecordRoleChange()
	SetLinkState(2)
	SetExpectedRoles(4)
	ObserveCycle(0.002)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vrdigitizer_link_frames_sent_total")
	assert.Contains(t, string(body), "vrdigitizer_link_state 2")
	assert.Contains(t, string(body), "vrdigitizer_roles_expected 4")
}
