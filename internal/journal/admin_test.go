package journal

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/simbridge/internal/testutil"
	"github.com/banshee-data/simbridge/internal/wire"
)

func serveAdmin(t *testing.T, j *Journal, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	require.NoError(t, j.AttachAdminRoutes(mux))

	return testutil.ServeDebug(mux, testutil.NewDebugRequest(http.MethodGet, target))
}

func TestAdminRoutes_Journal(t *testing.T) {
	j := openTestJournal(t)
	beginTestSession(t, j, "s1")
	at := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.RecordSignal(Signal{
			SessionID:  "s1",
			Direction:  Inbound,
			Kind:       wire.StartEnvironment.String(),
			Value:      byte(wire.StartEnvironment),
			RecordedAt: at.Add(time.Duration(i) * time.Second),
		}))
	}

	w := serveAdmin(t, j, "/debug/journal?limit=2")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got []Signal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestAdminRoutes_JournalEmpty(t *testing.T) {
	j := openTestJournal(t)

	w := serveAdmin(t, j, "/debug/journal")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestAdminRoutes_JournalBadLimit(t *testing.T) {
	j := openTestJournal(t)

	w := serveAdmin(t, j, "/debug/journal?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutes_TailSQLMounted(t *testing.T) {
	j := openTestJournal(t)

	w := serveAdmin(t, j, "/debug/tailsql/")
	assert.NotEqual(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes_Backup(t *testing.T) {
	j := openTestJournal(t)
	beginTestSession(t, j, "s1")

	w := serveAdmin(t, j, "/debug/journal/backup")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))

	zr, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3\x00")))
}
