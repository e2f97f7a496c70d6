package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/navfusion/internal/db"
	"github.com/banshee-data/navfusion/internal/fusion"
	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/session"
	"github.com/banshee-data/navfusion/internal/timeutil"
	"github.com/banshee-data/navfusion/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

func setupTestServer(t *testing.T, store *db.DB) (*Server, *session.Session) {
	t.Helper()
	opts := session.Options{
		Estimator:    fusion.DefaultEstimatorConfig(),
		DefaultDt:    0.1,
		DebugHistory: 8,
		Clock:        timeutil.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	}
	var rs RunStore
	if store != nil {
		opts.Recorder = store
		rs = store
	}
	s, err := session.New(opts)
	require.NoError(t, err)
	return NewServer(s, rs), s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleState(t *testing.T) {
	t.Parallel()
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, fusion.Vec6{}, snap.State)
	assert.Equal(t, 0.1, snap.PositionCovariance[0][0])
	assert.Equal(t, uint64(0), snap.Step)

	rec = do(t, h, http.MethodPost, "/api/state", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleStateUnits(t *testing.T) {
	t.Parallel()
	srv, sess := setupTestServer(t, nil)
	h := srv.Handler()

	// One second at (3, 4, 12) m/s^2 leaves velocity (3, 4, 12).
	_, err := sess.Apply(fusion.StepInput{Accel: fusion.Vec3{3, 4, 12}, Dt: 1})
	require.NoError(t, err)

	var resp StateResponse
	rec := do(t, h, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "mps", resp.Units)
	assert.InDelta(t, 13.0, resp.Speed, 1e-9)
	assert.InDelta(t, 5.0, resp.GroundSpeed, 1e-9)
	assert.Equal(t, uint64(1), resp.Step)

	rec = do(t, h, http.MethodGet, "/api/state?units=kmph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "kmph", resp.Units)
	assert.InDelta(t, 46.8, resp.Speed, 1e-9)
	assert.InDelta(t, 18.0, resp.GroundSpeed, 1e-9)

	rec = do(t, h, http.MethodGet, "/api/state?units=knots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "mps, mph, kmph, kph")
}

func TestHandleStep(t *testing.T) {
	t.Parallel()
	srv, sess := setupTestServer(t, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/step", `{"accel":[1,0,0],"gps":[0.1,0,0],"baro":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Point struct {
			Step   uint64      `json:"step"`
			Time   float64     `json:"time"`
			State  fusion.Vec6 `json:"state"`
			Report struct {
				GPS  string `json:"gps"`
				Baro string `json:"baro"`
			} `json:"report"`
		} `json:"point"`
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, uint64(1), resp.Point.Step)
	assert.Equal(t, 0.1, resp.Point.Time)
	assert.Equal(t, "applied", resp.Point.Report.GPS)
	assert.Equal(t, "applied", resp.Point.Report.Baro)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, sess.Snapshot().State, resp.Point.State)
}

func TestHandleStepScalarForm(t *testing.T) {
	t.Parallel()
	srv, sess := setupTestServer(t, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/step", `{"ax":1,"ay":0,"az":0,"dt":0.1,"gps":{"x":1,"y":2,"z":3},"baro":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hist := sess.History()
	require.Len(t, hist, 1)
	require.NotNil(t, hist[0].GPSFix)
	assert.Equal(t, fusion.Vec3{1, 2, 3}, *hist[0].GPSFix)
	assert.Equal(t, fusion.OutcomeApplied, hist[0].Report.GPS)

	// A fix with a null component is not fused.
	rec = do(t, h, http.MethodPost, "/api/step", `{"ax":0,"ay":0,"az":0,"gps":{"x":1,"y":2,"z":null}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hist = sess.History()
	require.Len(t, hist, 2)
	assert.Nil(t, hist[1].GPSFix)
	assert.Equal(t, fusion.OutcomeAbsent, hist[1].Report.GPS)
}

func TestHandleStepErrors(t *testing.T) {
	t.Parallel()
	srv, sess := setupTestServer(t, nil)
	h := srv.Handler()

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"malformed json", http.MethodPost, `{"dt":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, `{"speed":1}`, http.StatusBadRequest},
		{"short gps", http.MethodPost, `{"gps":[1,2]}`, http.StatusBadRequest},
		{"zero dt", http.MethodPost, `{"dt":0}`, http.StatusUnprocessableEntity},
		{"negative dt", http.MethodPost, `{"dt":-0.1}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, "/api/step", tt.body)
		assert.Equal(t, tt.status, rec.Code, tt.name)
	}
	assert.Equal(t, uint64(0), sess.Snapshot().Counters.Steps)
	assert.Equal(t, uint64(2), sess.Snapshot().Counters.Rejected)
}

func TestHandleStepReportsSkippedUpdate(t *testing.T) {
	t.Parallel()
	opts := session.Options{Estimator: fusion.EstimatorConfig{BaroNoise: 0.5}, DefaultDt: 0.1}
	s, err := session.New(opts)
	require.NoError(t, err)
	h := NewServer(s, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/step", `{"gps":[1,2,3],"baro":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StepResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, fusion.OutcomeSingular, resp.Point.Report.GPS)
	assert.Equal(t, fusion.OutcomeApplied, resp.Point.Report.Baro)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0], "singular")
}

func TestHandleReset(t *testing.T) {
	t.Parallel()
	srv, sess := setupTestServer(t, nil)
	h := srv.Handler()
	before := sess.Snapshot().Run.ID

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/step", `{"accel":[1,1,1]}`).Code)
	rec := do(t, h, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, fusion.Vec6{}, snap.State)
	assert.NotEqual(t, before, snap.Run.ID)
	assert.Empty(t, sess.History())

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/reset", "").Code)
}

func TestHandleTrajectoryCSV(t *testing.T) {
	t.Parallel()
	srv, sess := setupTestServer(t, nil)
	h := srv.Handler()
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/step", `{"dt":0.5,"accel":[1,0,0]}`).Code)
	}

	rec := do(t, h, http.MethodGet, "/api/trajectory.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), sess.Snapshot().Run.ID)
	assert.Equal(t, "time,x,y,z,vx,vy,vz\n0.5,0,0,0,0.5,0,0\n1,0.25,0,0,1,0,0\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/trajectory.csv?run=abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTrajectoryChart(t *testing.T) {
	t.Parallel()
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/step", `{"accel":[1,0,0],"gps":[0,0,0]}`).Code)

	rec := do(t, h, http.MethodGet, "/api/trajectory/chart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "echarts")
	assert.Contains(t, body, "Estimated trajectory")
	assert.Contains(t, body, "gps fix")
}

func TestHandleDebugSteps(t *testing.T) {
	t.Parallel()
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/step", `{"baro":2}`).Code)

	rec := do(t, h, http.MethodGet, "/api/debug/steps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var steps []struct {
		Index       uint64 `json:"index"`
		Innovations []struct {
			Model    string    `json:"model"`
			Residual []float64 `json:"residual"`
			Applied  bool      `json:"applied"`
		} `json:"innovations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&steps))
	require.Len(t, steps, 1)
	assert.Equal(t, uint64(1), steps[0].Index)
	require.Len(t, steps[0].Innovations, 1)
	assert.Equal(t, fusion.ModelBaro, steps[0].Innovations[0].Model)
	assert.Equal(t, []float64{2}, steps[0].Innovations[0].Residual)
}

func TestHandleVersion(t *testing.T) {
	t.Parallel()
	srv, _ := setupTestServer(t, nil)
	rec := do(t, srv.Handler(), http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info version.Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, version.Current(), info)
}

func TestHandleRunsWithoutStore(t *testing.T) {
	t.Parallel()
	srv, _ := setupTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/api/runs", "").Code)
}

func TestStoredRuns(t *testing.T) {
	t.Parallel()
	store, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv, sess := setupTestServer(t, store)
	h := srv.Handler()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/step", `{"dt":0.5,"accel":[1,0,0]}`).Code)
	firstRun := sess.Snapshot().Run.ID
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/reset", "").Code)

	rec := do(t, h, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []db.RunSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 2)

	// The live session was reset but the stored run is still exported.
	rec = do(t, h, http.MethodGet, "/api/trajectory.csv?run="+firstRun, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "time,x,y,z,vx,vy,vz\n0.5,0,0,0,0.5,0,0\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/trajectory/chart?run=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminConsoleMountedWithStore(t *testing.T) {
	t.Parallel()
	store, err := db.Open(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	get := func(h http.Handler) int {
		req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
		req.RemoteAddr = "127.0.0.1:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	withStore, _ := setupTestServer(t, store)
	assert.Equal(t, http.StatusOK, get(withStore.Handler()))

	withoutStore, _ := setupTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, get(withoutStore.Handler()))
}

type failingStore struct{}

func (failingStore) ListRuns() ([]db.RunSummary, error) { return nil, errors.New("locked") }
func (failingStore) RunPoints(string) ([]session.Point, error) {
	return nil, errors.New("locked")
}

func TestStoreErrors(t *testing.T) {
	t.Parallel()
	s, err := session.New(session.Options{Estimator: fusion.DefaultEstimatorConfig()})
	require.NoError(t, err)
	h := NewServer(s, failingStore{}).Handler()
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/runs", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/api/trajectory.csv?run=x", "").Code)
}

func TestStatusCodeColor(t *testing.T) {
	t.Parallel()
	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(304), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Contains(t, statusCodeColor(500), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
