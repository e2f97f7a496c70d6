package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/navfusion/internal/fusion"
	"github.com/banshee-data/navfusion/internal/httputil"
	"github.com/banshee-data/navfusion/internal/security"
	"github.com/banshee-data/navfusion/internal/session"
	"github.com/banshee-data/navfusion/internal/source"
	"github.com/banshee-data/navfusion/internal/units"
	"github.com/banshee-data/navfusion/internal/version"
)

// StepResponse is returned by POST /api/step.
type StepResponse struct {
	Point  session.Point `json:"point"`
	Errors []string      `json:"errors,omitempty"`
}

// StateResponse is returned by GET /api/state. Speed is the magnitude of
// the velocity estimate in Units.
type StateResponse struct {
	session.Snapshot
	Speed       float64 `json:"speed"`
	GroundSpeed float64 `json:"ground_speed"`
	Units       string  `json:"units"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	u := r.URL.Query().Get("units")
	if u == "" {
		u = units.MPS
	}
	if !units.IsValid(u) {
		httputil.BadRequest(w, fmt.Sprintf("invalid units %q; valid: %s", u, units.ValidUnitsString()))
		return
	}
	httputil.WriteJSONOK(w, stateResponse(s.session.Snapshot(), u))
}

func stateResponse(snap session.Snapshot, u string) StateResponse {
	v := [3]float64{snap.State[fusion.IdxVX], snap.State[fusion.IdxVY], snap.State[fusion.IdxVZ]}
	return StateResponse{
		Snapshot:    snap,
		Speed:       units.ConvertSpeed(units.Magnitude(v), u),
		GroundSpeed: units.ConvertSpeed(units.GroundSpeed(v), u),
		Units:       u,
	}
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var rec source.Record
	if err := httputil.DecodeJSON(w, r, &rec); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	pt, err := s.session.Apply(rec.StepInput(s.session.DefaultDt()))
	if err != nil {
		httputil.UnprocessableEntity(w, err.Error())
		return
	}

	resp := StepResponse{Point: pt}
	for _, e := range []error{pt.Report.GPSErr, pt.Report.BaroErr} {
		if e != nil {
			resp.Errors = append(resp.Errors, e.Error())
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.session.Reset(); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, stateResponse(s.session.Snapshot(), units.MPS))
}

// points returns the live trajectory, or a stored run when ?run= is set.
func (s *Server) points(r *http.Request) (runID string, points []session.Point, err error) {
	runID = r.URL.Query().Get("run")
	if runID == "" {
		return s.session.Snapshot().Run.ID, s.session.History(), nil
	}
	if s.store == nil {
		return runID, nil, errNoStore
	}
	points, err = s.store.RunPoints(runID)
	if err != nil {
		return runID, nil, err
	}
	if len(points) == 0 {
		return runID, nil, errUnknownRun
	}
	return runID, points, nil
}

var (
	errNoStore    = errors.New("no trajectory store configured")
	errUnknownRun = errors.New("run not found or empty")
)

func (s *Server) writePointsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoStore), errors.Is(err, errUnknownRun):
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) handleTrajectoryCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	runID, points, err := s.points(r)
	if err != nil {
		s.writePointsError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := session.WriteTrajectoryCSV(&buf, points); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to write csv: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "navfusion_"+security.SanitizeFilename(runID)+".csv"))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	runID, points, err := s.points(r)
	if err != nil {
		s.writePointsError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := renderTrajectoryChart(&buf, runID, points); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleDebugSteps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.session.DebugSteps())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, errNoStore.Error())
		return
	}
	runs, err := s.store.ListRuns()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Current())
}
