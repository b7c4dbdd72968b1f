package api

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/banshee-data/geomeasure/internal/db"
	"github.com/banshee-data/geomeasure/internal/httputil"
	"github.com/banshee-data/geomeasure/internal/measure"
)

// defaultCalibrationLimit bounds GET /calibrations when no limit is given.
const defaultCalibrationLimit = 50

// pointRequest names a ground truth point either by the ID of a logged point
// or by explicit coordinates.
type pointRequest struct {
	PointID   string   `json:"point_id,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Height    float64  `json:"height"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

var errNoCoordinates = errors.New("point_id or latitude and longitude are required")

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// resolve turns the request into a Point, looking up point_id in the log.
func (s *Server) resolve(req pointRequest) (measure.Point, error) {
	if req.PointID != "" {
		for _, p := range s.ctrl.Points() {
			if p.ID == req.PointID {
				return p, nil
			}
		}
		return measure.Point{}, fmt.Errorf("point %q not found", req.PointID)
	}
	if req.Latitude == nil || req.Longitude == nil {
		return measure.Point{}, errNoCoordinates
	}
	lat, lon := *req.Latitude, *req.Longitude
	if !finite(lat) || !finite(lon) || !finite(req.Height) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return measure.Point{}, fmt.Errorf("invalid coordinates %v,%v", lat, lon)
	}
	return measure.NewPoint(lat, lon, req.Height, req.Accuracy, measure.SatelliteFix, s.clock.Now()), nil
}

func (s *Server) listPoints(w http.ResponseWriter, r *http.Request) {
	points := s.ctrl.Points()
	if points == nil {
		points = []measure.Point{}
	}
	httputil.WriteJSONOK(w, points)
}

func (s *Server) deletePoint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.ctrl.DeletePoint(id) {
		httputil.NotFound(w, fmt.Sprintf("point %q not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) capture(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ctrl.CapturePoint()
	if !ok {
		httputil.Conflict(w, fmt.Sprintf("no %s position available", s.ctrl.Mode()))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) toggleMode(w http.ResponseWriter, r *http.Request) {
	m := s.ctrl.Toggle()
	httputil.WriteJSONOK(w, map[string]measure.Mode{"mode": m})
}

func (s *Server) startReference(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ref, err := s.resolve(req)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.ctrl.StartInertialWithReference(ref)
	httputil.WriteJSONOK(w, s.ctrl.Status())
}

func (s *Server) calibrate(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	known, err := s.resolve(req)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	residual, ok := s.ctrl.CalibrateInertial(known)
	if !ok {
		httputil.Conflict(w, "calibration requires inertial mode")
		return
	}

	c := db.Calibration{
		PointID:   req.PointID,
		Latitude:  known.Latitude,
		Longitude: known.Longitude,
		Height:    known.Height,
		Residual:  residual,
		Timestamp: s.clock.Now(),
	}
	if s.store != nil {
		if err := s.store.RecordCalibration(c); err != nil {
			// the tracker is already recalibrated; only the history entry is lost
			log.Printf("api: %v", err)
		}
	}
	httputil.WriteJSONOK(w, c)
}

func (s *Server) listCalibrations(w http.ResponseWriter, r *http.Request) {
	limit := defaultCalibrationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if s.store == nil {
		httputil.WriteJSONOK(w, []db.Calibration{})
		return
	}
	out, err := s.store.Calibrations(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if out == nil {
		out = []db.Calibration{}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.ctrl.Status())
}

type geoidResponse struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Undulation float64 `json:"undulation"`
	// InGrid is false when the fallback undulation was used.
	InGrid bool `json:"in_grid"`
	Loaded bool `json:"loaded"`
}

func (s *Server) lookupGeoid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		httputil.BadRequest(w, "lat must be a number")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		httputil.BadRequest(w, "lon must be a number")
		return
	}
	n, ok := s.geoid.Interpolate(lat, lon)
	httputil.WriteJSONOK(w, geoidResponse{
		Latitude:   lat,
		Longitude:  lon,
		Undulation: n,
		InGrid:     ok,
		Loaded:     s.geoid.Loaded(),
	})
}
