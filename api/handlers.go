package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"stopboard.dev/gtfs"
	"stopboard.dev/gtfs/display"
	"stopboard.dev/gtfs/internal/logging"
	"stopboard.dev/gtfs/parse"
)

var numericID = regexp.MustCompile(`^\d+$`)

const invalidIDHint = "Invalid ID. Try <a href='/api/stop/1252'>/api/stop/1252</a>"

// Next departures for a numeric stop id, as plain text lines.
func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	if !numericID.MatchString(id) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(invalidIDHint))
		return
	}

	stopID := fmt.Sprintf(s.options.StopIDTemplate, id)
	departures, err := s.engine.NextDepartures(stopID, s.options.DefaultCount)
	if err != nil {
		s.engineError(w, r, err)
		return
	}

	respondText(w, http.StatusOK, display.StopText(departures))
}

type liveStatusResponse struct {
	VehicleID     string     `json:"vehicle_id,omitempty"`
	VehicleLabel  string     `json:"vehicle_label,omitempty"`
	Lat           float32    `json:"lat,omitempty"`
	Lon           float32    `json:"lon,omitempty"`
	Bearing       float32    `json:"bearing,omitempty"`
	CurrentStopID string     `json:"current_stop_id,omitempty"`
	Status        string     `json:"status,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Canceled      bool       `json:"canceled,omitempty"`
	DelaySeconds  *int       `json:"delay_seconds,omitempty"`
}

type departureResponse struct {
	TripID         string              `json:"trip_id"`
	RouteID        string              `json:"route_id"`
	RouteShortName string              `json:"route_short_name"`
	Headsign       string              `json:"headsign"`
	StopSequence   uint32              `json:"stop_sequence"`
	DepartureTime  string              `json:"departure_time"`
	ServiceDate    string              `json:"service_date"`
	Time           time.Time           `json:"time"`
	Live           *liveStatusResponse `json:"live,omitempty"`
}

type departuresResponse struct {
	StopID      string              `json:"stop_id"`
	StopName    string              `json:"stop_name,omitempty"`
	CurrentTime time.Time           `json:"current_time"`
	Departures  []departureResponse `json:"departures"`
}

// Next departures for a stop as JSON, with live status where the
// realtime feed has any.
func (s *Server) departuresHandler(w http.ResponseWriter, r *http.Request) {
	stopID := httprouter.ParamsFromContext(r.Context()).ByName("stop_id")

	count := s.options.DefaultCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxCount {
			respondError(w, r, http.StatusBadRequest, fmt.Sprintf("count must be an integer between 1 and %d", MaxCount))
			return
		}
		count = n
	}

	departures, err := s.engine.NextDepartures(stopID, count)
	if err != nil {
		s.engineError(w, r, err)
		return
	}

	resp := departuresResponse{
		StopID:      stopID,
		CurrentTime: s.engine.Now(),
		Departures:  make([]departureResponse, 0, len(departures)),
	}

	logger := logging.FromContext(r.Context())
	liveFailed := false

	for _, d := range departures {
		if d.Stop != nil {
			resp.StopName = d.Stop.Name
		}

		dr := departureResponse{
			TripID:         d.Trip.ID,
			RouteID:        d.Trip.RouteID,
			RouteShortName: d.RouteShortName(),
			Headsign:       d.Headsign(),
			StopSequence:   d.StopTime.StopSequence,
			DepartureTime:  d.StopTime.Departure,
			ServiceDate:    d.ServiceDate,
			Time:           d.Time,
		}

		entity, err := s.engine.LiveStatus(r.Context(), d.Trip.ID)
		if err != nil && !liveFailed {
			// Stale status, if any, is still shown
			logger.Warn("live status unavailable", "error", err)
			liveFailed = true
		}
		if entity != nil {
			dr.Live = liveStatus(entity, d)
		}

		resp.Departures = append(resp.Departures, dr)
	}

	respondJSON(w, r, http.StatusOK, resp)
}

func liveStatus(e *parse.Entity, d gtfs.DepartureRecord) *liveStatusResponse {
	live := &liveStatusResponse{}

	if v := e.Vehicle; v != nil {
		live.VehicleID = v.VehicleID
		live.VehicleLabel = v.VehicleLabel
		live.Lat = v.Lat
		live.Lon = v.Lon
		live.Bearing = v.Bearing
		live.CurrentStopID = v.CurrentStopID
		live.Status = vehicleStatus(v.Status)
		if !v.Timestamp.IsZero() {
			ts := v.Timestamp
			live.Timestamp = &ts
		}
	}

	if tu := e.TripUpdate; tu != nil {
		live.Canceled = tu.Canceled
		for _, u := range tu.Updates {
			if u.StopID != d.StopTime.StopID && u.StopSequence != d.StopTime.StopSequence {
				continue
			}
			if delay, ok := u.Delay(); ok {
				secs := int(delay.Seconds())
				live.DelaySeconds = &secs
				break
			}
		}
	}

	return live
}

func vehicleStatus(status parse.VehicleStopStatus) string {
	switch status {
	case parse.VehicleIncomingAt:
		return "incoming_at"
	case parse.VehicleStoppedAt:
		return "stopped_at"
	case parse.VehicleInTransitTo:
		return "in_transit_to"
	}
	return ""
}

// The display board as plain text.
func (s *Server) boardHandler(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		respondError(w, r, http.StatusNotFound, "no board configured")
		return
	}

	text, err := s.board.Render()
	if err != nil {
		s.engineError(w, r, err)
		return
	}

	respondText(w, http.StatusOK, text)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	respondText(w, http.StatusOK, "ok")
}

type readyResponse struct {
	Ready      bool      `json:"ready"`
	ServerTime time.Time `json:"server_time"`
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ready := s.engine.Ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, r, status, readyResponse{
		Ready:      ready,
		ServerTime: s.engine.Now(),
	})
}

func (s *Server) engineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, gtfs.ErrEngineNotReady) {
		respondError(w, r, http.StatusServiceUnavailable, "schedule not loaded yet")
		return
	}

	logging.FromContext(r.Context()).Error("query failed", "error", err)
	respondError(w, r, http.StatusInternalServerError, "internal server error")
}
