// Package monitor exposes the coordinator's read-only views over HTTP.
package monitor

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/coordinator"
	"github.com/adamsaleh11/DroneSystem/core/eventlog"
	"github.com/adamsaleh11/DroneSystem/core/model"
)

// Views is the read-only surface of the coordinator.
type Views interface {
	Fleet() map[int]model.AgentStatus
	Pending() []model.Incident
	Completed() []model.Incident
	DistanceToTarget(id int) (float64, bool)
	Stats() coordinator.Stats
}

// Distance is the body of GET /api/fleet/{id}/distance.
type Distance struct {
	AgentID  int     `json:"agent_id"`
	Distance float64 `json:"distance"`
}

// NewMux registers every monitor route. store may be nil, in which case
// /api/events is not served.
func NewMux(v Views, store eventlog.Store, token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /api/fleet", NewFleetHandler(v))
	mux.Handle("GET /api/fleet/{id}/distance", NewDistanceHandler(v))
	mux.Handle("GET /api/incidents/pending", NewIncidentsHandler(v.Pending))
	mux.Handle("GET /api/incidents/completed", NewIncidentsHandler(v.Completed))
	mux.Handle("GET /api/status", NewStatusHandler(v))
	if store != nil {
		mux.Handle("GET /api/events", NewEventsHandler(store, token))
	}
	return mux
}

// NewFleetHandler lists agent statuses ordered by id.
func NewFleetHandler(v Views) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fleet := v.Fleet()
		out := make([]model.AgentStatus, 0, len(fleet))
		for _, st := range fleet {
			out = append(out, st)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		writeJSON(w, out)
	})
}

// NewDistanceHandler reports how far an agent is from its target. Agents
// that hold no incident yield 404.
func NewDistanceHandler(v Views) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid agent id", http.StatusBadRequest)
			return
		}
		d, ok := v.DistanceToTarget(id)
		if !ok {
			http.Error(w, "agent has no target", http.StatusNotFound)
			return
		}
		writeJSON(w, Distance{AgentID: id, Distance: d})
	})
}

func NewIncidentsHandler(list func() []model.Incident) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		incs := list()
		if incs == nil {
			incs = []model.Incident{}
		}
		writeJSON(w, incs)
	})
}

func NewStatusHandler(v Views) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, v.Stats())
	})
}

// NewEventsHandler queries the audit log via GET /api/events. Requests must
// include an Authorization header with "Bearer <token>" when token is
// non-empty.
func NewEventsHandler(store eventlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		params := r.URL.Query()
		q := eventlog.Query{
			IncidentID: params.Get("incident_id"),
			Category:   eventlog.Category(params.Get("category")),
		}
		for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			s := params.Get(name)
			if s == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid "+name, http.StatusBadRequest)
				return
			}
			*dst = t
		}
		if s := params.Get("agent_id"); s != "" {
			id, err := strconv.Atoi(s)
			if err != nil {
				http.Error(w, "invalid agent_id", http.StatusBadRequest)
				return
			}
			q.AgentID = id
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []eventlog.Record{}
		}
		writeJSON(w, records)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
