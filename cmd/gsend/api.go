package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdlog "log"
	"net/http"
	"strconv"
	"strings"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/mastercactapus/gsend/session"
	"github.com/mastercactapus/gsend/transport"
	"github.com/mastercactapus/gsend/workflow"
)

const (
	stateChannel        = "/events/state"
	notificationChannel = "/events/notification"
)

type api struct {
	http.Handler
	s   *session.Session
	sse *sse.Server

	closeCh chan struct{}
}

func newAPI(s *session.Session) *api {
	r := mux.NewRouter()
	a := &api{
		s: s,
		sse: sse.NewServer(&sse.Options{
			Logger: stdlog.New(io.Discard, "", 0),
		}),
		closeCh: make(chan struct{}),
	}
	a.Handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		log.WithField("remote", req.RemoteAddr).Debugf("%s %s", req.Method, req.URL.Path)
		r.ServeHTTP(w, req)
	})

	r.HandleFunc("/api/state", a.state).Methods("GET")
	r.HandleFunc("/api/program", a.loadProgram).Methods("POST")
	r.HandleFunc("/api/program", a.unloadProgram).Methods("DELETE")
	r.HandleFunc("/api/workflow/invalid-line/{action}", a.invalidLine).Methods("POST")
	r.HandleFunc("/api/workflow/{action}", a.workflow).Methods("POST")
	r.HandleFunc("/api/gcode", a.gcode).Methods("POST")
	r.HandleFunc("/api/jog", a.jog).Methods("POST")
	r.HandleFunc("/api/jog/step/{action}", a.jogStep).Methods("POST")
	r.HandleFunc("/api/jog/axis", a.jogAxis).Methods("POST")
	r.HandleFunc("/api/jog/shuttle", a.shuttle).Methods("POST")
	r.HandleFunc("/api/zero", a.zero).Methods("POST")
	r.HandleFunc("/api/goto-zero", a.goToZero).Methods("POST")
	r.PathPrefix("/events/").Handler(a.sse)

	go a.broadcast()

	return a
}

func (a *api) broadcast() {
	snaps, unsubSnaps := a.s.Subscribe()
	defer unsubSnaps()
	notes, unsubNotes := a.s.Notifications()
	defer unsubNotes()

	send := func(channel string, v interface{}) {
		data, err := json.Marshal(v)
		if err != nil {
			log.WithError(err).Error("marshal event")
			return
		}
		a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
	}

	for {
		select {
		case <-a.closeCh:
			return
		case snap := <-snaps:
			send(stateChannel, snap)
		case n := <-notes:
			send(notificationChannel, n)
		}
	}
}

func (a *api) Close() {
	close(a.closeCh)
	a.sse.Shutdown()
}

func httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidAxis):
		code = http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotConnected):
		code = http.StatusServiceUnavailable
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrInvalidLinePending),
		errors.Is(err, transport.ErrBusy),
		errors.Is(err, transport.ErrNoProgram),
		errors.Is(err, session.ErrJogDisabled):
		code = http.StatusConflict
	default:
		log.WithError(err).Error("request")
	}
	http.Error(w, err.Error(), code)
}

func respond(w http.ResponseWriter, err error) {
	if err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(a.s.Snapshot())
	if err != nil {
		log.WithError(err).Warn("encode state")
	}
}

func (a *api) loadProgram(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := req.URL.Query().Get("name")
	if name == "" {
		name = "program.nc"
	}
	respond(w, a.s.Load(req.Context(), name, string(data)))
}

func (a *api) unloadProgram(w http.ResponseWriter, req *http.Request) {
	respond(w, a.s.Unload(req.Context()))
}

func (a *api) workflow(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var err error
	switch mux.Vars(req)["action"] {
	case "start":
		err = a.s.Start(ctx)
	case "pause":
		err = a.s.Pause(ctx)
	case "resume":
		err = a.s.Resume(ctx)
	case "stop":
		force, _ := strconv.ParseBool(req.FormValue("force"))
		err = a.s.Stop(ctx, force)
	default:
		http.NotFound(w, req)
		return
	}
	respond(w, err)
}

func (a *api) invalidLine(w http.ResponseWriter, req *http.Request) {
	var fn func(context.Context) error
	switch mux.Vars(req)["action"] {
	case "continue":
		fn = a.s.ContinueInvalidLine
	case "ignore":
		fn = a.s.IgnoreLineWarnings
	case "cancel":
		fn = a.s.CancelInvalidLine
	default:
		http.NotFound(w, req)
		return
	}
	respond(w, fn(req.Context()))
}

func (a *api) gcode(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lines := transport.ProgramLines(string(data))
	if len(lines) == 0 {
		http.Error(w, "no gcode", http.StatusBadRequest)
		return
	}
	respond(w, a.s.GCode(req.Context(), lines...))
}

func (a *api) jogAxis(w http.ResponseWriter, req *http.Request) {
	respond(w, a.s.SelectJogAxis(req.Context(), strings.TrimSpace(req.FormValue("axis"))))
}

func (a *api) shuttle(w http.ResponseWriter, req *http.Request) {
	zone, err := strconv.Atoi(req.FormValue("zone"))
	if err != nil {
		http.Error(w, "invalid zone", http.StatusBadRequest)
		return
	}
	respond(w, a.s.Shuttle(req.Context(), zone))
}

// jog takes one query parameter per axis, each a signed multiple of the
// selected step, e.g. ?x=1&y=-1.
func (a *api) jog(w http.ResponseWriter, req *http.Request) {
	dirs := make(map[string]float64)
	for axis, vals := range req.URL.Query() {
		v, err := strconv.ParseFloat(vals[0], 64)
		if err != nil {
			http.Error(w, "invalid jog distance for "+axis, http.StatusBadRequest)
			return
		}
		dirs[axis] = v
	}
	respond(w, a.s.Jog(req.Context(), dirs))
}

func (a *api) jogStep(w http.ResponseWriter, req *http.Request) {
	var fn func(context.Context) error
	switch mux.Vars(req)["action"] {
	case "forward":
		fn = a.s.StepForward
	case "backward":
		fn = a.s.StepBackward
	case "next":
		fn = a.s.NextStep
	default:
		http.NotFound(w, req)
		return
	}
	respond(w, fn(req.Context()))
}

func (a *api) zero(w http.ResponseWriter, req *http.Request) {
	value := 0.0
	if v := req.FormValue("value"); v != "" {
		var err error
		value, err = strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid value", http.StatusBadRequest)
			return
		}
	}
	respond(w, a.s.SetWorkOffset(req.Context(), req.FormValue("axis"), value))
}

func (a *api) goToZero(w http.ResponseWriter, req *http.Request) {
	respond(w, a.s.GoToZero(req.Context(), req.FormValue("axis")))
}
