package bridge

import (
	"errors"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/simbridge/internal/httputil"
	"github.com/banshee-data/simbridge/internal/network"
	"github.com/banshee-data/simbridge/internal/wire"
)

// AttachAdminRoutes mounts the bridge debug endpoints on mux.
func (b *Bridge) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("bridge", "Bridge counters and queue depths (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, b.Stats())
	})

	// POST signal=started|stopped|initialized
	debug.HandleSilentFunc("bridge/send-status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		sig, ok := parseStatus(r.FormValue("signal"))
		if !ok {
			httputil.BadRequest(w, "signal must be one of started, stopped, initialized")
			return
		}
		if !b.Running() {
			httputil.ServiceUnavailable(w, ErrNotStarted.Error())
			return
		}
		if err := b.TrySendStatus(sig); err != nil {
			if errors.Is(err, ErrNotStarted) || errors.Is(err, network.ErrSenderClosed) {
				httputil.ServiceUnavailable(w, err.Error())
				return
			}
			httputil.BadGateway(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"sent": sig.String(), "to": b.cfg.StatusAddr})
	})
}

func parseStatus(s string) (wire.StatusSignal, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "started":
		return wire.SimulationStarted, true
	case "stopped":
		return wire.SimulationStopped, true
	case "initialized":
		return wire.SimulationInitialized, true
	default:
		return 0, false
	}
}
