package sim

import (
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/simbridge/internal/httputil"
)

// AttachAdminRoutes mounts /debug/sim, the controller state as JSON.
func (c *Controller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("sim", "Simulation state (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, c.Snapshot())
	})
}
