package bridge

import (
	"fmt"
	"net/http"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes adds the controller's last acknowledgement and error
// count to the /debug/ index.
func (l *Link) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Controller ack", func() any {
		ack, errs := l.LastAck()
		if ack == "" {
			ack = "none"
		}
		return fmt.Sprintf("%s (%d errors)", ack, errs)
	})
}
