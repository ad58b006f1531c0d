package serialmux

import (
	"context"
	"net/http"

	"tailscale.com/tsweb"
)

// DisabledSerialMux stands in for the controller when the robot runs in
// the simulator. Commands are accepted and discarded; no telemetry ever
// arrives, but subscriber channels still close on Unsubscribe and Close so
// readers unblock during shutdown.
type DisabledSerialMux struct {
	subs *fanout
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subs: newFanout()}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) { return d.subs.add(0) }

func (d *DisabledSerialMux) Unsubscribe(id string) { d.subs.remove(id) }

func (d *DisabledSerialMux) SendCommand(string) error { return nil }

func (d *DisabledSerialMux) Initialize(...string) error { return nil }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.subs.shut()
	return nil
}

func (d *DisabledSerialMux) Stats() Stats {
	st := Stats{Lines: map[string]uint64{}}
	st.Subscribers, st.Dropped = d.subs.counts()
	return st
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("controller", "controller link (simulated)", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("controller disabled: running in the simulator\n"))
	})
	debug.HandleFunc("controller-stats", "controller link counters", func(w http.ResponseWriter, r *http.Request) {
		writeStats(w, d.Stats())
	})
}

var (
	_ SerialMuxInterface = (*DisabledSerialMux)(nil)
	_ SerialMuxInterface = (*SerialMux[*FakePort])(nil)
)
