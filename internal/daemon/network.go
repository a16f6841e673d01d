package daemon

import (
	"context"
	"log/slog"

	"github.com/g960059/showrunner/internal/network"
)

// ServeNetwork posts every datagram from other nodes to the loop until ctx
// is done.
func ServeNetwork(ctx context.Context, ln *network.Listener, loop Poster, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log.Info("listening for broadcasts", "addr", ln.Addr().String())
	return ln.Serve(ctx, func(d network.Datagram) {
		if !loop.Post(networkCommand(d)) {
			log.Warn("dropping datagram: control loop stopped", "item", uint32(d.Item), "origin", d.Origin)
		}
	})
}
