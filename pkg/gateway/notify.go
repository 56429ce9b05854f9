package gateway

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notifySystemd reports state to systemd when running as a notify service. Outside systemd
// it is a no-op.
func notifySystemd(state string, log *slog.Logger) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("Failed to notify systemd", "state", state, "error", err)
		return
	}
	if sent {
		log.Debug("Notified systemd", "state", state)
	}
}
