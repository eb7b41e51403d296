package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taarskog/somweb-bridge/internal/coordinator"
	"github.com/taarskog/somweb-bridge/internal/entity"
	"github.com/taarskog/somweb-bridge/internal/entry"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// errAuthRejected marks a setup failure that retrying cannot fix.
var errAuthRejected = errors.New("hub: device rejected credentials")

// Runtime is the live machinery behind one configuration entry: the
// device session, its coordinator, and the MQTT projections. It runs on
// its own goroutine until stopped or until setup fails permanently.
type Runtime struct {
	entry  *entry.Entry
	client somweb.Client
	coord  *coordinator.Coordinator
	log    *logging.Logger

	aliveRetry time.Duration

	// cmds is set by the wiring step after a successful setup; nil when
	// setup never completed. Read only after done is closed.
	cmds *entity.CommandListener

	cancel context.CancelFunc
	done   chan struct{}
}

// run drives the runtime lifecycle: retry setup while the device is
// unreachable, wire the consumers once ready, then poll until stopped.
// wire is called exactly once, after a successful setup.
func (r *Runtime) run(ctx context.Context, wire func()) {
	defer close(r.done)
	defer r.client.Close() //nolint:errcheck

	for {
		err := r.setup(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, errAuthRejected) {
			r.log.Error("device setup failed permanently", "error", err)
			return
		}

		r.log.Warn("device not ready, retrying", "retry_in", r.aliveRetry, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.aliveRetry):
		}
	}

	wire()
	r.coord.Run(ctx)
}

// setup authenticates the session and runs the coordinator's initial
// fetch. An unreachable device is retryable; rejected credentials are
// not.
func (r *Runtime) setup(ctx context.Context) error {
	if !r.client.IsAlive(ctx) {
		return fmt.Errorf("%w: device is not reachable", coordinator.ErrNotReady)
	}

	auth, err := r.client.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("%w: authenticating: %v", coordinator.ErrNotReady, err)
	}
	if !auth.Success {
		return errAuthRejected
	}

	r.log.Debug("authenticated", "udi", r.client.UDI(), "is_admin", r.client.IsAdmin())
	return r.coord.Setup(ctx)
}

// stop cancels the runtime, waits for its goroutine to exit, and
// removes the device's command subscription so commands for a stopped
// runtime can no longer reach the door.
func (r *Runtime) stop() {
	r.cancel()
	<-r.done

	if r.cmds != nil {
		if err := r.cmds.Stop(); err != nil {
			r.log.Warn("failed to remove command subscription", "error", err)
		}
	}
}

// Coordinator exposes the runtime's coordinator for API reads and
// actions.
func (r *Runtime) Coordinator() *coordinator.Coordinator {
	return r.coord
}

// Entry returns the configuration entry this runtime serves.
func (r *Runtime) Entry() *entry.Entry {
	return r.entry
}
