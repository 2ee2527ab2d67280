package supervisor

import (
	"errors"
	"fmt"

	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

// ErrPortBindFailure means no ephemeral port could be reserved for the
// worker. A later attempt may succeed with a different port.
var ErrPortBindFailure = errors.New("failed to bind a local port")

// StartError reports a worker that did not become ready in time. It
// carries whatever descriptor state exists and whether the process is
// still alive, so the failure can be diagnosed without reproducing it.
// The spawned process is not killed on timeout: a slow worker may still
// come up and will be found alive on the next start for the same key.
type StartError struct {
	Descriptor   *types.WorkerDescriptor
	ProcessAlive bool
	Err          error
}

func (e *StartError) Error() string {
	id := "<none>"
	url := "<unset>"
	if e.Descriptor != nil {
		id = e.Descriptor.ID
		if e.Descriptor.LocalURL != "" {
			url = e.Descriptor.LocalURL
		}
	}
	return fmt.Sprintf("worker %s did not become ready (alive=%t, local_url=%s): %v",
		id, e.ProcessAlive, url, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
