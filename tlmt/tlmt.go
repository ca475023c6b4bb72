// Package tlmt emits anonymous usage events for the portal, such as
// catalog builds and upload batches. It can be disabled entirely via the
// DISABLE_TELEMETRY environment variable, checked by the runner.
package tlmt

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

var (
	once       sync.Once
	identifier machineIdentifier
)

type Event struct {
	AnonymousID string
	Name        string
	Properties  map[string]any
}

func NewEvent(name string, props map[string]any) Event {
	ev := Event{
		AnonymousID: generateMachineID().id,
		Name:        name,
		Properties:  make(map[string]any),
	}

	for k, v := range generateMachineID().meta {
		ev.Properties[k] = v
	}

	for k, v := range props {
		ev.Properties[k] = v
	}

	return ev
}

type Telemetry interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

type machineIdentifier struct {
	id   string
	meta map[string]any
}

// generateMachineID derives a stable anonymous id from the hostname and
// build platform. No network calls, no hardware fingerprinting.
func generateMachineID() machineIdentifier {
	once.Do(func() {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = uuid.New().String()
		}

		hash := sha256.New()
		hash.Write([]byte(hostname))
		hash.Write([]byte(runtime.GOARCH))
		hash.Write([]byte(runtime.GOOS))
		hash.Write([]byte(runtime.Version()))

		identifier.id = fmt.Sprintf("%x", hash.Sum(nil))
		identifier.meta = map[string]any{
			"os":   runtime.GOOS,
			"arch": runtime.GOARCH,
		}
	})

	return identifier
}
