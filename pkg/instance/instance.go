package instance

import (
	"os"
	"strings"
)

const envWorkerID = "REPAIRHUB_WORKER_ID"

// ID names this process in worker logs: REPAIRHUB_WORKER_ID when set, the
// hostname otherwise, and "worker-0" as a last resort.
func ID() string {
	if id := strings.TrimSpace(os.Getenv(envWorkerID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
