package start

import (
	"context"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"
)

// Healthy reports whether state describes a daemon that is alive and
// answering on its API address. A nil or partial state is unhealthy.
func Healthy(ctx context.Context, state *State) bool {
	if state == nil || state.DaemonPID == 0 || state.APIURL == "" {
		return false
	}
	if !ProcessAlive(state.DaemonPID) {
		return false
	}
	return APIReachable(ctx, state.APIURL)
}

// ProcessAlive reports whether a process with the given pid exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// APIReachable reports whether the server at apiURL answers OK on its
// health endpoint.
func APIReachable(ctx context.Context, apiURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	url := strings.TrimRight(apiURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
