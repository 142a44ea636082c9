// Command healthcheck probes the local bilipublish health endpoint. It is the
// container HEALTHCHECK, so it exits 0 when the service answers and 1 otherwise.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
)

const defaultAddr = "127.0.0.1:8080"

func main() {
	os.Exit(check(os.Getenv("BILIPUBLISH_LISTEN_ADDR"), os.Stderr))
}

func check(listenAddr string, stderr io.Writer) int {
	url := fmt.Sprintf("http://%s/api/v1/health", normalizeAddr(listenAddr))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fmt.Fprintln(stderr, "healthcheck:", err)
		return 1
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(stderr, "healthcheck:", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintln(stderr, "healthcheck: status", resp.StatusCode)
		return 1
	}

	// A degraded report still means the process is serving; only a body
	// that is not a health report fails the probe.
	var report struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&report); err != nil || report.Status == "" {
		fmt.Fprintln(stderr, "healthcheck: unexpected body")
		return 1
	}
	if report.Status != "ok" {
		fmt.Fprintln(stderr, "healthcheck: service", report.Status)
	}
	return 0
}

// normalizeAddr ensures the healthcheck connects to loopback rather than the
// bind-all address. The probe runs inside the same container as the server.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
