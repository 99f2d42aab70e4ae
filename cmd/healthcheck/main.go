// Command healthcheck checks a running mapforge instance. It exits non-zero
// unless the health endpoint answers with status "ok".
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

type health struct {
	Status   string `json:"status"`
	Mappings int    `json:"mappings"`
}

func main() {
	url := flag.String("url", "http://localhost:8080/health", "health endpoint to query")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	minMappings := flag.Int("min-mappings", 0, "fail when fewer mappings are loaded")
	flag.Parse()

	if err := checkHealth(*url, *timeout, *minMappings); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func checkHealth(url string, timeout time.Duration, minMappings int) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: HTTP %d", resp.StatusCode)
	}

	var h health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("unreadable health response: %w", err)
	}
	if h.Status != "ok" {
		return fmt.Errorf("unhealthy: status %q", h.Status)
	}
	if h.Mappings < minMappings {
		return fmt.Errorf("only %d of %d mappings loaded", h.Mappings, minMappings)
	}
	return nil
}
