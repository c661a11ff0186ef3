package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/scalewatch/scalewatch/internal/daemon"
)

// apiAddr is the --addr flag shared by the client subcommands. Empty
// means "use the configured api host:port".
var apiAddr string

func clientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&apiAddr, "addr", "", "Daemon API address (default from config)")
}

// baseURL resolves the daemon address from the flag or the config file.
func baseURL() (string, error) {
	if apiAddr != "" {
		return "http://" + apiAddr, nil
	}
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d", cfg.API.Host, cfg.API.Port), nil
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

// getJSON fetches path from the daemon and decodes the response into v.
func getJSON(path string, v any) error {
	base, err := baseURL()
	if err != nil {
		return err
	}
	resp, err := httpClient.Get(base + path)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// postJSON sends body to path and decodes the response into v.
func postJSON(path string, body, v any) error {
	base, err := baseURL()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// getRaw fetches path and returns the raw body, for CSV export.
func getRaw(path string) ([]byte, error) {
	base, err := baseURL()
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Get(base + path)
	if err != nil {
		return nil, fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s (%s)", body.Error, resp.Status)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}
