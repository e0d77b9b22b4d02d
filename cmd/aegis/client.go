package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aegis-hq/firewall/pkg/cli"
	"aegis-hq/firewall/pkg/server/types"
)

// serverBase resolves the base URL of a running server from a --server
// flag value, falling back to the configured listen address.
func serverBase(flag string) (string, error) {
	if flag != "" {
		return strings.TrimRight(flag, "/"), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return "http://" + cfg.Server.ListenAddress, nil
}

// callServer sends a JSON request to a running server and decodes the
// response into out. API errors with a 4xx status become a ConfigError on
// field; anything else is a CommandError for command.
func callServer(ctx context.Context, command, field, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return cli.NewConfigError("server", err.Error())
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return cli.NewCommandError(command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr types.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error.Message == "" {
			return cli.NewCommandError(command, fmt.Errorf("server returned %s", resp.Status))
		}
		if resp.StatusCode < 500 {
			return cli.NewConfigError(field, apiErr.Error.Message)
		}
		return cli.NewCommandError(command, fmt.Errorf("%s", apiErr.Error.Message))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return cli.NewCommandError(command, fmt.Errorf("invalid response: %w", err))
	}
	return nil
}
