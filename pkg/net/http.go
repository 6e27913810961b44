package net

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
)

// ErrorURLNotFound is returned when the server answers 404.
var ErrorURLNotFound = errors.New("URL not found")

// GetJSON retrieves the HTTP content and decodes it into the passed target.
func GetJSON[T any](ctx context.Context, client *http.Client, url string, target *T) error {
	req, err := newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error executing HTTP Get request: %w", err)
	}
	defer resp.Body.Close()
	DumpResponse(resp)

	if resp.StatusCode == http.StatusNotFound {
		return ErrorURLNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("error decoding content: %w", err)
	}
	return nil
}

// Download saves the content at url to path.
func Download(ctx context.Context, client *http.Client, url, path string) (retErr error) {
	req, err := newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return fmt.Errorf("error creating HTTP Get request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error executing HTTP Get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrorURLNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("error downloading file (status: %d - %s): %s", resp.StatusCode, resp.Status, url)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating file %s: %w", path, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("error saving downloaded content to file: %w", err)
	}
	return nil
}

// DumpResponse logs the response headers at debug level.
func DumpResponse(resp *http.Response) {
	if resp == nil || !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if b, err := httputil.DumpResponse(resp, false); err == nil {
		slog.Debug("http response", "dump", string(b))
	}
}
