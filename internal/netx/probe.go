package netx

import (
	"context"
	"io"
	"net/http"
)

// Probe reports the status a URL answers with. It tries HEAD first and
// falls back to GET when HEAD fails or is refused (405, 501). The GET body
// is discarded.
func Probe(ctx context.Context, client *http.Client, url string) (int, string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	code, err := probeOnce(ctx, client, http.MethodHead, url)
	if err == nil && code != http.StatusMethodNotAllowed && code != http.StatusNotImplemented {
		return code, http.MethodHead, nil
	}
	if ctx.Err() != nil {
		return 0, http.MethodHead, ctx.Err()
	}

	code, err = probeOnce(ctx, client, http.MethodGet, url)
	return code, http.MethodGet, err
}

func probeOnce(ctx context.Context, client *http.Client, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}
