package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
)

// postJSON sends one JSON POST and decodes the response body. Transport
// failures and 5xx responses get exactly one retry with a short backoff;
// 4xx responses are never retried. Every attempt is logged with a request id.
func postJSON(ctx context.Context, hc *http.Client, log zerolog.Logger, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request")
	}

	reqID := uuid.New().String()
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperrors.Wrap(ctx.Err(), apperrors.ErrCodeTransient, "request cancelled")
			case <-time.After(500 * time.Millisecond):
			}
			log.Warn().Str("req_id", reqID).Str("url", url).Msg("retrying request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := hc.Do(req)
		if err != nil {
			lastErr = apperrors.Wrap(err, apperrors.ErrCodeTransient, "request failed")
			log.Warn().Str("req_id", reqID).Str("url", url).Err(err).
				Int64("elapsed_ms", time.Since(start).Milliseconds()).
				Msg("http request failed")
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		log.Debug().Str("req_id", reqID).Str("url", url).
			Int("status", resp.StatusCode).Int("bytes", len(raw)).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("http response")

		if readErr != nil {
			lastErr = apperrors.Wrap(readErr, apperrors.ErrCodeTransient, "read response body")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = apperrors.New(apperrors.ErrCodeTransient,
				fmt.Sprintf("server error %d from %s", resp.StatusCode, url))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apperrors.New(apperrors.ErrCodeInternal,
				fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, url))
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeMalformedResponse, "decode response")
		}
		return nil
	}

	return lastErr
}
