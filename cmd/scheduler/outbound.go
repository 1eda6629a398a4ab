/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/jobqueue"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/restapi"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/throttle"
)

// jobTypeOutboundRequest is the built-in job type that performs an HTTP
// request to an external service through the throttler. The service name
// selects the pacing profile from the throttling config.
const jobTypeOutboundRequest = "outboundRequest"

const outboundRequestTimeout = time.Second * 30

type outboundRequestPayload struct {
	Service string `mapstructure:"service"`
	Method  string `mapstructure:"method"`
	URL     string `mapstructure:"url"`
}

func newOutboundRequestHandler(throttler *throttle.Throttler, logger log.FieldLogger) jobqueue.Handler {
	client := &http.Client{Timeout: outboundRequestTimeout}
	return func(ctx context.Context, payload interface{}, job jobqueue.Job) (interface{}, error) {
		var p outboundRequestPayload
		if err := mapstructure.Decode(payload, &p); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if p.Service == "" || p.URL == "" {
			return nil, fmt.Errorf(`payload fields "service" and "url" should not be empty`)
		}
		method := p.Method
		if method == "" {
			method = http.MethodGet
		}

		status, err := throttle.Do(ctx, throttler, p.Service, func(opCtx context.Context) (int, error) {
			req, reqErr := http.NewRequestWithContext(opCtx, method, p.URL, nil)
			if reqErr != nil {
				return 0, fmt.Errorf("build request: %w", reqErr)
			}
			resp, respErr := restapi.DoRequest(client, req, logger)
			if respErr != nil {
				return 0, respErr
			}
			defer resp.Body.Close()
			// 5xx responses go through the throttler's retry schedule.
			if resp.StatusCode >= http.StatusInternalServerError {
				return 0, fmt.Errorf("service %s responded with status %d", p.Service, resp.StatusCode)
			}
			return resp.StatusCode, nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": status}, nil
	}
}
