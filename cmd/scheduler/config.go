/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/httpserver"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/jobqueue"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/ratelimit"
	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/throttle"
)

// AppConfig is the aggregated configuration of the daemon.
// Every section keeps its own key prefix, so the sections can be loaded
// from a single file in one config.Loader call.
type AppConfig struct {
	Log       *log.Config
	Server    *httpserver.Config
	JobQueue  *jobqueue.Config
	RateLimit *ratelimit.Config
	Throttle  *throttle.Config
}

func newAppConfig() *AppConfig {
	return &AppConfig{
		Log:       log.NewConfig(),
		Server:    httpserver.NewConfig(),
		JobQueue:  jobqueue.NewConfig(),
		RateLimit: ratelimit.NewConfig(),
		Throttle:  throttle.NewConfig(),
	}
}
