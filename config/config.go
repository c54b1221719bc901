// Package config loads capi's process-wide settings from the environment,
// the way nenuphar's internal/maincmd wires github.com/mna/mainer's
// EnvVars/EnvPrefix option on top of flag parsing.
//
// Grounded on mna-nenuphar's go.mod choice of github.com/caarlos0/env/v6
// (pulled in indirectly there via mna/mainer); here it is used directly, as
// a standalone struct-tag env loader rather than folded into the flag
// parser, since capi separates "how the binary was invoked" (flags, see
// internal/maincmd) from "what environment it runs in" (this package).
package config

import "github.com/caarlos0/env/v6"

// Config holds settings that make sense to vary per-environment rather than
// per-invocation: how long the frame-submit rendezvous (spec.md §5) may
// block before the engine treats the host as unresponsive, how often
// updates_E_to_U snapshots are emitted while Running, and the update
// channel's buffering.
type Config struct {
	// FrameSubmitTimeoutMS bounds how long Thread E waits at the
	// submit_frame rendezvous before giving up and resuming the process
	// without an acknowledgement; no effect is enqueued for the timeout
	// (spec.md §9 Open Question (c): resolved here as a configurable timeout
	// rather than an unbounded block, so a wedged host cannot freeze the
	// engine forever).
	FrameSubmitTimeoutMS int `env:"CAPI_FRAME_SUBMIT_TIMEOUT_MS" envDefault:"2000"`

	// UpdateIntervalMS controls how often Thread E emits a snapshot on
	// updates_E_to_U while the process is Running (spec.md §5 "periodic
	// snapshots").
	UpdateIntervalMS int `env:"CAPI_UPDATE_INTERVAL_MS" envDefault:"16"`

	// UpdateChannelBuffer sizes updates_E_to_U; spec.md describes it as
	// naturally flow-controlled, so a small buffer is enough to avoid
	// lockstep without risking unbounded memory growth.
	UpdateChannelBuffer int `env:"CAPI_UPDATE_CHANNEL_BUFFER" envDefault:"4"`

	// MaxStackDepth is loaded from the environment but read by nothing in
	// this module: runtime.MaxStackDepth is a compile-time constant, so this
	// value does not change the recursion limit.
	MaxStackDepth int `env:"CAPI_MAX_STACK_DEPTH" envDefault:"0"`
}

// Load reads Config from the current environment, applying envDefault tags
// for anything unset.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
