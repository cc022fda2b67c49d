// Package renderer defines the audible-rendering contract an Alert drives.
// Rendering itself (mixing, output device selection, asset decoding) lives
// outside this module; a device integrator supplies a Renderer.
package renderer

import "context"

// Renderer starts and stops audible rendering of a single alert on command.
//
// Start must not block past kicking the render off. done is invoked exactly
// once: with a nil error when rendering finished naturally (e.g. the tone's
// duration elapsed), or with context.Canceled when Stop ended it early.
// Start may be called again for the same token after a prior render's done
// callback has fired; concurrent Start calls for the same token are not
// supported and are the caller's (Alert's) responsibility to serialize.
type Renderer interface {
	Start(ctx context.Context, token, typeName string, done func(err error)) error
	Stop(token string) error
}

// NopRenderer never sounds anything; Start reports success and never calls
// done. Useful as a default for alert types with no bound audio asset yet,
// and in tests that only care about state transitions.
type NopRenderer struct{}

func (NopRenderer) Start(ctx context.Context, token, typeName string, done func(err error)) error {
	return nil
}

func (NopRenderer) Stop(token string) error { return nil }
