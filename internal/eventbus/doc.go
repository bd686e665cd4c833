// Package eventbus is a synchronous publish/subscribe bus with priority bands.
//
// Handlers for an event run in ascending priority order; handlers that share
// a priority run in registration order. Any handler may cancel the event,
// which skips every later handler except those registered at Monitor
// priority. A failing or panicking handler is logged with its owner and never
// stops dispatch to the remaining handlers.
package eventbus
