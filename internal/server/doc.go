// Package server exposes the initiator and responder over HTTP
//
// The /beckn group receives callbacks and runs flows, /mock-bpp accepts
// phase-initiating requests for the simulated responder, and /ws streams
// transaction record changes
package server
