// Package api defines the wire types shared by both sides of the handshake
//
// This package contains the protocol envelope (Context), the offer and order
// model exchanged during discovery, selection, and confirmation, the request
// and callback wrappers, acknowledgments, and the transaction record that
// correlates callbacks to in-flight flows
package api
