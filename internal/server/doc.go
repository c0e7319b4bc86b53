// Package server implements the core of the Hearth chat service: the session
// registry, room directory, broadcast fanout, moderation-command protocol,
// and the WebSocket gateway that binds them to client connections.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
