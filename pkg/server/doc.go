// Package server hosts the per-connection protocol engine.
//
// A Session owns one connection's component tree and topic memberships.
// It runs three loops under one errgroup:
//
//   - the read loop decodes nothing; it only moves raw frames from the
//     transport into the command queue
//   - the event loop is the single writer of the tree: it processes
//     commands in arrival order and interleaves topic events delivered by
//     the registry
//   - the heartbeat loop pings the client
//
// When any loop stops, the others are cancelled and the session leaves
// every topic it joined before its tree is discarded. Topic events wait in
// an unbounded mailbox until the event loop applies them; only events
// published to a torn-down session are discarded.
//
// # Commands
//
// Inbound commands are routed through a static table:
//
//	join        verify the state envelope, get or create, render in full
//	user_event  merge arguments, run the handler, render the diff
//	leave       destroy the component and everything it owns
//
// A failing command is logged and counted but never ends the session and
// never produces a wire message.
//
// # Topic events
//
//	update    re-run update handlers of subscribed components, render each
//	remove    destroy the addressed component and tell the client
//	visit     forward a navigation instruction
//	dispatch  run a handler as if the client had sent user_event
//
// # Server
//
// Server upgrades HTTP requests on the configured path with
// gorilla/websocket and hands the connection to the SessionManager:
//
//	srv := server.New(server.DefaultServerConfig(), runtime)
//	srv.Use(middleware.Prometheus(), middleware.OpenTelemetry())
//	log.Fatal(srv.Run(ctx))
package server
