// Package middleware provides observability for reactor sessions.
//
// # OpenTelemetry Middleware
//
// OpenTelemetry starts one span per session op: every inbound command
// and every propagated topic event. Spans carry the session id, op name,
// target and component id, and the number of events the op sent.
//
//	srv.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("todo"),
//	))
//
// The tracer comes from the global provider unless WithTracerProvider is
// given. Handlers reach the span through the standard context of their
// component.Context.
//
// # Prometheus Metrics
//
// Prometheus counts and times ops:
//   - reactor_ops_total: ops by name and status
//   - reactor_op_duration_seconds: op duration histogram
//   - reactor_op_errors_total: rejected ops by name and error type
//
// Hooks and TopicObserver feed the traffic metrics:
//   - reactor_active_sessions: live sessions
//   - reactor_events_sent_total: outbound events by type
//   - reactor_event_bytes_total: outbound bytes
//   - reactor_update_backlogs_total: sessions falling behind their topic events
//   - reactor_topic_publishes_total, reactor_topic_deliveries_total
//
//	srv.Use(middleware.Prometheus())
//	srv.SetHooks(middleware.Hooks())
//	topics := topic.NewRegistry(topic.WithObserver(middleware.TopicObserver()))
//
//	http.Handle("/metrics", promhttp.Handler())
package middleware
