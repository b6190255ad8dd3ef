// Package config loads the reactor server configuration.
//
// The configuration lives in reactor.yaml (or reactor.json) next to the
// binary. JSON files are read by the same YAML decoder, so either syntax
// works with either extension.
//
// # Configuration File Structure
//
//	server:
//	  address: ":8080"
//	  websocket_path: /ws
//	  max_sessions: 10000
//	session:
//	  read_timeout: 60s
//	  heartbeat_interval: 30s
//	  update_queue_size: 1024
//	signing:
//	  key_env: REACTOR_SIGNING_KEY
//	  algorithm: hmac-sha256
//	metrics:
//	  enabled: true
//	  path: /metrics
//	tracing:
//	  enabled: false
//	log:
//	  level: info
//	  format: text
//	todo:
//	  database: todo.db
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.PrintError(err)
//	    os.Exit(1)
//	}
//	srv := server.New(cfg.ServerConfig(), rt)
package config
