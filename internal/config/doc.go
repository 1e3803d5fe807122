// Package config loads taskstream-server configuration from YAML.
//
// # File Format
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  keep_alive: "15s"        # SSE comment interval
//	  shutdown_timeout: "5s"
//
//	database:
//	  path: "${TASKSTREAM_DB}"
//
//	runner:
//	  step_delay: "300ms"
//	  step_jitter: "200ms"
//
//	logging:
//	  level: "info"            # debug, info, warn, error
//	  format: "text"           # text or json
//
// Every field is optional; Default supplies the values shown above, with
// ./taskstream.db as the database path.
//
// # Environment Variables
//
// ${VAR_NAME} anywhere in the file is replaced with the variable's value
// before parsing. Unset variables expand to an empty string.
//
// # Durations
//
// Durations are written as Go duration strings ("300ms", "5s") and parsed
// into time.Duration after unmarshaling.
package config
