// Package app wires the retail sales web service together and manages its
// lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration from .env, MARTS_* environment variables and an optional YAML file
//	2. Initialize slog and OpenTelemetry (Prometheus metrics, optional stdout traces)
//	3. Load the category lookup and color palette
//	4. Build the websocket hub, the Census client and its cache
//	5. Build the retail and health services
//	6. Set up chi routes and middleware
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// New accepts an explicit configuration and is what the tests use.
//
// # Graceful Shutdown
//
// Run blocks until SIGINT, SIGTERM or a listener failure, then drains the
// HTTP server within Server.ShutdownTimeout, stops the hub, flushes
// telemetry and closes the log file. The package never calls os.Exit.
package app
