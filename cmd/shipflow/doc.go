// Command shipflow runs the shipment lifecycle daemon and provides operator
// tooling against its database.
//
// "shipflow run" starts the engine, the queue dispatchers, and the monitoring
// API. Every other command opens the shared SQLite database directly, so queue
// and shipment maintenance works whether or not a daemon is running. "status"
// asks the daemon's API first and falls back to the database when no daemon
// answers.
package main
