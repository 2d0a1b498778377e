// Package infra holds the station's technical adapters: persistence backends,
// the event journal, MQTT and websocket publishers, metrics exporters, Sentry
// monitoring, password hashing and token issuing. Adapters depend on the
// interfaces declared under core and never on each other.
package infra
