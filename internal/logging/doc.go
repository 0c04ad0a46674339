// Package logging provides module-scoped slog loggers for boothcam.
//
// Records go to the systemd journal when journald is reachable, to stdout
// when it is usable, or to both through a [MultiHandler]. Stdout takes the
// configured text or json format; the journal always gets structured fields.
//
// Call [Initialize] once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"session": "debug", "http": "warn"},
//	})
//	logger := logging.GetLogger("session").With("device_id", id)
//	logger.Info("Device opened", "state", state)
//
// Loggers handed out before Initialize stay valid: each module keeps its
// level in a [slog.LevelVar], so [SetLevels] changes them in place.
// The config watcher calls SetLevels when the [logging] table of the TOML file
// changes:
//
//	[logging]
//	level = "info"
//	format = "text"
//	session = "debug"
//	driver = "warn"
//
// Module names in use: session, camera, surface, driver, storage, devices,
// bridge, api, http, diagnostics, main.
//
// On the journal, attributes are upper-cased and groups joined with '_':
//
//	journalctl -t boothcam MODULE=session DEVICE_ID=2 -p warning
package logging
