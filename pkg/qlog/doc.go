// Package qlog is a thin zerolog wrapper shared by every long-running
// loop in this module (the AO event loop, the ISR relay worker, the
// dispatcher thread, the health watchdog): one global logger, component-
// scoped child loggers, and a handful of level helpers.
package qlog
