// Package daqconfig parses and validates the daemon's declarative
// configuration: the device fleet (what drivers to instantiate and with
// what metadata/limits) and daemon-level settings (ring size, archive
// flush interval, default operation deadline).
//
// Configuration is authored as CUE, the way the teacher's pkg/config
// authors infrastructure resources, and decoded into plain Go structs
// that go-playground/validator checks against struct tags. A Watcher
// built on fsnotify lets the device-fleet file be edited on disk and
// hot-reloaded without restarting the daemon; daemon-level settings
// (ring size, etc.) are read once at startup and are not hot-reloaded,
// since they size objects that cannot be resized in place.
//
// None of this is on the critical path of plan admission, the run
// engine, or archive persistence — daqconfig only produces the values
// those subsystems are constructed with.
package daqconfig
