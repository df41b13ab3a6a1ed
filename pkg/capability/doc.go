// Package capability declares the narrow, orthogonal contracts a driver
// opts into: Movable, Readable, Triggerable, FrameProducer,
// ExposureControl, ShutterControl, WavelengthTunable, EmissionControl,
// and Parameterized. The registry hands out handles narrowed to exactly
// one of these interfaces per lookup; a driver's capability set is fixed
// at registration and never revoked while the device is live.
package capability
