// Package calibration defines the types used by the thermal calibration
// workflow. It contains:
//
//   - Step: one stage of a calibration plan (target temperature and dwell)
//   - Telemetry: a single push event emitted by the controller while a run is active
//   - Phase: whether the reference is still ramping or dwelling at target
//   - RunStatus: the client-side run/idle state machine
//
// It also owns the wire format of the "calibration-update" payload and the
// derived metrics shown to the operator (sensor average, global progress).
//
// These types are shared across the controller daemon, the client and the
// monitor so that both ends of the socket agree on one JSON contract.
package calibration
