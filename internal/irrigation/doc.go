// Package irrigation turns connected irrigation controllers into accessory
// records.
//
// Discovery dials every configured controller (bounded by
// platform.discovery_concurrency) and hands each one to the Reconciler,
// which runs a fixed sequence of passes:
//
//	irrigation system
//	leak sensor
//	valve + contact sensor, per reported zone
//	program switches A-D
//	stop switch
//	delay switch
//	stale sweep
//
// Each pass derives the record identifier from the controller address,
// model and serial, looks it up in the accessory.Registry and creates,
// restores or removes the record. The irrigation-system record owns the
// per-zone configured map that gates the zone passes.
//
// Once the system pass has run, a Listener follows zone_enable
// notifications and re-runs the zone passes for the affected zone. Passes
// and notifications for one controller never run concurrently.
//
// A controller that cannot be reached, rejects its credential or has an
// incomplete device entry is logged and skipped. Its existing records are
// left alone until a later successful pass.
package irrigation
