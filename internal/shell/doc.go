// Package shell owns the device shell subprocess lifecycle.
//
// Ownership boundary:
// - spawn (local or over ssh)
//
// - readiness detection on the ready-prompt marker
//
// - single command submission and settle delay
//
// - stdout/stderr collection and noise filtering
//
// - termination and exit-status mapping
//
// Lifecycle order:
// - spawn -> ready -> submit -> settle -> quit -> exit
//
// - exactly one command is written per lifecycle; a process is never reused.
//
// - the settle delay is a fixed budget, not an acknowledgement. A device that
// answers late yields a successful but empty result.
//
// Shell does not own the command vocabulary or result interpretation.
package shell
