// Package device owns the named device operations.
//
// Every operation builds exactly one shell command, runs it through an
// Executor and folds the outcome into a Result. Failures never escape as Go
// errors; callers only see Result.Success.
package device
