// Package logging builds the slog loggers used across framerand.
//
// New constructs a logger from explicit options; NewFromConfig derives them
// from application config, teeing output to stdout and a log file under the
// configured log directory. The console handler prints single-line
// "[time] level: message key=value" records; the json format is a plain
// slog JSON handler for machine consumption.
package logging
