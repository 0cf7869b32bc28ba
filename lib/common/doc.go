// Package common contains the pieces shared by the library packages and the
// command line: the process configuration (Config) and the logger setup.
//
// Logging uses the logger facade of dragonboat (github.com/lni/dragonboat/v4/logger).
// Every package obtains its logger once with logger.GetLogger("<package>");
// InitLoggers installs a factory that prints "LEVEL | package | message" lines
// and sets the level of all package loggers listed in Loggers.
package common
