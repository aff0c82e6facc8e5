// Package utils provides the named logrus loggers shared by every component,
// with log4j-style console output, JSON output and rolling log files.
package utils
