// Package common holds process-wide helpers: logger setup and version.
package common
