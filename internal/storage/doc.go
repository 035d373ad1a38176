// Package storage encodes run records into their file formats and fans them
// out to the configured sinks. Concrete backends live in the subpackages.
package storage
