// Package collector defines the records, interfaces, and error taxonomy shared
// by the SERP walker, the extraction chain, the dispatcher, and the sinks.
package collector
