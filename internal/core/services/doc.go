// Package services contains the core application services implementing
// the driving ports. Services orchestrate the storage engine and the
// embedding service; they contain no storage or transport code of their
// own.
package services
