// Package infra contains technical adapters: datagram transports, metrics
// exporters, audit log stores and file loaders. These packages depend only
// on the interfaces defined in the core packages.
package infra
