// Package common holds process-level helpers shared by all commands:
// logger construction and build version information.
package common

// PackageName is the service identifier used for metrics namespaces.
const PackageName = "bioregistry"

// Version is set at build time via -ldflags.
var Version = "dev"
