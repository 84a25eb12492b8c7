package common

var (
	// Version is overridden at build time with -ldflags.
	Version = "dev"

	// PackageName is used as the metrics namespace prefix.
	PackageName = "sui_escrow_gateway"
)
