// Package base defines the names and variables that have global scope
// throughout which can be used in other subpackages
package base

import (
	"github.com/alecthomas/kingpin/v2"
)

// ServerAppName is kingpin app name of the dashboard server.
const ServerAppName = "marzstat"

// ReportAppName is kingpin app name of the terminal report.
const ReportAppName = "mstat"

// ServerApp is the dashboard server kingpin app.
var ServerApp = *kingpin.New(
	ServerAppName,
	"Dashboard of Marzban user traffic and connection statistics.",
)

// ReportApp is the terminal report kingpin app.
var ReportApp = *kingpin.New(
	ReportAppName,
	"Print Marzban user traffic and connection statistics as tables.",
)

// WebConfig makes HTTP web config from CLI args.
type WebConfig struct {
	Addresses         []string
	WebSystemdSocket  bool
	WebConfigFile     string
	RequestsLimit     int
	EnableDebugServer bool
}
