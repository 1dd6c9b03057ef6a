//go:build !linux

package runtime

import (
	"errors"
	"log/slog"
	"runtime"
)

// Host describes the operating system of current host.
type Host struct {
	Sysname string
	Machine string
}

// Info returns details of current host.
func Info() (Host, error) {
	return Host{Sysname: runtime.GOOS, Machine: runtime.GOARCH}, errors.ErrUnsupported
}

// LogValue implements slog.LogValuer.
func (h Host) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("os", h.Sysname),
		slog.String("arch", h.Machine),
	)
}
