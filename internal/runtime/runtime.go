//go:build linux

// Package runtime reports details of the host the apps run on.
package runtime

import (
	"fmt"
	"log/slog"
	"math"
	"syscall"

	"golang.org/x/sys/unix"
)

// syscall.RLIM_INFINITY is int on some architectures.
var unlimited uint64 = syscall.RLIM_INFINITY & math.MaxUint64

// Host describes the operating system and resource limits of current host.
type Host struct {
	Sysname  string
	Release  string
	Machine  string
	Nodename string
	FdSoft   uint64
	FdHard   uint64
}

// Info returns details of current host.
func Info() (Host, error) {
	var buf unix.Utsname
	if err := unix.Uname(&buf); err != nil {
		return Host{}, fmt.Errorf("uname: %w", err)
	}

	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlimit); err != nil {
		return Host{}, fmt.Errorf("getrlimit: %w", err)
	}

	return Host{
		Sysname:  unix.ByteSliceToString(buf.Sysname[:]),
		Release:  unix.ByteSliceToString(buf.Release[:]),
		Machine:  unix.ByteSliceToString(buf.Machine[:]),
		Nodename: unix.ByteSliceToString(buf.Nodename[:]),
		FdSoft:   rlimit.Cur,
		FdHard:   rlimit.Max,
	}, nil
}

// LogValue implements slog.LogValuer.
func (h Host) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("os", h.Sysname+" "+h.Release),
		slog.String("arch", h.Machine),
		slog.String("hostname", h.Nodename),
		slog.String("fd_limits", fmt.Sprintf("(soft=%s, hard=%s)", limit(h.FdSoft), limit(h.FdHard))),
	)
}

func limit(v uint64) string {
	if v == unlimited {
		return "unlimited"
	}

	return fmt.Sprintf("%d", v)
}
