// Copyright (C) 2024 Gergely Benson
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package i8x

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Severity is a syslog-style log priority, plus Trace one level below Debug.
type Severity int

const (
	Emerg Severity = iota
	Alert
	Crit
	Err
	Warning
	Notice
	Info
	Debug
	Trace
)

var severityNames = [...]string{
	Emerg: "emerg", Alert: "alert", Crit: "crit", Err: "err",
	Warning: "warning", Notice: "notice", Info: "info", Debug: "debug", Trace: "trace",
}

func (s Severity) String() string {
	if int(s) >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "unknown"
}

// ParseSeverity accepts either one of the named priorities or a bare
// numeric level, matching the "log-priority selector" configuration
// point of the note/bytecode host interface.
func ParseSeverity(s string) (Severity, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for sev, name := range severityNames {
		if name == s {
			return Severity(sev), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Severity(n), nil
	}
	return 0, fmt.Errorf("i8x: unrecognized log priority %q", s)
}

// Logger receives diagnostic messages from a Context. file/line identify
// the call site within this package (via runtime.Caller), fn names the
// reporting function, matching the host log callback described for
// Infinity Note hosts.
type Logger func(priority Severity, file string, line int, fn string, format string, args ...any)

// DiscardLogger drops every message; it is the default for a Context that
// is not given an explicit Logger.
func DiscardLogger(Severity, string, int, string, string, ...any) {}

func (c *Context) logf(sev Severity, calldepth int, format string, args ...any) {
	if c.logger == nil || sev > c.minSeverity {
		return
	}
	pc, file, line, ok := runtime.Caller(calldepth + 1)
	fn := "?"
	if ok {
		if f := runtime.FuncForPC(pc); f != nil {
			fn = f.Name()
		}
	}
	c.logger(sev, file, line, fn, format, args...)
}

// Logf emits a diagnostic message at the given severity through the
// Context's logger, if one is registered and sev is not filtered out.
func (c *Context) Logf(sev Severity, format string, args ...any) {
	c.logf(sev, 1, format, args...)
}
