// Package logging wraps the standard library logger the way the rest
// of this corpus does: plain log.Printf call sites, no structured
// logging framework, with a no-op sink so embedding applications are
// never forced onto stdout.
package logging

import (
	"io"
	"log"
)

// Logger is the minimal surface Sombra's internal packages log
// through.
type Logger interface {
	Printf(format string, args ...any)
	Println(args ...any)
}

// Default returns a new Logger writing to the standard library logger's
// current output (stderr unless redirected), with the prefix "sombra: "
// and the standard date/time flags.
func Default() Logger {
	return log.New(log.Writer(), "sombra: ", log.LstdFlags)
}

// Discard returns a Logger that drops everything. OpenPager,
// txn.NewManager and maintenance.New fall back to it when their config
// carries no Logger; graphdb.Open always passes Default instead.
func Discard() Logger {
	return log.New(io.Discard, "", 0)
}
