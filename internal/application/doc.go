// Package application provides application initialization and dependency wiring.
// It opens the configured inventory store and builds the calculator, the
// inventory feed, the deduction applier, handlers, routers and the HTTP server,
// keeping the main package focused on CLI parsing and signal handling.
package application
