// Package commands holds the signalyou CLI commands.
package commands
