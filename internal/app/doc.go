// Package app assembles a standin process from its configuration.
package app
