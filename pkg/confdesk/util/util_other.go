//go:build !linux && !windows

package util

const openFileCommand = "open"
