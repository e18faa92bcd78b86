package util

const openFileCommand = "xdg-open"
