package util

const openFileCommand = "notepad.exe"
