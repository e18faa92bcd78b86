package device

// PlatformOptions selects the OS bus endpoints the platform observers attach to
type PlatformOptions struct {
	// PulseServer is the PulseAudio server address, "" for the default one
	PulseServer string

	// VideoDeviceDir is the directory holding video capture nodes
	VideoDeviceDir string
}
