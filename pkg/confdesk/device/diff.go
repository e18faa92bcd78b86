package device

// Diff compares two snapshots as sets of identities. Devices present only in next
// are connected, devices present only in prev are disconnected. Devices that merely
// changed position produce nothing.
func Diff(prev, next []Device) (connected, disconnected []Device) {
	before := make(map[Identity]struct{}, len(prev))
	for _, d := range prev {
		before[d.Identity()] = struct{}{}
	}

	after := make(map[Identity]struct{}, len(next))
	for _, d := range next {
		after[d.Identity()] = struct{}{}
	}

	for _, d := range next {
		if _, ok := before[d.Identity()]; !ok {
			connected = append(connected, d)
			before[d.Identity()] = struct{}{} // duplicates in next emit once
		}
	}

	for _, d := range prev {
		if _, ok := after[d.Identity()]; !ok {
			disconnected = append(disconnected, d)
			after[d.Identity()] = struct{}{}
		}
	}

	return connected, disconnected
}
