//go:build !windows

package confdesk

import _ "embed"

//go:embed assets/logo.png
var ConfdeskLogoIconData []byte
