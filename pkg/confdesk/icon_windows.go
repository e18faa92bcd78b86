package confdesk

import _ "embed"

// ConfdeskLogoIconData is the tray icon; the Windows tray wants ICO data
//
//go:embed assets/logo.ico
var ConfdeskLogoIconData []byte
