package web

import (
	_ "embed"
)

//go:embed dist/dashboard.html
var DashboardHTML []byte

//go:embed dist/console.html
var ConsoleHTML []byte
