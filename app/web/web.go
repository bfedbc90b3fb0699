// Package web holds the browser chat page served at /.
package web

import _ "embed"

//go:embed index.html
var Index []byte
