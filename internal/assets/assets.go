// Package assets holds the browser scripts compiled into the binary.
package assets

import _ "embed"

// CollectJS is a function expression returning the probe report. The gate
// script calls it in visitors' browsers; the audit probe evaluates it in a
// headless browser.
//
//go:embed collect.js
var CollectJS string

//go:embed gate.js
var gateJS string

// ProbeJS is the script served at /probe.js.
var ProbeJS = []byte("const __bgCollect = " + CollectJS + ";\n" + gateJS)
