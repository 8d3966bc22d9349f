package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/button-bridge/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return status.ConnectedUnknown
		}
		return s
	},
	"connClass": func(s string) string {
		switch s {
		case status.ConnectedOn:
			return "on"
		case status.ConnectedOff:
			return "off"
		}
		return "unknown"
	},
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Button Bridge</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Button Bridge</h1>

<h2>Devices</h2>
<table>
<tr><th>Serial</th><th>Name</th><th>Address</th><th>Registered</th><th>Connected</th><th>Holding</th></tr>
{{range .Devices}}<tr>
<td>{{orDash .SerialNumber}}</td>
<td>{{orDash .Name}}</td>
<td>{{.Address}}</td>
<td>{{if .Registered}}yes{{else}}no{{end}}</td>
<td class="{{connClass .Connected}}">{{stateOrUnknown .Connected}}</td>
<td>{{if .Holding}}yes{{else}}no{{end}}</td>
</tr>
{{else}}<tr><td colspan="6">no devices</td></tr>
{{end}}</table>

<h2>Inputs</h2>
<table>
<tr><th>Baseline</th><td>{{if .Inputs.Baselined}}established{{else}}waiting{{end}}</td></tr>
{{range .Inputs.Buttons}}<tr><th>{{.Address}}</th><td>{{stateOrUnknown .Level}}</td></tr>
{{end}}{{range $kind, $n := .Inputs.Gestures}}<tr><th>{{$kind}}</th><td>{{$n}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Bridge topics</th><td>{{.Config.BridgeNamespace}}/</td></tr>
<tr><th>Discovery topics</th><td>{{.Config.DiscoveryNamespace}}/</td></tr>
</table>

<h2>Event Counts</h2>
<table>
{{range $kind, $n := .EventCounts}}<tr><th>{{$kind}}</th><td>{{$n}}</td></tr>
{{end}}<tr><th>registrations skipped</th><td>{{.Skipped}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Fatal delay</th><td>{{.Config.FatalDelayMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/devices.json">devices</a> · <a href="/healthz">health</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
