package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/jar-tracker/internal/jars"
	"github.com/sweeney/jar-tracker/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
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
	},
}).Parse(indexHTML))

type rowView struct {
	ID    int
	Alert bool
	Jars  []string
}

type indexView struct {
	Mock       bool
	Rows       []rowView
	Misplaced  []jars.Mismatch
	Uptime     time.Duration
	MQTTBroker string
	MQTTOK     bool
}

func renderIndex(w io.Writer, snap status.Snapshot, board *jars.Board) {
	view := indexView{
		Mock:       snap.Config.Mock,
		Misplaced:  board.Mismatches(),
		Uptime:     snap.Uptime(),
		MQTTBroker: snap.Config.Broker,
		MQTTOK:     snap.MQTTConnected,
	}
	for _, id := range board.RowIDs() {
		jarIDs, err := board.RowJars(id)
		if err != nil {
			continue
		}
		view.Rows = append(view.Rows, rowView{
			ID:    id,
			Alert: snap.Alerts[id],
			Jars:  jarIDs,
		})
	}
	indexTmpl.Execute(w, view)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Jar Tracker</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.alert { color: red; font-weight: bold; }
.ok { color: green; }
.warn { background: #fff3cd; padding: 8px; border-radius: 4px; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Jar Tracker</h1>
{{if .Mock}}<p class="warn">Running in mock mode — no sensor attached.</p>{{end}}

<h2>Rows</h2>
<table>
<tr><th>Row</th><th>State</th><th>Jars</th></tr>
{{range .Rows}}
<tr>
<td>{{.ID}}</td>
<td>{{if .Alert}}<span class="alert">NEEDS CHECKING</span>{{else}}<span class="ok">OK</span>{{end}}</td>
<td>{{range $i, $j := .Jars}}{{if $i}}, {{end}}{{$j}}{{end}}</td>
</tr>
{{end}}
</table>

{{if .Misplaced}}
<h2>Misplaced jars</h2>
<table>
<tr><th>Jar</th><th>Belongs in</th><th>Found in</th></tr>
{{range .Misplaced}}
<tr><td>{{.Jar}}</td><td>{{if .ExpectedRow}}row {{.ExpectedRow}}{{else}}unknown{{end}}</td><td>row {{.ObservedRow}}</td></tr>
{{end}}
</table>
{{end}}

<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
{{if .MQTTBroker}}<tr><th>MQTT</th><td><span class="{{if .MQTTOK}}connected{{else}}disconnected{{end}}">{{if .MQTTOK}}connected{{else}}disconnected{{end}}</span> ({{.MQTTBroker}})</td></tr>{{end}}
</table>

<p>
<a href="/status.json">status</a> ·
<a href="/log">event log</a> ·
<a href="/misplaced">misplaced</a> ·
<a href="/events">live feed</a> ·
<a href="/metrics">metrics</a>
</p>
</body>
</html>
`
