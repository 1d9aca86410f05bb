// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// dashboardHandler handles dashboard requests.
type dashboardHandler struct{}

// newdashboardHandler creates a new dashboard handler.
func newdashboardHandler() *dashboardHandler {
	return &dashboardHandler{}
}

// HandleDashboard handles GET /dashboard requests. Returns an HTML page that
// polls /alert and /stats to visualize the pipeline state.
func (h *dashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>pulsegate</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;background:#0f1115;color:#e6e6e6}
h1{font-size:1.3rem}
.card{background:#1a1d24;border-radius:8px;padding:1rem 1.5rem;margin:1rem 0;max-width:44rem}
.state-idle{color:#7bd88f}
.state-awaiting_confirmation{color:#ffcc66;font-weight:bold}
button{background:#2b313d;color:#e6e6e6;border:1px solid #444;border-radius:6px;padding:.4rem 1rem;margin-right:.5rem;cursor:pointer}
pre{white-space:pre-wrap;font-size:.85rem;color:#9aa4b2}
</style>
</head>
<body>
<h1>pulsegate — heart-rate emergency monitor</h1>
<div class="card">
  <h2>Alert</h2>
  <div id="alert-state">loading…</div>
  <div id="alert-detail"></div>
  <p>
    <button onclick="post('/alert/confirm')">Confirm</button>
    <button onclick="post('/alert/cancel')">I'm OK — Cancel</button>
  </p>
</div>
<div class="card">
  <h2>Service</h2>
  <pre id="stats">loading…</pre>
</div>
<script>
async function refresh(){
  try{
    const a = await (await fetch('/alert')).json();
    const el = document.getElementById('alert-state');
    el.textContent = a.state + (a.remaining_seconds ? ' — ' + a.remaining_seconds + 's to cancel' : '');
    el.className = 'state-' + a.state;
    document.getElementById('alert-detail').textContent =
      a.pending ? a.pending.kind + ' @ ' + a.pending.heart_rate + ' bpm' : '';
    const s = await (await fetch('/stats')).json();
    document.getElementById('stats').textContent = JSON.stringify(s, null, 2);
  }catch(e){ /* service restarting */ }
}
function post(path){ fetch(path, {method:'POST'}).then(refresh); }
refresh();
setInterval(refresh, 1000);
</script>
</body>
</html>`
