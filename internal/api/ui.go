package api

import (
	"net/http"
)

// consoleHTML is a single-page operator console: play controls, a stats and
// entity panel polled from the query endpoints, and the live journal.
const consoleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Sentient Play</title>
<style>
  body { margin: 0; font: 12px monospace; background: #10131a; color: #d8dee9; display: grid;
         grid-template: "bar bar" auto "side log" 1fr / 320px 1fr; height: 100vh; }
  #bar { grid-area: bar; display: flex; gap: 8px; align-items: center; padding: 8px 12px; background: #1b2030; }
  #bar b { margin-right: auto; }
  #side { grid-area: side; overflow-y: auto; padding: 8px 12px; border-right: 1px solid #2b3245; }
  #log { grid-area: log; overflow-y: auto; padding: 8px 12px; }
  button { font: inherit; color: #fff; background: #3b4a6b; border: 0; padding: 4px 10px; cursor: pointer; }
  button.go { background: #2f7d4f; } button.halt { background: #a33b3b; }
  input { font: inherit; width: 48px; background: #10131a; color: inherit; border: 1px solid #3b4a6b; }
  table { width: 100%; border-collapse: collapse; } td { padding: 1px 4px; } td.n { text-align: right; }
  h2 { font-size: 12px; color: #8fa1c7; margin: 12px 0 4px; }
  .row { padding: 2px 0; border-bottom: 1px solid #1b2030; white-space: pre-wrap; }
  .warn { color: #ebcb8b; } .error { color: #e06c75; } .debug { color: #6b7385; }
  #state.playing { color: #a3be8c; } #state.paused { color: #ebcb8b; }
  #link.down { color: #e06c75; }
</style>
</head>
<body>
<div id="bar">
  <b>Sentient Play <span id="state">stopped</span></b>
  <button class="go" onclick="play('start')">start</button>
  <button onclick="play('pause')">pause</button>
  <button onclick="play('resume')">resume</button>
  <input id="frames" type="number" min="1" value="1"><button onclick="play('step', 'frames=' + frames.value)">step</button>
  <button class="halt" onclick="play('stop')">stop</button>
  <button class="halt" onclick="play('stop', 'apply=true')">stop + apply</button>
  <span id="result"></span>
  <span id="link" class="down">/ws/events</span>
</div>
<div id="side">
  <h2>stats</h2><table id="stats"></table>
  <h2>entities</h2><table id="entities"></table>
</div>
<div id="log"></div>
<script>
const $ = (id) => document.getElementById(id);

function rows(table, pairs) {
  table.replaceChildren(...pairs.map(([k, v]) => {
    const tr = document.createElement('tr');
    const a = tr.insertCell(), b = tr.insertCell();
    a.textContent = k; b.textContent = v; b.className = 'n';
    return tr;
  }));
}

function showState(s) {
  $('state').textContent = s.state;
  $('state').className = s.state;
}

function play(command, query) {
  fetch('/play/' + command + (query ? '?' + query : ''), { method: 'POST' })
    .then((r) => r.json())
    .then((d) => {
      if (d.status) showState(d.status);
      $('result').textContent = d.ok ? '' : d.error;
    })
    .catch(() => { $('result').textContent = 'request failed'; });
}

function poll() {
  fetch('/status').then((r) => r.json()).then(showState).catch(() => {});
  fetch('/stats').then((r) => r.json()).then((s) => rows($('stats'), [
    ['fps', s.fps.toFixed(1)], ['frame ms', s.frameTimeMs.toFixed(2)], ['frames', s.frameCount],
    ['behaviors', s.behaviorCount], ['bus events', s.busEvents], ['errors', s.behaviorErrors],
    ['timers', s.timers], ['tweens', s.tweens],
  ])).catch(() => {});
  fetch('/entities').then((r) => r.json()).then((es) => rows($('entities'),
    es.map((e) => [e.id + (e.behavior ? ' [' + e.behavior + ']' : ''), e.world.$vec2.map((n) => n.toFixed(1)).join(', ')])
  )).catch(() => {});
}

function append(e) {
  const log = $('log');
  const div = document.createElement('div');
  div.className = 'row ' + e.level;
  const f = e.fields ? ' ' + JSON.stringify(e.fields) : '';
  div.textContent = e.ts.slice(11, 23) + ' ' + e.event + (e.msg ? ' ' + e.msg : '') + f;
  log.appendChild(div);
  while (log.childElementCount > 500) log.firstChild.remove();
  log.scrollTop = log.scrollHeight;
}

function connect() {
  const ws = new WebSocket((location.protocol === 'https:' ? 'wss:' : 'ws:') + '//' + location.host + '/ws/events');
  ws.onopen = () => { $('link').className = ''; };
  ws.onmessage = (m) => append(JSON.parse(m.data));
  ws.onclose = () => { $('link').className = 'down'; setTimeout(connect, 3000); };
}

connect();
poll();
setInterval(poll, 1000);
</script>
</body>
</html>`

func uiHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(consoleHTML))
}
