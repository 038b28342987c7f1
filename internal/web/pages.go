package web

const faviconTag = `<link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>🎙️</text></svg>">`

const loginHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>interviewd login</title>
` + faviconTag + `
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; background: #1a1a2e; color: #eee; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .login-box { background: #16213e; border-radius: 16px; padding: 40px; width: 360px; }
  h1 { text-align: center; margin-bottom: 30px; color: #4ecca3; font-size: 22px; }
  .field { margin-bottom: 20px; }
  label { display: block; margin-bottom: 6px; font-size: 14px; color: #aaa; }
  input { width: 100%; padding: 12px; border: 1px solid #333; border-radius: 8px; background: #0f3460; color: #eee; font-size: 16px; outline: none; }
  input:focus { border-color: #4ecca3; }
  .btn { width: 100%; padding: 14px; border: none; border-radius: 8px; background: #4ecca3; color: #000; font-size: 16px; font-weight: bold; cursor: pointer; }
  .btn:hover { opacity: 0.9; }
  .error { color: #e94560; text-align: center; margin-top: 15px; font-size: 14px; display: none; }
</style>
</head>
<body>
<div class="login-box">
  <h1>🎙️ interviewd</h1>
  <form id="loginForm">
    <div class="field">
      <label>Password</label>
      <input type="password" name="password" id="password" autocomplete="current-password" required>
    </div>
    <button type="submit" class="btn">Sign in</button>
    <div class="error" id="error"></div>
  </form>
</div>
<script>
document.getElementById('loginForm').onsubmit = async (e) => {
  e.preventDefault();
  const form = new FormData(e.target);
  const res = await fetch('/api/login', { method: 'POST', body: new URLSearchParams(form) });
  if (res.ok) {
    window.location.href = '/';
  } else {
    const data = await res.json();
    const el = document.getElementById('error');
    el.textContent = data.error || 'login failed';
    el.style.display = 'block';
  }
};
</script>
</body>
</html>`

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>interviewd</title>
` + faviconTag + `
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; background: #1a1a2e; color: #eee; min-height: 100vh; padding: 20px; }
  .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 20px; }
  h1 { font-size: 24px; color: #4ecca3; }
  .session-id { font-size: 12px; color: #888; }
  .columns { display: flex; flex-wrap: wrap; gap: 20px; }
  .panel { background: #16213e; border-radius: 12px; padding: 20px; flex: 1; min-width: 320px; }
  .panel h2 { font-size: 16px; margin-bottom: 14px; color: #aaa; }
  .rec-row { display: flex; gap: 12px; align-items: center; margin-bottom: 16px; }
  .badge { padding: 3px 10px; border-radius: 12px; font-size: 12px; font-weight: bold; }
  .badge-rec { background: #e94560; }
  .badge-idle { background: #444; }
  .btn { padding: 12px 20px; border: none; border-radius: 8px; font-size: 15px; cursor: pointer; font-weight: bold; }
  .btn-start { background: #4ecca3; color: #000; }
  .btn-stop { background: #e94560; color: #fff; }
  .btn:hover { opacity: 0.85; }
  .question { display: flex; align-items: center; gap: 10px; padding: 10px; border-radius: 8px; margin-bottom: 8px; background: #0f3460; }
  .question.active { outline: 2px solid #4ecca3; }
  .question.done .q-text { text-decoration: line-through; color: #777; }
  .question.skipped .q-text { color: #777; font-style: italic; }
  .q-text { flex: 1; font-size: 14px; }
  .q-status { font-size: 11px; color: #888; width: 56px; }
  .q-btn { padding: 4px 8px; border: 1px solid #555; border-radius: 6px; background: transparent; color: #aaa; cursor: pointer; font-size: 12px; }
  .q-btn:hover { border-color: #4ecca3; color: #4ecca3; }
  .feed { max-height: 480px; overflow-y: auto; font-size: 14px; }
  .chunk { margin-bottom: 10px; }
  .chunk .ts { color: #4ecca3; font-family: monospace; margin-right: 8px; }
  .chunk.marker { color: #e9a045; font-style: italic; }
  .error-bar { background: #e94560; color: #fff; padding: 10px 14px; border-radius: 8px; margin-bottom: 16px; display: none; }
</style>
</head>
<body>
<div class="header">
  <h1>🎙️ interviewd</h1>
  <span class="session-id" id="sessionId"></span>
</div>
<div class="error-bar" id="errorBar"></div>
<div class="columns">
  <div class="panel">
    <h2>Recording</h2>
    <div class="rec-row">
      <span class="badge badge-idle" id="recBadge">idle</span>
      <button class="btn btn-start" id="recBtn" onclick="toggleRecording()">Start recording</button>
    </div>
    <h2>Questions</h2>
    <div id="questions"></div>
  </div>
  <div class="panel">
    <h2>Transcript</h2>
    <div class="feed" id="feed"></div>
  </div>
</div>
<script>
let recording = false;

function showError(msg) {
  const el = document.getElementById('errorBar');
  el.textContent = msg;
  el.style.display = 'block';
}

async function refresh() {
  const res = await fetch('/api/state');
  if (res.status === 401) { window.location.href = '/login'; return; }
  const state = await res.json();
  recording = state.recording;

  document.getElementById('sessionId').textContent = state.session_id;
  const badge = document.getElementById('recBadge');
  badge.textContent = recording ? '● recording' : 'idle';
  badge.className = 'badge ' + (recording ? 'badge-rec' : 'badge-idle');
  const btn = document.getElementById('recBtn');
  btn.textContent = recording ? 'Stop recording' : 'Start recording';
  btn.className = 'btn ' + (recording ? 'btn-stop' : 'btn-start');

  const qs = state.questions || [];
  document.getElementById('questions').innerHTML = qs.map(q => ` + "`" + `
    <div class="question ${q.status}">
      <span class="q-status">${q.status}</span>
      <span class="q-text">${q.text}</span>
      ${q.status === 'pending' ? ` + "`" + `<button class="q-btn" onclick="setStatus('${q.id}','active')">Ask</button>` + "`" + ` : ''}
      ${q.status === 'active' ? ` + "`" + `<button class="q-btn" onclick="setStatus('${q.id}','done')">Done</button>
      <button class="q-btn" onclick="setStatus('${q.id}','skipped')">Skip</button>` + "`" + ` : ''}
    </div>
  ` + "`" + `).join('');

  const feed = document.getElementById('feed');
  const atBottom = feed.scrollTop + feed.clientHeight >= feed.scrollHeight - 10;
  feed.innerHTML = (state.transcript || []).map(c => ` + "`" + `
    <div class="chunk ${c.kind}"><span class="ts">${c.timestamp}</span>${c.text}</div>
  ` + "`" + `).join('');
  if (atBottom) feed.scrollTop = feed.scrollHeight;
}

async function toggleRecording() {
  const path = recording ? '/api/recording/stop' : '/api/recording/start';
  const res = await fetch(path, { method: 'POST' });
  if (!res.ok) {
    const data = await res.json();
    showError(data.error || 'request failed');
  }
  refresh();
}

async function setStatus(id, status) {
  const res = await fetch('/api/question/status?id=' + id + '&status=' + status, { method: 'POST' });
  if (!res.ok) {
    const data = await res.json();
    showError(data.error || 'request failed');
  }
  refresh();
}

refresh();
setInterval(refresh, 2000);
</script>
</body>
</html>`
