package server

import "html/template"

// Two server-rendered pages, chat and plans. The markup keeps the original
// look: chat bubbles, the neon assistant bubble and the status chip.

var chatPage = template.Must(template.New("chat").Parse(`<!DOCTYPE html>
<html lang="ko">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>💙 마음을 기댈 수 있는 AI 친구</title>
<style>
html, body { font-size: 18px; background: #0f0f1e; color: #fff; font-family: sans-serif; margin: 0; padding: 24px; }
.user-bubble { background:#b91c1c;color:#fff;border-radius:12px;padding:10px 16px;margin:8px 0;display:inline-block; }
.bot-bubble { font-size:21px;line-height:1.8;border-radius:14px;padding:14px 18px;margin:10px 0;background:rgba(15,15,30,.85);color:#fff;
  border:2px solid transparent;border-image:linear-gradient(90deg,#ff8800,#ffaa00,#ff8800) 1;animation:neon-glow 1.8s ease-in-out infinite alternate; }
@keyframes neon-glow { from{box-shadow:0 0 5px #ff8800,0 0 10px #ffaa00;} to{box-shadow:0 0 20px #ff8800,0 0 40px #ffaa00,0 0 60px #ff8800;} }
.status { font-size:15px; padding:8px 12px; border-radius:10px; display:inline-block; margin-bottom:8px; background:rgba(255,255,255,.06); }
.warn { font-size:16px; padding:10px 14px; border-radius:10px; background:rgba(255,170,0,.15); margin:10px 0; }
#composer { display:flex; gap:8px; margin-top:16px; }
#message { flex:1; font-size:18px; padding:10px; border-radius:10px; border:1px solid #444; background:#1a1a2e; color:#fff; }
#send { background:#ffaa00; color:black; padding:10px 20px; border:none; border-radius:10px; font-size:18px; cursor:pointer; }
a { color:#ffaa00; }
</style>
</head>
<body>
<h1>💙 마음을 기댈 수 있는 AI 친구</h1>
<div class="status" id="chip">…</div>
<p><a href="/?uid={{.UID}}&page=plans">💳 결제/FAQ 열기</a></p>
<div id="log"></div>
<div class="warn" id="warn" style="display:none"></div>
<div id="composer">
  <input id="message" placeholder="지금 어떤 기분이야?" autocomplete="off">
  <button id="send">보내기</button>
</div>
<script>
const uid = {{.UID}};

async function refreshChip() {
  const resp = await fetch("/api/me?uid=" + encodeURIComponent(uid));
  if (!resp.ok) return;
  const me = await resp.json();
  const chip = document.getElementById("chip");
  if (me.is_paid) {
    chip.textContent = "💎 유료(" + me.plan + ") — 남은 " + me.remaining + "/" + me.limit + "회";
  } else {
    chip.textContent = "🌱 무료 체험 — 남은 " + me.remaining + "회";
  }
  if (me.exhausted) {
    const warn = document.getElementById("warn");
    warn.style.display = "block";
    warn.innerHTML = me.is_paid
      ? "💳 이용권이 소진되었습니다. 결제 후 이용해주세요."
      : "🌱 무료 체험이 끝났어요. 유료 이용권을 구매해주세요.";
    warn.innerHTML += ' <a href="/?uid=' + encodeURIComponent(uid) + '&page=plans">결제 안내</a>';
  }
}

function bubble(cls, prefix, text) {
  const div = document.createElement("div");
  div.className = cls;
  div.textContent = prefix + " " + text;
  document.getElementById("log").appendChild(div);
  return div;
}

async function send() {
  const input = document.getElementById("message");
  const text = input.value.trim();
  if (!text) return;
  input.value = "";
  bubble("user-bubble", "😔", text);
  const bot = bubble("bot-bubble", "🧡", "");

  const resp = await fetch("/api/chat?uid=" + encodeURIComponent(uid) + "&page=chat", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({message: text}),
  });
  if (!resp.ok) { bot.textContent = "🧡 잠시 후 다시 시도해주세요."; return; }

  const reader = resp.body.getReader();
  const decoder = new TextDecoder();
  let reply = "", buf = "";
  for (;;) {
    const {done, value} = await reader.read();
    if (done) break;
    buf += decoder.decode(value, {stream: true});
    let idx;
    while ((idx = buf.indexOf("\n\n")) >= 0) {
      const block = buf.slice(0, idx); buf = buf.slice(idx + 2);
      let event = "message", data = "";
      for (const line of block.split("\n")) {
        if (line.startsWith("event:")) event = line.slice(6).trim();
        if (line.startsWith("data:")) data += line.slice(5).trim();
      }
      if (!data) continue;
      const payload = JSON.parse(data);
      if (event === "done") {
        if (payload.status === "blocked") bot.textContent = "🧡 " + "이용권을 확인해주세요.";
        if (payload.error === "store_unavailable" && reply === "") bot.textContent = "🧡 잠시 후 다시 시도해주세요.";
      } else if (payload.delta) {
        reply += payload.delta;
        bot.textContent = "🧡 " + reply;
      }
    }
  }
  refreshChip();
}

document.getElementById("send").addEventListener("click", send);
document.getElementById("message").addEventListener("keydown", (e) => { if (e.key === "Enter") send(); });
refreshChip();
</script>
</body>
</html>
`))

var plansPage = template.Must(template.New("plans").Parse(`<!DOCTYPE html>
<html lang="ko">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>💳 결제 안내</title>
<style>
html, body { font-size: 18px; background: #0f0f1e; color: #fff; font-family: sans-serif; margin: 0; padding: 24px; }
.status { font-size:15px; padding:8px 12px; border-radius:10px; display:inline-block; margin-bottom:8px; background:rgba(255,255,255,.06); }
.pay { background:#ffaa00;color:black;padding:12px 20px;border:none;border-radius:10px;font-size:18px; cursor:pointer; }
input { font-size:18px; padding:8px; border-radius:8px; border:1px solid #444; background:#1a1a2e; color:#fff; }
textarea { width:100%; font-size:16px; padding:8px; border-radius:8px; border:1px solid #444; background:#1a1a2e; color:#fff; }
.msg { margin-top:8px; }
a { color:#ffaa00; }
hr { border-color:#333; }
</style>
</head>
<body>
<div class="status" id="chip">…</div>
<div style="text-align:center">
  <h2>💳 결제 안내</h2>
  <p>💙 단 3달러로 30회의 마음상담을 이어갈 수 있어요.</p>
  <a href="{{.PaymentURL}}" target="_blank"><button class="pay">💳 PayPal로 결제하기 ($3)</button></a>
  <p style="opacity:0.8;margin-top:10px;">결제 후 카톡 <b>jeuspo</b> 또는 이메일 <b>mwiby91@gmail.com</b>으로<br>스크린샷을 보내주시면 비밀번호를 알려드립니다.</p>
</div>
<hr>
<h3>🔐 관리자 인증 (자동 적용)</h3>
<input id="password" type="password" placeholder="관리자 비밀번호">
<button class="pay" id="grant">적용</button>
<div class="msg" id="grantmsg"></div>
<hr>
<h3>💬 의견 보내기</h3>
<textarea id="feedback" rows="3" placeholder="서비스에 대한 의견을 남겨주세요"></textarea>
<button class="pay" id="sendfeedback">보내기</button>
<div class="msg" id="feedbackmsg"></div>
<p><a href="/?uid={{.UID}}&page=chat">⬅ 채팅으로 돌아가기</a></p>
<script>
const uid = {{.UID}};

async function refreshChip() {
  const resp = await fetch("/api/me?uid=" + encodeURIComponent(uid));
  if (!resp.ok) return;
  const me = await resp.json();
  const chip = document.getElementById("chip");
  if (me.is_paid) {
    chip.textContent = "💎 유료(" + me.plan + ") — 남은 " + me.remaining + "/" + me.limit + "회";
  } else {
    chip.textContent = "🌱 무료 체험 — 남은 " + me.remaining + "회";
  }
}

document.getElementById("grant").addEventListener("click", async () => {
  const msg = document.getElementById("grantmsg");
  const resp = await fetch("/api/admin/grant?uid=" + encodeURIComponent(uid), {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({password: document.getElementById("password").value}),
  });
  if (resp.ok) {
    msg.textContent = "🎉 베이직 30회 이용권 적용 완료! 채팅으로 이동 중...";
    setTimeout(() => { window.location = "/?uid=" + encodeURIComponent(uid) + "&page=chat"; }, 800);
  } else if (resp.status === 429) {
    msg.textContent = "시도가 너무 많습니다. 잠시 후 다시 시도해주세요.";
  } else {
    msg.textContent = "비밀번호가 올바르지 않습니다.";
  }
});

document.getElementById("sendfeedback").addEventListener("click", async () => {
  const msg = document.getElementById("feedbackmsg");
  const resp = await fetch("/api/feedback?uid=" + encodeURIComponent(uid) + "&page=plans", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({feedback: document.getElementById("feedback").value}),
  });
  msg.textContent = resp.ok ? "💙 소중한 의견 감사합니다." : "전송에 실패했어요. 잠시 후 다시 시도해주세요.";
  if (resp.ok) document.getElementById("feedback").value = "";
});

refreshChip();
</script>
</body>
</html>
`))

type pageData struct {
	UID        string
	PaymentURL string
}
