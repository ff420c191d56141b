package web

func loginPage(errMsg string) string {
	errBlock := ""
	if errMsg != "" {
		errBlock = `<div class="err">` + errMsg + `</div>`
	}
	return `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>GemChat - Login</title>
<style>
:root{
  --bg:#101418;--panel:#181e24;--border:#2a323c;--accent:#3b82f6;
  --text:#e6edf3;--muted:#8b949e;--error:#f87171;
}
*{box-sizing:border-box;margin:0;padding:0}
html,body{height:100%}
body{
  font-family:system-ui,-apple-system,'Segoe UI',sans-serif;
  background:var(--bg);color:var(--text);
  display:flex;align-items:center;justify-content:center;
}
form{width:100%;max-width:360px;padding:36px 28px;background:var(--panel);
  border:1px solid var(--border);border-radius:14px}
h1{font-size:19px;font-weight:600;text-align:center;margin-bottom:4px}
.sub{font-size:13px;color:var(--muted);text-align:center;margin-bottom:24px}
.err{padding:10px 12px;margin-bottom:16px;border:1px solid rgba(248,113,113,.3);
  border-radius:8px;font-size:13px;color:var(--error)}
label{display:block;font-size:13px;color:var(--muted);margin:14px 0 6px}
input{width:100%;padding:10px 12px;background:var(--bg);border:1px solid var(--border);
  border-radius:8px;color:var(--text);font-size:14px;outline:none}
input:focus{border-color:var(--accent)}
button{width:100%;padding:11px;margin-top:20px;background:var(--accent);color:#fff;
  border:none;border-radius:9px;font-size:14px;font-weight:600;cursor:pointer}
</style>
</head>
<body>
<form method="POST" action="/login">
  <h1>GemChat</h1>
  <p class="sub">Sign in to start chatting</p>
  ` + errBlock + `
  <label for="username">Username</label>
  <input id="username" name="username" type="text" autocomplete="username" required autofocus>
  <label for="password">Password</label>
  <input id="password" name="password" type="password" autocomplete="current-password" required>
  <button type="submit">Sign in</button>
</form>
</body>
</html>`
}

var chatPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>GemChat</title>
<style>
:root{
  --bg:#101418;--panel:#181e24;--bubble:#1f2730;--border:#2a323c;
  --accent:#3b82f6;--accent-dark:#2563eb;--text:#e6edf3;--muted:#8b949e;
  --error:#f87171;
}
*{box-sizing:border-box;margin:0;padding:0}
html,body{height:100%}
body{
  font-family:system-ui,-apple-system,'Segoe UI',sans-serif;
  background:var(--bg);color:var(--text);
  display:flex;flex-direction:column;overflow:hidden;
}
#header{
  padding:14px 22px;background:var(--panel);border-bottom:1px solid var(--border);
  display:flex;align-items:center;gap:10px;flex-shrink:0;
}
#header h1{font-size:16px;font-weight:600}
#header .sub{font-size:12px;color:var(--muted)}
.spacer{margin-left:auto}
.hbtn{background:none;border:1px solid var(--border);border-radius:8px;
  color:var(--muted);padding:6px 12px;font-size:12px;cursor:pointer;font-family:inherit}
.hbtn:hover{color:var(--text);border-color:var(--muted)}
#notice{
  display:none;padding:8px 22px;font-size:13px;color:var(--error);
  background:rgba(248,113,113,.08);border-bottom:1px solid rgba(248,113,113,.2);
}
#messages{
  flex:1;overflow-y:auto;padding:22px;
  display:flex;flex-direction:column;gap:12px;scroll-behavior:smooth;
}
.msg{max-width:74%;padding:11px 15px;border-radius:14px;font-size:14px;
  line-height:1.6;white-space:pre-wrap;word-wrap:break-word}
.msg.user{align-self:flex-end;background:var(--accent);color:#fff;
  border-bottom-right-radius:5px}
.msg.assistant{align-self:flex-start;background:var(--bubble);
  border:1px solid var(--border);border-bottom-left-radius:5px}
#input-area{
  padding:14px 22px 18px;background:var(--panel);
  border-top:1px solid var(--border);flex-shrink:0;
}
.input-row{display:flex;gap:10px;align-items:flex-end}
#input{
  flex:1;padding:11px 14px;background:var(--bg);color:var(--text);
  border:1px solid var(--border);border-radius:10px;font-size:14px;
  font-family:inherit;line-height:1.5;outline:none;resize:none;max-height:120px;
}
#input:focus{border-color:var(--accent)}
#send{
  width:42px;height:42px;background:var(--accent);color:#fff;border:none;
  border-radius:10px;cursor:pointer;font-size:16px;flex-shrink:0;
}
#send:hover{background:var(--accent-dark)}
#send:disabled{opacity:.4;cursor:not-allowed}
.hint{font-size:11px;color:var(--muted);text-align:center;margin-top:8px}
</style>
</head>
<body>
<div id="header">
  <div>
    <h1>GemChat</h1>
    <div class="sub">Streaming AI chat</div>
  </div>
  <div class="spacer"></div>
  <button class="hbtn" id="clear">Clear history</button>
  <button class="hbtn" onclick="location.href='/logout'">Sign out</button>
</div>
<div id="notice"></div>
<div id="messages"></div>
<div id="input-area">
  <div class="input-row">
    <textarea id="input" rows="1" placeholder="Ask a question..." aria-label="Chat message input"></textarea>
    <button id="send" aria-label="Send message">&#10148;</button>
  </div>
  <div class="hint">Enter to send - Shift+Enter for new line</div>
</div>
<script>
const msgsEl=document.getElementById("messages"),
      input=document.getElementById("input"),
      btn=document.getElementById("send"),
      noticeEl=document.getElementById("notice"),
      clearBtn=document.getElementById("clear");
let busy=false;

function addMsg(role,text){
  const el=document.createElement("div");
  el.className="msg "+role;
  el.textContent=text;
  msgsEl.appendChild(el);
  msgsEl.scrollTop=msgsEl.scrollHeight;
  return el;
}
function setBubble(el,text){
  el.textContent=text;
  msgsEl.scrollTop=msgsEl.scrollHeight;
}
function showNotice(text){
  noticeEl.textContent=text;
  noticeEl.style.display="block";
  setTimeout(function(){noticeEl.style.display="none"},6000);
}

async function loadHistory(){
  try{
    const r=await fetch("/api/history");
    if(r.status===401){location.href="/login";return}
    const lines=await r.json();
    msgsEl.innerHTML="";
    for(const l of lines)addMsg(l.role,l.text);
  }catch(e){}
}

function handleFrame(frame,bubble){
  let ev="message",data="";
  for(const line of frame.split("\n")){
    if(line.startsWith("event: "))ev=line.slice(7);
    else if(line.startsWith("data: "))data+=line.slice(6);
  }
  if(!data)return;
  const payload=JSON.parse(data);
  if(ev==="notice"){showNotice(payload.text);return}
  // update/done/error all carry the whole text: replace, never append
  setBubble(bubble,payload.text);
}

async function send(){
  const m=input.value.trim();
  if(!m||busy)return;
  busy=true;btn.disabled=true;
  input.value="";input.style.height="auto";
  addMsg("user",m);
  const bubble=addMsg("assistant","");
  try{
    const r=await fetch("/api/chat",{
      method:"POST",
      headers:{"Content-Type":"application/json"},
      body:JSON.stringify({message:m})
    });
    if(r.status===401){location.href="/login";return}
    if(!r.ok){
      const t=await r.text();
      setBubble(bubble,t.trim()||r.statusText);
      return;
    }
    const reader=r.body.getReader(),dec=new TextDecoder();
    let buf="";
    for(;;){
      const {done,value}=await reader.read();
      if(done)break;
      buf+=dec.decode(value,{stream:true});
      let idx;
      while((idx=buf.indexOf("\n\n"))>=0){
        handleFrame(buf.slice(0,idx),bubble);
        buf=buf.slice(idx+2);
      }
    }
  }catch(e){
    setBubble(bubble,"Something went wrong: "+e.message);
  }finally{
    busy=false;btn.disabled=false;input.focus();
  }
}

clearBtn.onclick=async function(){
  if(busy)return;
  try{
    await fetch("/api/clear",{method:"POST"});
  }catch(e){}
  loadHistory();
};
btn.onclick=send;
input.onkeydown=function(e){if(e.key==="Enter"&&!e.shiftKey){e.preventDefault();send()}};
input.oninput=function(){input.style.height="auto";input.style.height=Math.min(input.scrollHeight,120)+"px"};
loadHistory();
input.focus();
</script>
</body>
</html>`
