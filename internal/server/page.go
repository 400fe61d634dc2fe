package server

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>wavesync</title>
    <style>
        body { font-family: sans-serif; margin: 1rem; background: #fafafa; }
        canvas { border: 1px solid #ccc; max-width: 100%; }
        #status { color: #555; margin: .5rem 0; }
    </style>
</head>
<body>
    <h1 id="title">wavesync</h1>
    <div id="status">connecting...</div>
    <canvas id="view"></canvas>
    <p><button id="close">Close display</button></p>
<script>
const canvas = document.getElementById('view');
const ctx = canvas.getContext('2d');
const status = document.getElementById('status');
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');

const background = new Image();
background.onload = () => ctx.drawImage(background, 0, 0);

ws.onmessage = (ev) => {
    const msg = JSON.parse(ev.data);
    if (msg.type === 'hello') {
        canvas.width = msg.width;
        canvas.height = msg.height;
        background.src = '/overlay.png';
        if (msg.track) {
            document.getElementById('title').textContent = msg.track.title || 'wavesync';
            status.textContent = msg.track.sample_rate + ' Hz, ' + msg.track.channels + ' ch, ' + msg.track.duration;
        }
    } else if (msg.type === 'patch') {
        const patch = new Image();
        patch.onload = () => ctx.drawImage(patch, msg.rect.Min.X, msg.rect.Min.Y);
        patch.src = 'data:image/png;base64,' + msg.png;
    }
};
ws.onclose = () => { status.textContent = 'playback ended'; };
document.getElementById('close').onclick = () => ws.send(JSON.stringify({type: 'close'}));
</script>
</body>
</html>`
