// Package viewer generates the self-contained HTML/JS viewer page: a
// device-shaped CSS frame around a live image target that tries WebSocket
// first and falls back to MJPEG.
package viewer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/HandleConsolidated/xtool/internal/devicemodel"
)

const previewWidthPx = 320

// pageData is what the template below interpolates. DeviceName passes
// through html/template's contextual auto-escaping so a device name
// containing "&<>\"" renders safely without hand-rolled escaping.
type pageData struct {
	DeviceName   string
	FrameWidth   int
	FrameHeight  int
	CornerRadius int
	StyleClass   string
	WSScheme     string
}

// Generate renders the viewer HTML document for one device display.
func Generate(deviceName string, display devicemodel.DisplayInfo) (string, error) {
	frameWidth := previewWidthPx
	frameHeight := int(float64(previewWidthPx) * display.Aspect())

	data := pageData{
		DeviceName:   deviceName,
		FrameWidth:   frameWidth,
		FrameHeight:  frameHeight,
		CornerRadius: scaledCornerRadius(display),
		StyleClass:   styleClassName(display.Style),
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render viewer page: %w", err)
	}
	return buf.String(), nil
}

func styleClassName(style devicemodel.DisplayStyle) string {
	switch style {
	case devicemodel.StyleNotch:
		return "style-notch"
	case devicemodel.StyleDynamicIsland:
		return "style-dynamic-island"
	default:
		return "style-home-button"
	}
}

// scaledCornerRadius scales the device's corner radius down to the 320px
// preview frame, proportional to the real screen width.
func scaledCornerRadius(display devicemodel.DisplayInfo) int {
	if display.ScreenWidth == 0 {
		return 0
	}
	scale := float64(previewWidthPx) / float64(display.ScreenWidth)
	return int(float64(display.CornerRadius) * scale)
}

var pageTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.DeviceName}} — xtool-preview</title>
<style>
  body { margin: 0; background: #111; color: #eee; font-family: -apple-system, sans-serif;
         display: flex; flex-direction: column; align-items: center; padding: 24px; }
  .device-frame { position: relative; width: {{.FrameWidth}}px; height: {{.FrameHeight}}px;
                  border-radius: {{.CornerRadius}}px; overflow: hidden; background: #000;
                  box-shadow: 0 0 0 8px #222, 0 8px 24px rgba(0,0,0,.6); }
  .device-frame img { width: 100%; height: 100%; object-fit: cover; display: block; }
  .style-notch .notch, .style-dynamic-island .island { position: absolute; top: 6px; left: 50%;
                  transform: translateX(-50%); background: #000; border-radius: 12px; z-index: 2; }
  .style-notch .notch { width: 45%; height: 18px; }
  .style-dynamic-island .island { width: 28%; height: 12px; }
  .spinner { position: absolute; inset: 0; display: flex; align-items: center; justify-content: center; }
  .hud { margin-top: 12px; display: flex; gap: 16px; font-size: 13px; color: #9a9a9a; }
  .status-dot { width: 10px; height: 10px; border-radius: 50%; display: inline-block;
                background: #d33; margin-right: 6px; }
  .status-dot.connected { background: #2ecc71; }
  #error-overlay { position: absolute; inset: 0; display: none; align-items: center; justify-content: center;
                   flex-direction: column; background: rgba(0,0,0,.85); z-index: 3; text-align: center; }
  #error-overlay button { margin-top: 10px; }
</style>
</head>
<body>
  <div class="device-frame {{.StyleClass}}" id="frame">
    <div class="notch"></div>
    <div class="island"></div>
    <img id="preview" alt="device preview">
    <div class="spinner" id="spinner">loading…</div>
    <div id="error-overlay">
      <div>disconnected</div>
      <button id="reconnect-btn">Reconnect</button>
    </div>
  </div>
  <div class="hud">
    <span><span class="status-dot" id="status-dot"></span><span id="status-text">connecting</span></span>
    <span id="fps">0 fps</span>
    <span id="kbps">0 KB/s</span>
  </div>
  <script>
  (function() {
    var img = document.getElementById('preview');
    var spinner = document.getElementById('spinner');
    var statusDot = document.getElementById('status-dot');
    var statusText = document.getElementById('status-text');
    var errorOverlay = document.getElementById('error-overlay');
    var fpsEl = document.getElementById('fps');
    var kbpsEl = document.getElementById('kbps');

    var ws = null;
    var lastBlobURL = null;
    var frameCount = 0, byteCount = 0;

    function setConnected(ok) {
      statusDot.className = 'status-dot' + (ok ? ' connected' : '');
      statusText.textContent = ok ? 'connected' : 'disconnected';
      errorOverlay.style.display = ok ? 'none' : 'flex';
    }

    function onFrame(size) {
      spinner.style.display = 'none';
      frameCount++;
      byteCount += size;
    }

    setInterval(function() {
      fpsEl.textContent = frameCount + ' fps';
      kbpsEl.textContent = Math.round(byteCount / 1024) + ' KB/s';
      frameCount = 0;
      byteCount = 0;
    }, 1000);

    function connectWebSocket() {
      var scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
      ws = new WebSocket(scheme + location.host + '/ws');
      ws.binaryType = 'blob';
      ws.onopen = function() { setConnected(true); };
      ws.onclose = function() { setConnected(false); };
      ws.onerror = function() {
        setConnected(false);
        ws.close();
        connectMJPEG();
      };
      ws.onmessage = function(ev) {
        var blob = ev.data;
        var url = URL.createObjectURL(blob);
        img.onload = function() {
          if (lastBlobURL) URL.revokeObjectURL(lastBlobURL);
          lastBlobURL = url;
        };
        img.src = url;
        onFrame(blob.size || 0);
      };
    }

    function connectMJPEG() {
      setConnected(true);
      img.src = '/stream?_=' + Date.now();
      img.onerror = function() { setConnected(false); };
    }

    function reconnect() {
      if (ws) { try { ws.close(); } catch (e) {} }
      connectWebSocket();
    }

    document.getElementById('reconnect-btn').addEventListener('click', reconnect);
    document.addEventListener('keydown', function(ev) {
      if (ev.key === 'r' || ev.key === 'R') reconnect();
    });

    connectWebSocket();
  })();
  </script>
</body>
</html>
`))
