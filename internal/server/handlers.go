// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketHandler returns the upgrade handler for /ws. Each accepted
// connection becomes a Client registered with the hub.
func WebSocketHandler(hub *Hub, gateway *Gateway, cfg Config, logger zerolog.Logger) http.HandlerFunc {
	origins := newOriginChecker(cfg.AllowedOrigins, logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		client := NewClient(conn, hub, gateway, r.RemoteAddr, cfg, logger)
		hub.StartClient(client)
	}
}

// HealthHandler provides a simple health check endpoint.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Hearth chat server is running!")
}

// TestPageHandler serves a minimal HTML client exercising the full room
// protocol: identity binding, room create/join/leave, chat, and the host
// command bar.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Hearth Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; display: flex; gap: 20px; }
        #rooms, #chat { border: 1px solid #ccc; padding: 10px; }
        #rooms { width: 220px; }
        #chat { flex: 1; }
        #messages { height: 300px; overflow-y: scroll; background: #f9f9f9; padding: 8px; margin: 8px 0; }
        input[type="text"] { padding: 5px; margin: 2px; }
        button { padding: 5px 12px; cursor: pointer; }
        .system { color: gray; font-style: italic; }
        .host { color: darkred; font-weight: bold; }
    </style>
</head>
<body>
    <div id="rooms">
        <h3>Rooms</h3>
        <ul id="roomList"></ul>
        <input type="text" id="roomName" placeholder="Room name">
        <button onclick="send({type:'create_room', roomName: roomName.value})">Create</button>
        <button onclick="send({type:'join_room', roomName: roomName.value})">Join</button>
        <button onclick="send({type:'leave_room'})">Leave</button>
    </div>
    <div id="chat">
        <input type="text" id="username" placeholder="Username">
        <input type="text" id="password" placeholder="Password (if required)">
        <button onclick="send({type:'set_username', username: username.value, password: password.value})">Login</button>
        <div id="messages"></div>
        <input type="text" id="text" placeholder="Message or !cmd ..." size="60">
        <button onclick="send({type:'chat_message', text: text.value}); text.value=''">Send</button>
    </div>
    <script>
        const ws = new WebSocket('ws://' + location.host + '/ws');
        const messages = document.getElementById('messages');
        const roomList = document.getElementById('roomList');
        function send(obj) { ws.send(JSON.stringify(obj)); }
        function line(html, cls) {
            const div = document.createElement('div');
            if (cls) div.className = cls;
            div.innerHTML = html;
            messages.appendChild(div);
            messages.scrollTop = messages.scrollHeight;
        }
        ws.onopen = () => { send({type:'list_rooms'}); line('Connected.', 'system'); };
        ws.onmessage = (e) => {
            const ev = JSON.parse(e.data);
            switch (ev.type) {
            case 'message':
                line('<strong>' + ev.user + ':</strong> ' + ev.text,
                     ev.user === 'System' ? 'system' : (ev.isHostMsg ? 'host' : ''));
                break;
            case 'room_list':
                roomList.innerHTML = '';
                ev.rooms.forEach(r => {
                    const li = document.createElement('li');
                    li.textContent = r.name + ' (' + r.userCount + ')';
                    roomList.appendChild(li);
                });
                break;
            case 'joined_room':
                line('Joined ' + ev.roomName + (ev.isHost ? ' as host' : ''), 'system');
                break;
            case 'room_status':
                line('Room is ' + (ev.isPrivate ? 'private' : 'public'), 'system');
                break;
            case 'auth':
                line('Auth: ' + (ev.success ? 'ok' : 'failed') + ' ' + (ev.message || ''), 'system');
                break;
            case 'error':
                line('Error: ' + ev.message, 'system');
                break;
            }
        };
        ws.onclose = () => line('Connection closed.', 'system');
    </script>
</body>
</html>`
