// Package websockets serves WebSocket endpoints from REST resources.
//
//	ws := websockets.NewBundle(func(c *HelloConfig) *websockets.Config { return &c.WebSockets })
//	ws.Add("/chat", websockets.EndpointFuncs{
//	    Message: func(s *websockets.Session, kind int, data []byte) {
//	        _ = s.Hub().Broadcast("/chat", kind, data)
//	    },
//	}, websockets.WithOrigins("https://hello.example.com"))
//	b.AddConfiguredBundle(ws)
//
// Endpoints are registered as GET routes of the REST environment, so REST
// middleware such as authentication filters apply to the handshake. Open
// sessions are closed with 1001 (going away) when the application stops.
package websockets
