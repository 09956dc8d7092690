package main

import (
	"github.com/kbukum/gowizard/websockets"
)

// echoEndpoint sends every message back to its session.
func echoEndpoint() websockets.Endpoint {
	return websockets.EndpointFuncs{
		Open: func(s *websockets.Session) error {
			return s.SendText("connected")
		},
		Message: func(s *websockets.Session, kind int, data []byte) {
			_ = s.Send(kind, data)
		},
	}
}
