package websockets

// Endpoint receives the events of its sessions. OnMessage runs on the
// session's read goroutine; one session's messages arrive in order.
type Endpoint interface {
	// OnOpen runs after the handshake. An error closes the session with
	// 1011 before any message is read.
	OnOpen(s *Session) error
	OnMessage(s *Session, kind int, data []byte)
	// OnClose runs once the connection is gone, with the close code sent
	// by the client or 1006 when it vanished.
	OnClose(s *Session, code int, reason string)
}

// EndpointFuncs adapts functions to Endpoint. Nil functions are skipped.
type EndpointFuncs struct {
	Open    func(s *Session) error
	Message func(s *Session, kind int, data []byte)
	Close   func(s *Session, code int, reason string)
}

func (f EndpointFuncs) OnOpen(s *Session) error {
	if f.Open == nil {
		return nil
	}
	return f.Open(s)
}

func (f EndpointFuncs) OnMessage(s *Session, kind int, data []byte) {
	if f.Message != nil {
		f.Message(s, kind, data)
	}
}

func (f EndpointFuncs) OnClose(s *Session, code int, reason string) {
	if f.Close != nil {
		f.Close(s, code, reason)
	}
}
