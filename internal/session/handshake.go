package session

import (
	"encoding/json"

	"github.com/ctagard/dapctl/internal/barrier"
	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/launchconfig"
	"github.com/ctagard/dapctl/pkg/types"
)

const clientID = "dapctl"

func (s *Session) initializeArguments() map[string]interface{} {
	return map[string]interface{}{
		"adapterID":                     s.resolved.AdapterName,
		"clientID":                      clientID,
		"clientName":                    clientID,
		"linesStartAt1":                 true,
		"columnsStartAt1":               true,
		"locale":                        "en_GB",
		"pathFormat":                    "path",
		"supportsVariableType":          true,
		"supportsVariablePaging":        false,
		"supportsRunInTerminalRequest":  true,
		"supportsStartDebuggingRequest": true,
	}
}

// initialise runs the handshake:
//
//  1. send initialize; on its response send launch or attach at once
//  2. on the initialized event send every breakpoint, then configurationDone
//     when the adapter supports it
//  3. once both the launch/attach response and step 2 have completed, in
//     either order, load the threads
func (s *Session) initialise(conn internaldap.Connection, launch launchconfig.Object) {
	s.setState(types.SessionStateInitializing)

	s.ready = barrier.New(s.onHandshakeComplete)
	launched := s.ready.Add()
	configured := s.ready.Add()
	s.ready.Arm()
	s.configured = configured

	conn.DoRequest(internaldap.Request{
		Command:   "initialize",
		Arguments: s.initializeArguments(),
	}, func(body json.RawMessage) {
		if s.conn != conn {
			return
		}
		caps, err := internaldap.DecodeCapabilities(body)
		if err != nil {
			s.log.Warnf("malformed initialize response: %v", err)
			caps = internaldap.Capabilities{}
		}
		s.caps.Merge(caps)
		s.launch(conn, launch, launched)
	}, func(reason string, _ *internaldap.Message) {
		if s.conn != conn {
			return
		}
		s.handshakeFailed(errors.HandshakeFailed("initialize", reason))
	}, 0)
}

func (s *Session) launch(conn internaldap.Connection, launch launchconfig.Object, done func()) {
	request, _ := launch["request"].(string)
	if request == "" {
		request = "launch"
	}
	conn.DoRequest(internaldap.Request{
		Command:   request,
		Arguments: launch,
	}, func(json.RawMessage) {
		if s.conn != conn {
			return
		}
		s.launchComplete = true
		done()
	}, func(reason string, _ *internaldap.Message) {
		if s.conn != conn {
			return
		}
		s.lastErr = errors.HandshakeFailed(request, reason).Error()
		s.message("Launch Failed: "+reason, true)
		s.disconnect(nil)
	}, 0)
}

// onInitialized pushes the breakpoints to the adapter and finishes its
// configuration. Adapters without configurationDone take the exception
// breakpoints request of the round as the end of configuration.
func (s *Session) onInitialized(conn internaldap.Connection) {
	if s.initializeComplete || s.configuring {
		s.log.Debug("ignoring repeated initialized event")
		return
	}
	s.configuring = true
	s.setState(types.SessionStateConfiguring)
	s.store.AddConnection(conn, s.caps)

	s.store.SendBreakpoints(func() {
		if s.conn != conn {
			return
		}
		if !s.caps.Supports("supportsConfigurationDoneRequest") {
			s.initializeCompleted()
			return
		}
		conn.DoRequest(internaldap.Request{Command: "configurationDone"}, func(json.RawMessage) {
			if s.conn != conn {
				return
			}
			s.initializeCompleted()
		}, func(reason string, _ *internaldap.Message) {
			if s.conn != conn {
				return
			}
			s.handshakeFailed(errors.HandshakeFailed("configurationDone", reason))
		}, 0)
	})
}

func (s *Session) initializeCompleted() {
	s.configuring = false
	s.initializeComplete = true
	if s.configured != nil {
		s.configured()
	}
}

// onHandshakeComplete runs exactly once per connection, when both the
// launch response and the configuration have completed.
func (s *Session) onHandshakeComplete() {
	if s.conn == nil {
		return
	}
	s.log.Info("handshake complete")
	s.setState(types.SessionStateReady)
	s.threads.LoadThreads(true, "", nil)
}

// handshakeFailed reports err and tears the connection down so the session
// can be started again.
func (s *Session) handshakeFailed(err error) {
	s.fail(err)
	s.disconnect(nil)
}
