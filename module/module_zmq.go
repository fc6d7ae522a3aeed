//go:build zmq
// +build zmq

package module

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/bridgelua/bridgelua/event"
	"github.com/bridgelua/bridgelua/luaconv"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"gopkg.in/zeromq/goczmq.v4"
)

// zmqModule requires the libczmq system dependency and is compiled
// in behind the zmq build tag.
type zmqModule struct {
	RuntimeModule
}

func ZMQModule(runtime Runtime) *zmqModule {
	return &zmqModule{
		RuntimeModule: RuntimeModule{
			Module: Module{
				name: "zmq",
			},
			runtime: runtime,
		},
	}
}

func (m *zmqModule) Open() lua.LGFunction {
	return func(l *lua.LState) int {
		functions := map[string]lua.LGFunction{
			"dealer": m.dealer,
			"router": m.router,
		}
		l.Push(l.SetFuncs(l.CreateTable(0, len(functions)), functions))
		return 1
	}
}

// dealer starts a dealer channeler connected to the given address.
func (m *zmqModule) dealer(l *lua.LState) int {
	address := l.CheckString(1)
	u, err := url.Parse(fmt.Sprintf("tcp://%v", address))
	if err != nil {
		l.ArgError(1, "expects valid url")
		return 0
	}

	fn := l.CheckFunction(2)
	if fn == nil {
		l.ArgError(2, "expects function handler")
		return 0
	}
	e := &zmqEvent{
		Channeler: goczmq.NewDealerChanneler(
			u.String(),
		),
		logger: m.logger,
		VM:     l,
		Func:   fn,
	}
	m.runtime.EventQueue() <- e
	l.Push(e.Self())
	return 1
}

// router starts a router channeler bound to the given port.
func (m *zmqModule) router(l *lua.LState) int {
	port := l.CheckNumber(1)
	if port <= 1000 {
		l.ArgError(1, "invalid port: ports under 1000 are usually reserved by the system")
		return 0
	}
	if port > math.MaxUint16 {
		l.ArgError(1, "invalid port: port should not exceed 65535")
		return 0
	}
	fn := l.CheckFunction(2)
	if fn == nil {
		l.ArgError(2, "expects function handler")
		return 0
	}
	e := &zmqEvent{
		Channeler: goczmq.NewRouterChanneler(
			fmt.Sprintf("tcp://*:%v", port),
		),
		logger: m.logger,
		VM:     l,
		Func:   fn,
	}
	m.runtime.EventQueue() <- e
	l.Push(e.Self())
	return 1
}

type zmqPacket struct {
	sender  []byte
	Payload interface{}
}

// Serialize prepares the frames for SendChan. A non-empty sender
// frame means the packet is a router response addressed to that
// sender.
func (p *zmqPacket) Serialize() ([][]byte, error) {
	packet := make([][]byte, 0, 2)
	if len(p.sender) > 0 {
		packet = append(packet, p.sender)
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return append(packet, buf.Bytes()), nil
}

// Deserialize reads frames from RecvChan. The last frame carries the
// payload; a leading frame, when present, identifies the sender.
func (p *zmqPacket) Deserialize(b [][]byte) error {
	data := b[len(b)-1]
	r := bytes.NewReader(data)
	dec := gob.NewDecoder(r)
	if err := dec.Decode(p); err != nil {
		return err
	} else if len(b) > 1 {
		p.sender = b[0]
	}
	return nil
}

type zmqEvent struct {
	*goczmq.Channeler
	event.StateEvent
	sync.Mutex
	logger *zap.Logger
	queue  []*zmqPacket
	self   *lua.LTable
	Func   *lua.LFunction
	VM     *lua.LState
}

// Update spawns the receive goroutine on the first tick, then drains
// queued packets into the handler on following ticks.
func (e *zmqEvent) Update(time.Duration) error {
	switch event.State(e.Load()) {
	case event.INITIALIZE:
		e.Store(uint32(event.PROGRESS))
		e.queue = make([]*zmqPacket, 0, 128)
		go func() {
			defer e.Store(uint32(event.COMPLETE))
			for request := range e.RecvChan {
				packet := &zmqPacket{}
				if err := packet.Deserialize(request); err != nil {
					e.logger.Warn("malformed packet", zap.Error(err))
					continue
				}
				e.Lock()
				e.queue = append(e.queue, packet)
				e.Unlock()
			}
		}()
	case event.PROGRESS:
		var packet *zmqPacket
		e.Lock()
		defer e.Unlock()
		for len(e.queue) > 0 {
			packet, e.queue = e.queue[0], e.queue[1:]
			e.VM.Push(e.Func)
			e.VM.Push(e.Self())
			e.VM.Push(luaconv.Value(e.VM, packet.Payload))
			e.VM.Push(e.Sender(packet.sender))
			if err := e.VM.PCall(3, 0, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// Destroy completes the event before tearing down the channeler.
func (e *zmqEvent) Destroy() {
	e.Store(uint32(event.COMPLETE))
	e.Channeler.Destroy()
}

func (e *zmqEvent) Stop() {
	e.Destroy()
}

// CheckZMQEvent extracts the event backing a channeler table.
func CheckZMQEvent(l *lua.LState, n int) *zmqEvent {
	if self := l.CheckTable(n); self != nil {
		if data, ok := self.Metatable.(*lua.LUserData); ok {
			if e, ok := data.Value.(*zmqEvent); ok {
				return e
			}
		}
	}
	l.ArgError(n, "expects zmq channeler")
	return nil
}

var (
	zmqEventFuncs = map[string]lua.LGFunction{
		"send": zmqEventSend,
		"stop": zmqEventStop,
	}
)

func zmqEventSend(l *lua.LState) int {
	e := CheckZMQEvent(l, 1)
	if e == nil {
		return 0
	}
	packet := &zmqPacket{
		sender:  []byte(l.OptString(3, "")),
		Payload: luaconv.LuaValue(l.CheckAny(2)),
	}
	b, err := packet.Serialize()
	if err != nil {
		l.RaiseError(err.Error())
		return 0
	}
	e.SendChan <- b
	return 0
}

func zmqEventStop(l *lua.LState) int {
	e := CheckZMQEvent(l, 1)
	if e == nil {
		return 0
	}
	e.Stop()
	return 0
}

// Self returns the script-facing handle for this channeler.
func (e *zmqEvent) Self() lua.LValue {
	if e.self != nil {
		return e.self
	}
	funcs := zmqEventFuncs
	e.self = e.VM.SetFuncs(e.VM.CreateTable(0, len(funcs)), funcs)
	e.self.Metatable = &lua.LUserData{Value: e}
	return e.self
}

// Key holding the sender frame on a reply table.
const (
	zmqEventSenderKey = "__frame"
)

// CheckZMQEventSender extracts the event and sender frame from a
// reply table.
func CheckZMQEventSender(l *lua.LState, n int) (*zmqEvent, []byte) {
	if self := l.CheckTable(n); self != nil {
		if data, ok := self.Metatable.(*lua.LUserData); ok {
			if e, ok := data.Value.(*zmqEvent); ok {
				v := self.RawGetString(zmqEventSenderKey)
				return e, []byte(v.String())
			}
		}
	}
	l.ArgError(n, "expects zmq sender")
	return nil, nil
}

var (
	zmqEventSenderFuncs = map[string]lua.LGFunction{
		"send": zmqSenderSend,
	}
)

func zmqSenderSend(l *lua.LState) int {
	e, frame := CheckZMQEventSender(l, 1)
	if e == nil {
		return 0
	}
	packet := &zmqPacket{
		sender:  frame,
		Payload: luaconv.LuaValue(l.CheckAny(2)),
	}
	b, err := packet.Serialize()
	if err != nil {
		l.RaiseError(err.Error())
		return 0
	}
	e.SendChan <- b
	return 0
}

// Sender builds a reply object a router handler can respond through.
func (e *zmqEvent) Sender(frame []byte) lua.LValue {
	if len(frame) == 0 {
		return lua.LNil
	}
	funcs := zmqEventSenderFuncs
	sender := e.VM.SetFuncs(e.VM.CreateTable(0, len(funcs)+1), funcs)
	sender.RawSetString(zmqEventSenderKey, luaconv.Value(e.VM, frame))
	sender.Metatable = &lua.LUserData{Value: e}
	return sender
}
