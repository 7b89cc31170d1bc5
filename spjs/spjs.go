// Package spjs is a client for serial-port-json-server, which owns the
// serial port on behalf of the sender.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mastercactapus/gsend/logging"
)

var log = logging.NewLogger("spjs")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("spjs client closed")

type SPJS struct {
	url string

	outgoing  chan message
	incomming chan interface{}

	closeOnce sync.Once
	closeCh   chan struct{}
}

type message struct {
	done    chan struct{}
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name                      string
	Friendly                  string
	SerialNumber              string
	DeviceClass               string
	IsOpen                    bool
	IsPrimary                 bool
	RelatedNames              []string
	Baud                      int
	BufferAlgorithm           string
	AvailableBufferAlgorithms []string
	Ver                       float64
	USBVID                    string
	USBPID                    string
	FeedRateOverride          float64
}

// NewSPJS connects to the server at url, reconnecting as needed.
func NewSPJS(url string) *SPJS {
	sp := &SPJS{
		url:       url,
		outgoing:  make(chan message, 1000),
		incomming: make(chan interface{}, 1000),
		closeCh:   make(chan struct{}),
	}

	go sp.loop()

	return sp
}

// Messages delivers parsed server messages: *DataFrame, *CmdStatus,
// *SerialPortList, *ErrorMessage, and Disconnected when the websocket
// drops.
func (sp *SPJS) Messages() <-chan interface{} {
	return sp.incomming
}

// Disconnected is delivered when the connection to the server is lost.
type Disconnected struct{}

// Close stops reconnecting and drops the connection.
func (sp *SPJS) Close() error {
	sp.closeOnce.Do(func() { close(sp.closeCh) })
	return nil
}
func parseSPJSMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Type", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}
func (sp *SPJS) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.WithError(err).Warn("read")
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			log.WithError(err).Warn("decode message")
			continue
		}
		val, err := parseSPJSMessage(data, msg)
		if err != nil {
			log.WithError(err).Debug("parse message")
			continue
		}
		sp.deliver(val)
	}
}
func (sp *SPJS) deliver(val interface{}) {
	select {
	case sp.incomming <- val:
	case <-sp.closeCh:
	}
}

func (sp *SPJS) loop() {
	var nextUp message
	l := log.WithField("url", sp.url)

reconnect:
	for {
		select {
		case <-sp.closeCh:
			return
		default:
		}

		l.Info("connecting")
		ws, _, err := websocket.DefaultDialer.Dial(sp.url, nil)
		if err != nil {
			l.WithError(err).Error("connect")
			select {
			case <-time.After(3 * time.Second):
			case <-sp.closeCh:
				return
			}
			continue
		}
		l.Info("connected")
		ch := make(chan struct{})
		go sp.readLoop(ws, ch)
		go sp.WriteString("list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					l.WithError(err).Error("send")
					ws.Close()
					sp.deliver(Disconnected{})
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-ch:
				ws.Close()
				sp.deliver(Disconnected{})
				continue reconnect
			case <-sp.closeCh:
				ws.Close()
				return
			case nextUp = <-sp.outgoing:
			}
		}
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// SendJSON queues lines for the port with the sendjson command.
func (sp *SPJS) SendJSON(v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return sp.write(append([]byte("sendjson "), data...))
}

// SendNoBuf writes data to the port, bypassing the server queue. It is
// used for realtime commands.
func (sp *SPJS) SendNoBuf(port, data string) error {
	return sp.write([]byte("sendnobuf " + port + " " + data))
}

// WriteString sends a raw server command, e.g. "list".
func (sp *SPJS) WriteString(data string) error {
	return sp.write([]byte(data))
}

// write returns once the payload was written to the websocket.
func (sp *SPJS) write(payload []byte) error {
	select {
	case <-sp.closeCh:
		return ErrClosed
	default:
	}

	ch := make(chan struct{})
	select {
	case sp.outgoing <- message{done: ch, payload: payload}:
	case <-sp.closeCh:
		return ErrClosed
	}
	select {
	case <-ch:
		return nil
	case <-sp.closeCh:
		return ErrClosed
	}
}
