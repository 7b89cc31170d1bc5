package spjs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, data string) interface{} {
	t.Helper()
	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	val, err := parseSPJSMessage([]byte(data), msg)
	require.NoError(t, err)
	return val
}

func TestParseSPJSMessage(t *testing.T) {
	assert.Equal(t, &DataFrame{Port: "COM3", Data: "ok"}, parse(t, `{"P":"COM3","D":"ok"}`))
	assert.Equal(t, &CmdStatus{Cmd: "Complete", ID: "cmd_1", Type: []string{"Buf"}}, parse(t, `{"Cmd":"Complete","Id":"cmd_1","Type":["Buf"]}`))
	assert.Equal(t, &ErrorMessage{Error: "port busy"}, parse(t, `{"Error":"port busy"}`))

	list := parse(t, `{"SerialPorts":[{"Name":"COM3","IsOpen":true}]}`).(*SerialPortList)
	require.Len(t, list.SerialPorts, 1)
	assert.True(t, list.SerialPorts[0].IsOpen)

	var msg map[string]json.RawMessage
	_, err := parseSPJSMessage([]byte(`{"X":1}`), msg)
	assert.Error(t, err)
}

func TestSPJS_RoundTrip(t *testing.T) {
	received := make(chan string, 10)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
			if string(data) == "list" {
				ws.WriteMessage(websocket.TextMessage, []byte("list"))
				ws.WriteMessage(websocket.TextMessage, []byte(`{"SerialPorts":[{"Name":"COM3"}]}`))
			}
		}
	}))
	defer srv.Close()

	sp := NewSPJS("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer sp.Close()

	select {
	case msg := <-sp.Messages():
		list, ok := msg.(*SerialPortList)
		require.True(t, ok)
		assert.Equal(t, "COM3", list.SerialPorts[0].Name)
	case <-time.After(5 * time.Second):
		t.Fatal("no port list")
	}

	require.NoError(t, sp.SendJSON(JSON{Port: "COM3", Data: []Data{{Data: "G0 X1\n", ID: "a"}}}))
	require.NoError(t, sp.SendNoBuf("COM3", "!"))

	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case m := <-received:
			got = append(got, m)
		case <-timeout:
			t.Fatal("timeout")
		}
	}
	assert.Equal(t, "list", got[0])
	assert.Equal(t, `sendjson {"P":"COM3","Data":[{"D":"G0 X1\n","Id":"a"}]}`, got[1])
	assert.Equal(t, "sendnobuf COM3 !", got[2])

	sp.Close()
	assert.ErrorIs(t, sp.WriteString("list"), ErrClosed)
}
