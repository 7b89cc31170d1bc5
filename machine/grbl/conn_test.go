package grbl

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice answers every line with ok, or error:20 for lines starting
// with G5.
func fakeDevice(t *testing.T) (*Conn, func() []string) {
	devR, hostW := io.Pipe()
	hostR, devW := io.Pipe()
	conn := NewConn(struct {
		io.Reader
		io.Writer
	}{hostR, hostW})

	lines := make(chan []string, 1)
	go func() {
		var got []string
		sc := bufio.NewScanner(devR)
		for sc.Scan() {
			got = append(got, sc.Text())
			resp := "ok\n"
			if strings.HasPrefix(sc.Text(), "G5") {
				resp = "error:20\n"
			}
			if _, err := io.WriteString(devW, resp); err != nil {
				break
			}
		}
		lines <- got
	}()
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		conn.Close()
		devW.Close()
		hostW.Close()
	})
	return conn, func() []string {
		hostW.Close()
		return <-lines
	}
}

func TestConn_Stream(t *testing.T) {
	conn, written := fakeDevice(t)

	var acks []error
	n, err := conn.Stream(context.Background(), []string{"G0 X1", "G5 X1", " G0 X2 "}, func(e error) {
		acks = append(acks, e)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []error{nil, ResponseError("error:20"), nil}, acks)

	_, err = conn.Write([]byte("G0 X0\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"G0 X1", "G5 X1", "G0 X2", "G0 X0"}, written())
}

func TestConn_StreamManyLines(t *testing.T) {
	conn, written := fakeDevice(t)

	lines := make([]string, 500)
	for i := range lines {
		lines[i] = "G0 X1"
	}
	var acks int
	done := make(chan struct{})
	go func() {
		defer close(done)
		n, err := conn.Stream(context.Background(), lines, func(e error) {
			assert.NoError(t, e)
			acks++
		})
		assert.NoError(t, err)
		assert.Equal(t, len(lines), n)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
	assert.Equal(t, len(lines), acks)
	assert.Len(t, written(), len(lines))
}

func TestConn_StreamCancelled(t *testing.T) {
	conn, _ := fakeDevice(t)

	// two lines fill the device buffer
	long := "G1 X" + strings.Repeat("1", 55)
	lines := []string{long, long, long, long}

	ctx, cancel := context.WithCancel(context.Background())
	var acked int
	n, err := conn.Stream(ctx, lines, func(error) {
		acked++
		cancel()
	})
	require.NoError(t, err)
	assert.Less(t, n, len(lines))
	assert.GreaterOrEqual(t, n, 2)
	assert.Equal(t, n, acked)
}

func TestConn_Closed(t *testing.T) {
	conn, _ := fakeDevice(t)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.WriteByte('?'), io.ErrClosedPipe)
}
