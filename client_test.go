package fchat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/feathrs/fchat-go/roster"
	"github.com/feathrs/fchat-go/wire"
)

// ticketServer serves one valid ticket for any credentials.
func ticketServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ticket":"fct_test","characters":{"Testy":123},"default_character":123,"error":""}`)
	}))
}

func testConfig(ticketURL string) Config {
	return Config{
		ChatURL:        "ws://chat.invalid/chat2",
		TicketURL:      ticketURL,
		BackoffInitial: 5 * time.Millisecond,
		BackoffMax:     20 * time.Millisecond,
	}
}

// pipeDialer hands out one net.Pipe per dial and runs the matching script
// against the server half.
func pipeDialer(scripts ...func(conn net.Conn)) dialFunc {
	var mu sync.Mutex
	next := 0
	return func(ctx context.Context, endpoint string) (net.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(scripts) {
			return nil, errors.New("no scripted connection left")
		}
		client, server := net.Pipe()
		go scripts[next](server)
		next++
		return client, nil
	}
}

// expectFrame reads one client frame and checks its command tag.
func expectFrame(t *testing.T, conn net.Conn, code wire.Code) []byte {
	t.Helper()
	data, err := wsutil.ReadClientText(conn)
	if err != nil {
		t.Errorf("read client frame: %v", err)
		return nil
	}
	if !bytes.HasPrefix(data, []byte(code)) {
		t.Errorf("client frame: got %q, want %s", data, code)
	}
	return data
}

func serverSend(t *testing.T, conn net.Conn, frame string) {
	t.Helper()
	if err := wsutil.WriteServerText(conn, []byte(frame)); err != nil {
		t.Errorf("write server frame: %v", err)
	}
}

// acceptIdentify consumes the IDN handshake and acknowledges it.
func acceptIdentify(t *testing.T, conn net.Conn) {
	t.Helper()
	expectFrame(t, conn, wire.CmdIdentify)
	serverSend(t, conn, `IDN {"character":"Testy"}`)
}

func waitForState(t *testing.T, sub *Subscription, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("subscription closed waiting for state %v", want)
			}
			if sc, isState := ev.(ConnectionStateChanged); isState && sc.New == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func TestConnectAndEventOrder(t *testing.T) {
	ts := ticketServer(t)
	defer ts.Close()

	proceed := make(chan struct{})
	c := newClient(testConfig(ts.URL), "user", "hunter2", "Testy")
	c.dial = pipeDialer(func(conn net.Conn) {
		acceptIdentify(t, conn)
		<-proceed
		serverSend(t, conn, `MSG {"channel":"Frontpage","character":"Alice","message":"first"}`)
		serverSend(t, conn, `PRI {"character":"Bob","message":"second"}`)
		serverSend(t, conn, `SYS {"message":"third"}`)
	})

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if c.State() != StateConnected {
		t.Fatalf("state: got %v, want connected", c.State())
	}
	// The ticket's character list seeds the registry.
	if name, ok := c.ResolveName(roster.Characters, "123"); !ok || name != "Testy" {
		t.Errorf("seeded character: got %q, %v", name, ok)
	}

	sub := c.Subscribe()
	defer sub.Close()
	close(proceed)

	first := recvEvent(t, sub).(MessageReceived)
	if first.Source != SourceChannel || first.Sender != "Alice" || first.Message != "first" {
		t.Errorf("first event: got %+v", first)
	}
	second := recvEvent(t, sub).(MessageReceived)
	if second.Source != SourcePrivate || second.Sender != "Bob" || second.Message != "second" {
		t.Errorf("second event: got %+v", second)
	}
	third := recvEvent(t, sub).(SystemMessage)
	if third.Message != "third" {
		t.Errorf("third event: got %+v", third)
	}
}

func TestConnectAuthRejected(t *testing.T) {
	ts := ticketServer(t)
	defer ts.Close()

	c := newClient(testConfig(ts.URL), "user", "hunter2", "Testy")
	c.dial = pipeDialer(func(conn net.Conn) {
		expectFrame(t, conn, wire.CmdIdentify)
		serverSend(t, conn, `ERR {"number":4,"message":"Identification failed."}`)
	})

	err := c.connect(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if authErr.Kind != AuthInvalidCredentials {
		t.Errorf("kind: got %v, want invalid credentials", authErr.Kind)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state: got %v, want disconnected", c.State())
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := newClient(testConfig("http://ticket.invalid"), "user", "hunter2", "Testy")
	err := c.Send(wire.CmdMessage, wire.MessagePayload{Channel: "x", Message: "y"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestPingPong(t *testing.T) {
	ts := ticketServer(t)
	defer ts.Close()

	ponged := make(chan []byte, 1)
	c := newClient(testConfig(ts.URL), "user", "hunter2", "Testy")
	c.dial = pipeDialer(func(conn net.Conn) {
		acceptIdentify(t, conn)
		serverSend(t, conn, "PIN")
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			t.Errorf("read pong: %v", err)
			return
		}
		ponged <- data
	})

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	select {
	case data := <-ponged:
		if string(data) != "PIN" {
			t.Errorf("pong: got %q, want PIN", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong within deadline")
	}
}

// TestReconnectRejoinsChannels drops the first connection after the own
// character joins a channel and checks that the second connection gets a
// fresh join for it, with the registry intact across the drop.
func TestReconnectRejoinsChannels(t *testing.T) {
	ts := ticketServer(t)
	defer ts.Close()

	joined := make(chan struct{})
	rejoined := make(chan []byte, 1)

	c := newClient(testConfig(ts.URL), "user", "hunter2", "Testy")
	c.dial = pipeDialer(
		func(conn net.Conn) {
			acceptIdentify(t, conn)
			<-joined
			serverSend(t, conn, `JCH {"channel":"ADH-dev","character":{"identity":"Testy"},"title":"Dev Room"}`)
			time.Sleep(50 * time.Millisecond)
			conn.Close()
		},
		func(conn net.Conn) {
			acceptIdentify(t, conn)
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				t.Errorf("read rejoin: %v", err)
				return
			}
			rejoined <- data
		},
	)

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	sub := c.Subscribe()
	defer sub.Close()
	close(joined)

	waitForState(t, sub, StateReconnecting)
	waitForState(t, sub, StateConnected)

	select {
	case data := <-rejoined:
		want := `JCH {"channel":"ADH-dev"}`
		if string(data) != want {
			t.Errorf("rejoin frame: got %q, want %q", data, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no rejoin within deadline")
	}

	// Registry survives the reconnect.
	if id, ok := c.ResolveIdentifier(roster.Channels, "dev room"); !ok || id != "ADH-dev" {
		t.Errorf("channel registry: got %q, %v", id, ok)
	}
	chans := c.JoinedChannels()
	if len(chans) != 1 || chans[0] != "ADH-dev" {
		t.Errorf("joined channels: got %v", chans)
	}
}

// TestFatalErrorStopsReconnect checks that a session-terminating ERR right
// before the server drops the connection lands the client in Disconnected
// instead of a reconnect loop.
func TestFatalErrorStopsReconnect(t *testing.T) {
	ts := ticketServer(t)
	defer ts.Close()

	proceed := make(chan struct{})
	c := newClient(testConfig(ts.URL), "user", "hunter2", "Testy")
	c.dial = pipeDialer(func(conn net.Conn) {
		acceptIdentify(t, conn)
		<-proceed
		serverSend(t, conn, `ERR {"number":40,"message":"You have been kicked."}`)
		time.Sleep(50 * time.Millisecond)
		conn.Close()
	})

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	sub := c.Subscribe()
	defer sub.Close()
	close(proceed)

	perr := recvEvent(t, sub).(ProtocolError)
	if perr.Code != wire.ErrorKicked {
		t.Errorf("protocol error: got %v", perr.Code)
	}
	waitForState(t, sub, StateDisconnected)
}

func TestUnrecognizedFrameKeepsSession(t *testing.T) {
	ts := ticketServer(t)
	defer ts.Close()

	proceed := make(chan struct{})
	c := newClient(testConfig(ts.URL), "user", "hunter2", "Testy")
	c.dial = pipeDialer(func(conn net.Conn) {
		acceptIdentify(t, conn)
		<-proceed
		serverSend(t, conn, `ZZZ {"mystery":true}`)
		serverSend(t, conn, `SYS {"message":"still here"}`)
	})

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	sub := c.Subscribe()
	defer sub.Close()
	close(proceed)

	raw := recvEvent(t, sub).(UnrecognizedFrame)
	if raw.Code != "ZZZ" {
		t.Errorf("unrecognized code: got %q", raw.Code)
	}
	sys := recvEvent(t, sub).(SystemMessage)
	if sys.Message != "still here" {
		t.Errorf("follow-up event: got %+v", sys)
	}
}

func TestCloseIsTerminal(t *testing.T) {
	ts := ticketServer(t)
	defer ts.Close()

	c := newClient(testConfig(ts.URL), "user", "hunter2", "Testy")
	c.dial = pipeDialer(func(conn net.Conn) {
		acceptIdentify(t, conn)
		// Hold the connection open until the client hangs up.
		wsutil.ReadClientText(conn)
	})

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	sub := c.Subscribe()
	c.Close()

	if c.State() != StateDisconnected {
		t.Errorf("state: got %v, want disconnected", c.State())
	}
	if err := c.Send(wire.CmdPing, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send after close: got %v, want ErrNotConnected", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed by Close")
		}
	}
}

// TestReconnectRefreshesExpiredTicket ages the held ticket past its TTL
// before the connection drops and checks that the reconnect path acquires
// a fresh one instead of identifying with the stale value.
func TestReconnectRefreshesExpiredTicket(t *testing.T) {
	var ticketCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"ticket":"fct_%d","characters":{"Testy":123},"error":""}`, ticketCalls.Add(1))
	}))
	defer ts.Close()

	identified := make(chan []byte, 2)
	script := func(conn net.Conn) {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			t.Errorf("read identify: %v", err)
			return
		}
		identified <- data
		serverSend(t, conn, `IDN {"character":"Testy"}`)
		wsutil.ReadClientText(conn)
	}

	c := newClient(testConfig(ts.URL), "user", "hunter2", "Testy")
	c.dial = pipeDialer(script, script)

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	<-identified

	sub := c.Subscribe()
	defer sub.Close()

	// Age the ticket past its lifetime, then drop the connection.
	c.ticketMu.Lock()
	c.ticket.IssuedAt = time.Now().Add(-time.Hour)
	c.ticketMu.Unlock()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	conn.Close()

	waitForState(t, sub, StateConnected)

	if got := ticketCalls.Load(); got != 2 {
		t.Errorf("ticket acquisitions: got %d, want 2", got)
	}
	second := <-identified
	if !bytes.Contains(second, []byte(`"ticket":"fct_2"`)) {
		t.Errorf("second identify used stale ticket: %s", second)
	}
	// Registry contents survive the drop.
	if name, ok := c.ResolveName(roster.Characters, "123"); !ok || name != "Testy" {
		t.Errorf("registry after reconnect: got %q, %v", name, ok)
	}
}

func TestWithJitterBounds(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		d := withJitter(base)
		if d < 750*time.Millisecond || d > 1250*time.Millisecond {
			t.Fatalf("jittered delay out of bounds: %v", d)
		}
	}
}
