// Package testutil provides shared test fixtures: packet captures, a
// loopback status listener and debug-route requests.
package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Datagram is one UDP payload addressed to a destination port.
type Datagram struct {
	DstPort uint16
	Payload []byte
}

// WriteUDPCapture writes datagrams to a new pcap file in t.TempDir() as
// Ethernet/IPv4/UDP frames 10ms apart and returns its path.
func WriteUDPCapture(t testing.TB, datagrams []Datagram) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create capture: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("write pcap header: %v", err)
	}

	ts := time.Unix(1700000000, 0)
	for _, d := range datagrams {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(127, 0, 0, 1),
			DstIP:    net.IPv4(127, 0, 0, 1),
		}
		udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(d.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("set checksum layer: %v", err)
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(d.Payload)); err != nil {
			t.Fatalf("serialize datagram: %v", err)
		}

		data := buf.Bytes()
		if err := w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(data),
			Length:        len(data),
		}, data); err != nil {
			t.Fatalf("write packet: %v", err)
		}
		ts = ts.Add(10 * time.Millisecond)
	}
	return path
}

// StatusListener collects every datagram received on a loopback port.
type StatusListener struct {
	conn *net.UDPConn

	mu        sync.Mutex
	datagrams [][]byte
	done      chan struct{}
}

// ListenStatus binds an ephemeral loopback UDP port and collects datagrams
// until the test ends.
func ListenStatus(t testing.TB) *StatusListener {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen status: %v", err)
	}
	l := &StatusListener{conn: conn, done: make(chan struct{})}
	go l.run()
	t.Cleanup(func() {
		conn.Close()
		<-l.done
	})
	return l
}

func (l *StatusListener) run() {
	defer close(l.done)
	buf := make([]byte, 2048)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		l.mu.Lock()
		l.datagrams = append(l.datagrams, append([]byte(nil), buf[:n]...))
		l.mu.Unlock()
	}
}

// Addr returns the host:port the listener is bound to.
func (l *StatusListener) Addr() string {
	return l.conn.LocalAddr().String()
}

// Datagrams returns a copy of everything received so far.
func (l *StatusListener) Datagrams() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.datagrams))
	copy(out, l.datagrams)
	return out
}

// SendUDP writes payload to address from a fresh socket.
func SendUDP(t testing.TB, address string, payload []byte) {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		t.Fatalf("resolve %s: %v", address, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial %s: %v", address, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write to %s: %v", address, err)
	}
}

// NewDebugRequest creates a request that tsweb.Debugger treats as coming
// from loopback.
func NewDebugRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// ServeDebug runs req against mux and returns the recorded response.
func ServeDebug(mux http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}
