package tds

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/mssqlext/mssql-extension/pkg/errx"
)

// Framer owns one TCP (optionally TLS-wrapped) socket and the outbound
// packet-id sequencing for it, implementing the §4.A wire-framing
// contract: send_message / receive_message / receive_packet.
//
// A Framer is not safe for concurrent use; per §5 a connection is
// single-threaded and owned exclusively by whichever layer currently
// holds it (the pool when idle, the acquirer while executing).
type Framer struct {
	conn       net.Conn
	tlsConn    *tls.Conn
	reader     *bufio.Reader
	writer     *bufio.Writer
	packetSize int
	spid       uint16
	outID      uint32 // next outbound packet id, atomic so Reset is race-free under cancellation
}

// Dial opens a TCP connection to addr with TCP_NODELAY set, per §4.A.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Framer, error) {
	if err := ensureWinsockInitialized(); err != nil {
		return nil, errx.Wrap(err, errx.KindTransport, "tds: winsock init failed")
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errx.Wrap(err, errx.KindTransport, "tds: dial failed")
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	f := &Framer{
		conn:       conn,
		packetSize: DefaultPacketSize,
	}
	f.reader = bufio.NewReaderSize(conn, MaxPacketSize)
	f.writer = bufio.NewWriterSize(conn, MaxPacketSize)
	return f, nil
}

// SetPacketSize applies the packet size negotiated during LOGIN7 (§3.1).
func (f *Framer) SetPacketSize(size int) {
	if size < MinPacketSize {
		size = MinPacketSize
	}
	if size > MaxPacketSize {
		size = MaxPacketSize
	}
	f.packetSize = size
}

// PacketSize returns the currently negotiated packet size.
func (f *Framer) PacketSize() int { return f.packetSize }

// UpgradeTLS wraps the underlying socket in TLS. Per §4.D the handshake
// bytes themselves travel tunneled inside TDS PRELOGIN packets (the
// caller drives that tunnel via RawWrite/RawRead during the handshake);
// once negotiated, UpgradeTLS swaps in raw TLS record framing for every
// subsequent read/write.
func (f *Framer) UpgradeTLS(cfg *tls.Config) error {
	tc := tls.Client(f.conn, cfg)
	if err := tc.Handshake(); err != nil {
		return errx.Wrap(err, errx.KindTransport, "tds: tls handshake failed")
	}
	f.tlsConn = tc
	f.reader = bufio.NewReaderSize(tc, MaxPacketSize)
	f.writer = bufio.NewWriterSize(tc, MaxPacketSize)
	return nil
}

// RawReader exposes the buffered wire reader for use during the PRELOGIN
// TLS tunnel, where the caller must hand TLS handshake bytes to and from
// the TDS packet framer without going through the normal token pipeline.
func (f *Framer) RawReader() io.Reader { return f.reader }

// RawWriter exposes the buffered wire writer for the same reason.
func (f *Framer) RawWriter() io.Writer { return f.writer }

// ResetOutbound resets the outbound packet-id counter to 1, required at
// the start of every new message per §4.E.
func (f *Framer) ResetOutbound() {
	atomic.StoreUint32(&f.outID, 1)
}

func (f *Framer) nextID() uint8 {
	id := atomic.AddUint32(&f.outID, 1) - 1
	if id == 0 {
		id = 1
		atomic.StoreUint32(&f.outID, 2)
	}
	return uint8(id)
}

// SendMessage splits payload into packets of the negotiated size, stamps
// headers with a consecutive packet-id sequence starting at 1 and EOM on
// the final packet, and writes them atomically (§3.1 invariant 1).
func (f *Framer) SendMessage(typ PacketType, payload []byte) error {
	f.ResetOutbound()
	maxPayload := f.packetSize - HeaderSize
	if maxPayload <= 0 {
		maxPayload = DefaultPacketSize - HeaderSize
	}

	if len(payload) == 0 {
		hdr := Header{Type: typ, Status: StatusEOM, Length: HeaderSize, SPID: f.spid, PacketID: f.nextID()}
		if _, err := f.writer.Write(hdr.Marshal()); err != nil {
			return errx.Wrap(err, errx.KindTransport, "tds: write failed")
		}
		return f.flush()
	}

	for len(payload) > 0 {
		chunk := payload
		status := StatusEOM
		if len(chunk) > maxPayload {
			chunk = payload[:maxPayload]
			status = StatusNormal
		}
		hdr := Header{
			Type:     typ,
			Status:   status,
			Length:   uint16(HeaderSize + len(chunk)),
			SPID:     f.spid,
			PacketID: f.nextID(),
		}
		if _, err := f.writer.Write(hdr.Marshal()); err != nil {
			return errx.Wrap(err, errx.KindTransport, "tds: write failed")
		}
		if _, err := f.writer.Write(chunk); err != nil {
			return errx.Wrap(err, errx.KindTransport, "tds: write failed")
		}
		payload = payload[len(chunk):]
	}
	return f.flush()
}

func (f *Framer) flush() error {
	if err := f.writer.Flush(); err != nil {
		return errx.Wrap(err, errx.KindTransport, "tds: flush failed")
	}
	return nil
}

// ReceivePacket reads a single packet (header + payload) honoring the
// deadline, for streaming consumers (§4.G) that must feed the parser
// progressively rather than waiting for a whole message.
func (f *Framer) ReceivePacket(deadline time.Time) (Header, []byte, error) {
	if err := f.setReadDeadline(deadline); err != nil {
		return Header{}, nil, err
	}
	hdr, err := ReadHeader(f.reader)
	if err != nil {
		if err == io.EOF {
			return Header{}, nil, errx.Wrap(err, errx.KindTransport, "tds: connection closed mid-message")
		}
		return Header{}, nil, errx.Wrap(err, errx.KindTransport, "tds: malformed packet header")
	}
	payload := make([]byte, hdr.PayloadLength())
	if len(payload) > 0 {
		if _, err := io.ReadFull(f.reader, payload); err != nil {
			return Header{}, nil, errx.Wrap(err, errx.KindTransport, "tds: short read on packet payload")
		}
	}
	return hdr, payload, nil
}

// ReceiveMessage reassembles a full message (one or more packets of
// identical type, the last with EOM set), per §4.A.
func (f *Framer) ReceiveMessage(deadline time.Time) (PacketType, []byte, error) {
	var typ PacketType
	var payload []byte
	for {
		hdr, chunk, err := f.ReceivePacket(deadline)
		if err != nil {
			return 0, nil, err
		}
		if typ == 0 {
			typ = hdr.Type
		} else if hdr.Type != typ {
			return 0, nil, errx.Newf(errx.KindProtocol, "tds: packet type changed mid-message (%s -> %s)", typ, hdr.Type)
		}
		payload = append(payload, chunk...)
		if hdr.IsEOM() {
			return typ, payload, nil
		}
	}
}

func (f *Framer) setReadDeadline(deadline time.Time) error {
	if deadline.IsZero() {
		return nil
	}
	if err := f.conn.SetReadDeadline(deadline); err != nil {
		return errx.Wrap(err, errx.KindTransport, "tds: set read deadline failed")
	}
	return nil
}

// SetSPID records the server process id echoed by the server after login,
// so subsequent outbound headers carry it.
func (f *Framer) SetSPID(spid uint16) { f.spid = spid }

// Close tears down the socket.
func (f *Framer) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}

// LocalAddr/RemoteAddr expose the underlying socket endpoints, useful for
// diagnostics and pool logging.
func (f *Framer) LocalAddr() net.Addr  { return f.conn.LocalAddr() }
func (f *Framer) RemoteAddr() net.Addr { return f.conn.RemoteAddr() }
