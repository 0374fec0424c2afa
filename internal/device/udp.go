package device

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"arlens/internal/model"
)

const (
	udpPacketSize   = 2048
	udpReadDeadline = 500 * time.Millisecond
	maxJPEGSize     = 4 << 20
)

var errNoFrame = errors.New("no complete frame received")

// UDPDevice receives JPEG frames streamed as UDP datagrams, e.g. from ESP32 cameras.
type UDPDevice struct {
	addr      string
	conn      *net.UDPConn
	assembler *jpegAssembler
	packet    []byte
}

// NewUDPDevice creates a receiver for an identifier of the form udp://host:port.
func NewUDPDevice(id string) *UDPDevice {
	return &UDPDevice{addr: strings.TrimPrefix(id, "udp://")}
}

// Open binds the UDP socket.
func (d *UDPDevice) Open() error {
	addr, err := net.ResolveUDPAddr("udp", d.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", d.addr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.addr, err)
	}
	d.conn = conn
	d.assembler = newJPEGAssembler(maxJPEGSize)
	d.packet = make([]byte, udpPacketSize)
	return nil
}

// Read blocks until a whole JPEG has arrived and decodes it. It gives up after
// a short deadline so the caller can observe cancellation.
func (d *UDPDevice) Read() (model.Frame, error) {
	if d.conn == nil {
		return model.Frame{}, errors.New("udp device is not open")
	}
	if err := d.conn.SetReadDeadline(time.Now().Add(udpReadDeadline)); err != nil {
		return model.Frame{}, err
	}

	for {
		n, remote, err := d.conn.ReadFromUDP(d.packet)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return model.Frame{}, errNoFrame
			}
			return model.Frame{}, fmt.Errorf("error reading UDP packet: %w", err)
		}

		image, ok := d.assembler.Push(remote.IP.String(), d.packet[:n])
		if !ok {
			continue
		}
		return decodeJPEG(image)
	}
}

// Close releases the socket.
func (d *UDPDevice) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func decodeJPEG(image []byte) (model.Frame, error) {
	mat, err := gocv.IMDecode(image, gocv.IMReadColor)
	if err != nil {
		return model.Frame{}, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return model.Frame{}, errEmptyRead
	}
	return frameFromMat(mat)
}
