package device

import "bytes"

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// jpegAssembler rebuilds JPEG images split across datagrams. A datagram that
// starts with the SOI marker begins a new image; one that ends with the EOI
// marker completes it.
type jpegAssembler struct {
	maxSize int
	buffers map[string]*bytes.Buffer
}

func newJPEGAssembler(maxSize int) *jpegAssembler {
	return &jpegAssembler{maxSize: maxSize, buffers: make(map[string]*bytes.Buffer)}
}

// Push appends a datagram from sender and returns a complete image when one is ready.
func (a *jpegAssembler) Push(sender string, data []byte) ([]byte, bool) {
	buf, ok := a.buffers[sender]
	if !ok {
		buf = new(bytes.Buffer)
		a.buffers[sender] = buf
	}

	if bytes.HasPrefix(data, jpegHeader) {
		buf.Reset()
	} else if buf.Len() == 0 {
		// Mid-image datagram without a start; wait for the next SOI.
		return nil, false
	}
	buf.Write(data)

	if buf.Len() > a.maxSize {
		buf.Reset()
		return nil, false
	}

	if !bytes.HasSuffix(data, jpegFooter) {
		return nil, false
	}
	image := make([]byte, buf.Len())
	copy(image, buf.Bytes())
	buf.Reset()
	return image, true
}
