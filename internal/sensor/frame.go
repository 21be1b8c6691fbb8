package sensor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	SOF0      = 0xAA
	SOF1      = 0x55
	CmdSample = 0x20
)

// ErrBadFrame is returned for a frame with a wrong checksum or command.
// The reader stays usable and resumes at the next start-of-frame.
var ErrBadFrame = errors.New("bad serial frame")

// EncodeFrame wraps a sample payload for the serial link:
//
//	[SOF0][SOF1][LEN][CMD][payload...][CKS]
//
// LEN counts CMD and payload. CKS is the XOR of LEN, CMD and payload.
func EncodeFrame(payload []byte) []byte {
	length := byte(len(payload) + 1)
	cks := length ^ CmdSample
	for _, b := range payload {
		cks ^= b
	}

	out := make([]byte, 0, len(payload)+5)
	out = append(out, SOF0, SOF1, length, CmdSample)
	out = append(out, payload...)
	return append(out, cks)
}

// FrameReader extracts sample payloads from a serial byte stream.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next returns the payload of the next frame. Bytes before a start-of-frame
// are skipped.
func (f *FrameReader) Next() ([]byte, error) {
	if err := f.sync(); err != nil {
		return nil, err
	}

	length, err := f.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, fmt.Errorf("%w: zero length", ErrBadFrame)
	}

	body := make([]byte, int(length)+1) // CMD + payload + CKS
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, err
	}

	cks := length
	for _, b := range body[:len(body)-1] {
		cks ^= b
	}
	if cks != body[len(body)-1] {
		return nil, fmt.Errorf("%w: checksum %#02x, want %#02x", ErrBadFrame, body[len(body)-1], cks)
	}
	if body[0] != CmdSample {
		return nil, fmt.Errorf("%w: command %#02x", ErrBadFrame, body[0])
	}
	return body[1 : len(body)-1], nil
}

func (f *FrameReader) sync() error {
	prev := byte(0)
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == SOF0 && b == SOF1 {
			return nil
		}
		prev = b
	}
}
