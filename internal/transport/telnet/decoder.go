package telnet

import "fmt"

// decoder states. Telnet option negotiation (IAC sequences) is consumed
// and discarded; only line data survives.
type decoderState int

const (
	stateData decoderState = iota
	stateIAC
	stateIACCmd
)

// Telnet command bytes that carry an option byte after them.
const (
	iacByte   = 0xFF
	cmdWill   = 0xFB
	cmdWont   = 0xFC
	cmdDo     = 0xFD
	cmdDont   = 0xFE
)

// ProtocolViolationError marks input the decoder refuses to accept. The
// session translates it into a disconnect; it never reaches the engine.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return "protocol violation: " + e.Reason
}

// LineDecoder is a byte-oriented FSM that assembles sanitized input lines
// from a raw telnet stream.
type LineDecoder struct {
	state        decoderState
	buf          []byte
	nonPrintable int

	maxLineLen             int
	maxNonPrintablePerLine int
}

// NewLineDecoder bounds line length and the non-printable byte budget.
func NewLineDecoder(maxLineLen, maxNonPrintablePerLine int) *LineDecoder {
	return &LineDecoder{
		buf:                    make([]byte, 0, 128),
		maxLineLen:             maxLineLen,
		maxNonPrintablePerLine: maxNonPrintablePerLine,
	}
}

// Feed consumes a chunk of raw bytes and returns the complete lines it
// finished. After an error the decoder is unusable; the caller disconnects.
func (d *LineDecoder) Feed(data []byte) ([]string, error) {
	var lines []string
	for _, b := range data {
		switch d.state {
		case stateIAC:
			switch b {
			case cmdWill, cmdWont, cmdDo, cmdDont:
				d.state = stateIACCmd
			default:
				// Two-byte command (or escaped 0xFF); discard.
				d.state = stateData
			}
		case stateIACCmd:
			// Option byte, discarded.
			d.state = stateData
		default:
			switch {
			case b == iacByte:
				d.state = stateIAC
			case b == '\n':
				lines = append(lines, string(d.buf))
				d.buf = d.buf[:0]
				d.nonPrintable = 0
			case b == '\r':
				// Trailing \r of \r\n endings; never buffered so the
				// line-length budget counts visible bytes only.
			default:
				if !printable(b) {
					d.nonPrintable++
					if d.nonPrintable > d.maxNonPrintablePerLine {
						return lines, &ProtocolViolationError{
							Reason: fmt.Sprintf("more than %d non-printable bytes in one line", d.maxNonPrintablePerLine),
						}
					}
					continue
				}
				if len(d.buf) >= d.maxLineLen {
					return lines, &ProtocolViolationError{
						Reason: fmt.Sprintf("line exceeds %d bytes", d.maxLineLen),
					}
				}
				d.buf = append(d.buf, b)
			}
		}
	}
	return lines, nil
}

// printable accepts the visible ASCII range plus tab.
func printable(b byte) bool {
	return (b >= 0x20 && b <= 0x7E) || b == '\t'
}
