// SPDX-License-Identifier: BSD-3-Clause

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ID identifies a message kind on the wire. Client-to-server requests and
// server-to-client events share one numeric space so a single frame header
// is enough to dispatch either direction.
type ID uint32

const (
	// Client -> server requests.
	Register ID = iota + 1
	RegisterDebug
	Acquire
	Release
	Restart
	Shutdown
	NvmBackup
	AckColdReset
	AckShutdown
	NotifyDebug

	// Server -> client events.
	MdmDown
	MdmUp
	MdmOn
	MdmOOS
	MdmBusy
	MdmFlash
	MdmDump
	MdmNeedReset
	MdmColdReset
	MdmShutdown
	MdmDbgInfo
)

func (id ID) String() string {
	switch id {
	case Register:
		return "REGISTER"
	case RegisterDebug:
		return "REGISTER_DBG"
	case Acquire:
		return "ACQUIRE"
	case Release:
		return "RELEASE"
	case Restart:
		return "RESTART"
	case Shutdown:
		return "SHUTDOWN"
	case NvmBackup:
		return "NVM_BACKUP"
	case AckColdReset:
		return "ACK_COLD_RESET"
	case AckShutdown:
		return "ACK_SHUTDOWN"
	case NotifyDebug:
		return "NOTIFY_DBG"
	case MdmDown:
		return "MDM_DOWN"
	case MdmUp:
		return "MDM_UP"
	case MdmOn:
		return "MDM_ON"
	case MdmOOS:
		return "MDM_OOS"
	case MdmBusy:
		return "MDM_BUSY"
	case MdmFlash:
		return "MDM_FLASH"
	case MdmDump:
		return "MDM_DUMP"
	case MdmNeedReset:
		return "MDM_NEED_RESET"
	case MdmColdReset:
		return "MDM_COLD_RESET"
	case MdmShutdown:
		return "MDM_SHUTDOWN"
	case MdmDbgInfo:
		return "MDM_DBG_INFO"
	default:
		return fmt.Sprintf("ID(%d)", uint32(id))
	}
}

// RestartCause is the reason a client gives for requesting RESTART.
type RestartCause uint32

const (
	RestartCauseUnknown RestartCause = iota
	RestartCauseModemError
	RestartCauseClientRequest
)

// DebugType classifies a DebugInfo payload.
type DebugType uint32

const (
	DebugTypeSuccess DebugType = iota
	DebugTypeError
	DebugTypeSelfReset
	DebugTypeFwFailure
	DebugTypeAPIMR
	DebugTypeNvmBackupSuccess
)

const (
	// MaxFrameLen is the protocol-wide maximum total_length, header included.
	MaxFrameLen = 12 * 1024
	// MaxDataLen is MDM_CLI_MAX_LEN_DATA: the maximum length of one debug string.
	MaxDataLen = 256
	// MaxNbData is MDM_CLI_MAX_NB_DATA: the maximum number of debug strings.
	MaxNbData = 5
	// MaxNameLen is the maximum length of a client's REGISTER name.
	MaxNameLen = 16

	headerLen = 8
)

// DebugInfo is the MDM_DBG_INFO / RESTART debug payload (spec.md §3).
type DebugInfo struct {
	Type        DebugType
	APLogSizeMB uint32
	BPLogSizeMB uint32
	BPLogTimeS  uint32
	Data        []string
}

func (d *DebugInfo) validate() error {
	if d == nil {
		return nil
	}
	if len(d.Data) > MaxNbData {
		return ErrTooManyStrings
	}
	for _, s := range d.Data {
		if len(s) > MaxDataLen {
			return ErrStringTooLarge
		}
	}
	return nil
}

// Message is the decoded form of a single wire frame. Only the fields
// relevant to ID are meaningful; this mirrors the C union in
// crm_mdmcli_wire_msg_t but flattened into one Go struct, since Go has no
// tagged unions and the payloads never overlap in practice.
type Message struct {
	ID ID

	// REGISTER / REGISTER_DBG
	EventsBitmap uint32
	Name         string

	// RESTART
	Cause RestartCause

	// RESTART (optional) / NOTIFY_DBG (optional) / MDM_DBG_INFO (mandatory)
	Debug *DebugInfo
}

// Encode serializes m into a freshly allocated slice, the "allocate"
// variant named in spec.md §4.C — useful when the same message is about to
// be broadcast to many client sockets without re-serializing per recipient.
func Encode(m Message) ([]byte, error) {
	body, err := encodeBody(m)
	if err != nil {
		return nil, err
	}
	total := headerLen + len(body)
	if total > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(m.ID))
	binary.BigEndian.PutUint32(buf[4:8], uint32(total))
	copy(buf[headerLen:], body)
	return buf, nil
}

// EncodeTo serializes m with Encode and writes the resulting frame to w in
// a single Write call. It allocates the same full-frame slice Encode does;
// it does not serialize directly into w.
func EncodeTo(w io.Writer, m Message) error {
	buf, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Decode reads exactly one frame from r. Any parse failure — short read,
// a bad length, too many debug strings, an oversized string — is reported
// as an error and, per spec.md §4.C's failure semantics, must be treated by
// the caller as "no message; the socket is broken."
func Decode(r io.Reader) (Message, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	id := ID(binary.BigEndian.Uint32(hdr[0:4]))
	total := binary.BigEndian.Uint32(hdr[4:8])

	if total < headerLen {
		return Message{}, ErrFrameTooShort
	}
	if total > MaxFrameLen {
		return Message{}, ErrFrameTooLarge
	}

	body := make([]byte, total-headerLen)
	if len(body) > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Message{}, fmt.Errorf("%w: %w", ErrShortRead, err)
		}
	}

	m, err := decodeBody(id, body)
	if err != nil {
		return Message{}, err
	}
	m.ID = id
	return m, nil
}

func encodeBody(m Message) ([]byte, error) {
	var buf []byte

	switch m.ID {
	case Register, RegisterDebug:
		if len(m.Name) > MaxNameLen {
			return nil, ErrNameTooLong
		}
		buf = appendUint32(buf, m.EventsBitmap)
		buf = appendString(buf, m.Name)

	case Restart:
		if err := m.Debug.validate(); err != nil {
			return nil, err
		}
		buf = appendUint32(buf, uint32(m.Cause))
		buf = appendDebugInfo(buf, m.Debug)

	case NotifyDebug:
		if err := m.Debug.validate(); err != nil {
			return nil, err
		}
		buf = appendDebugInfo(buf, m.Debug)

	case MdmDbgInfo:
		if m.Debug == nil {
			return nil, fmt.Errorf("wire: MDM_DBG_INFO requires a debug payload")
		}
		if err := m.Debug.validate(); err != nil {
			return nil, err
		}
		buf = appendDebugInfo(buf, m.Debug)

	case Acquire, Release, Shutdown, NvmBackup, AckColdReset, AckShutdown,
		MdmDown, MdmUp, MdmOn, MdmOOS, MdmBusy, MdmFlash, MdmDump,
		MdmNeedReset, MdmColdReset, MdmShutdown:
		// empty payload

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownID, m.ID)
	}

	return buf, nil
}

func decodeBody(id ID, body []byte) (Message, error) {
	m := Message{}

	switch id {
	case Register, RegisterDebug:
		bitmap, rest, err := readUint32(body)
		if err != nil {
			return Message{}, err
		}
		name, rest, err := readString(rest, MaxNameLen)
		if err != nil {
			return Message{}, err
		}
		if len(rest) != 0 {
			return Message{}, ErrTrailingBytes
		}
		m.EventsBitmap = bitmap
		m.Name = name

	case Restart:
		cause, rest, err := readUint32(body)
		if err != nil {
			return Message{}, err
		}
		m.Cause = RestartCause(cause)
		dbg, rest, err := readOptionalDebugInfo(rest)
		if err != nil {
			return Message{}, err
		}
		if len(rest) != 0 {
			return Message{}, ErrTrailingBytes
		}
		m.Debug = dbg

	case NotifyDebug:
		dbg, rest, err := readOptionalDebugInfo(body)
		if err != nil {
			return Message{}, err
		}
		if len(rest) != 0 {
			return Message{}, ErrTrailingBytes
		}
		m.Debug = dbg

	case MdmDbgInfo:
		dbg, rest, err := readDebugInfo(body)
		if err != nil {
			return Message{}, err
		}
		if len(rest) != 0 {
			return Message{}, ErrTrailingBytes
		}
		m.Debug = &dbg

	case Acquire, Release, Shutdown, NvmBackup, AckColdReset, AckShutdown,
		MdmDown, MdmUp, MdmOn, MdmOOS, MdmBusy, MdmFlash, MdmDump,
		MdmNeedReset, MdmColdReset, MdmShutdown:
		if len(body) != 0 {
			return Message{}, ErrTrailingBytes
		}

	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}

	return m, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendDebugInfo(buf []byte, d *DebugInfo) []byte {
	if d == nil {
		return buf
	}
	buf = appendUint32(buf, uint32(d.Type))
	buf = appendUint32(buf, d.APLogSizeMB)
	buf = appendUint32(buf, d.BPLogSizeMB)
	buf = appendUint32(buf, d.BPLogTimeS)
	buf = appendUint32(buf, uint32(len(d.Data)))
	for _, s := range d.Data {
		buf = appendString(buf, s)
	}
	return buf
}

func readUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrFrameTooShort
	}
	return binary.BigEndian.Uint32(buf[:4]), buf[4:], nil
}

func readString(buf []byte, maxLen int) (string, []byte, error) {
	n, rest, err := readUint32(buf)
	if err != nil {
		return "", nil, err
	}
	if int(n) > maxLen {
		return "", nil, ErrStringTooLarge
	}
	if len(rest) < int(n) {
		return "", nil, ErrFrameTooShort
	}
	return string(rest[:n]), rest[n:], nil
}

func readDebugInfo(buf []byte) (DebugInfo, []byte, error) {
	var d DebugInfo

	typ, rest, err := readUint32(buf)
	if err != nil {
		return d, nil, err
	}
	ap, rest, err := readUint32(rest)
	if err != nil {
		return d, nil, err
	}
	bp, rest, err := readUint32(rest)
	if err != nil {
		return d, nil, err
	}
	bpTime, rest, err := readUint32(rest)
	if err != nil {
		return d, nil, err
	}
	nbData, rest, err := readUint32(rest)
	if err != nil {
		return d, nil, err
	}
	if nbData > MaxNbData {
		return d, nil, ErrTooManyStrings
	}

	d.Type = DebugType(typ)
	d.APLogSizeMB = ap
	d.BPLogSizeMB = bp
	d.BPLogTimeS = bpTime
	d.Data = make([]string, 0, nbData)

	for range nbData {
		var s string
		s, rest, err = readString(rest, MaxDataLen)
		if err != nil {
			return d, nil, err
		}
		d.Data = append(d.Data, s)
	}

	return d, rest, nil
}

// readOptionalDebugInfo decodes a DebugInfo only if bytes remain: absence of
// the optional payload is encoded as the total absence of trailing bytes.
func readOptionalDebugInfo(buf []byte) (*DebugInfo, []byte, error) {
	if len(buf) == 0 {
		return nil, buf, nil
	}
	d, rest, err := readDebugInfo(buf)
	if err != nil {
		return nil, nil, err
	}
	return &d, rest, nil
}
