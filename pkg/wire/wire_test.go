// SPDX-License-Identifier: BSD-3-Clause

package wire

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func debugWithStrings(n int) *DebugInfo {
	d := &DebugInfo{
		Type:        DebugTypeSelfReset,
		APLogSizeMB: 12,
		BPLogSizeMB: 34,
		BPLogTimeS:  56,
	}
	for i := 0; i < n; i++ {
		d.Data = append(d.Data, strings.Repeat("x", i+1))
	}
	return d
}

// roundTrip asserts decode(encode(m)) == m, invariant I5.
func roundTrip(t *testing.T, m Message) {
	t.Helper()

	buf, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.ID != m.ID {
		t.Fatalf("ID = %v, want %v", got.ID, m.ID)
	}
	if got.EventsBitmap != m.EventsBitmap {
		t.Fatalf("EventsBitmap = %d, want %d", got.EventsBitmap, m.EventsBitmap)
	}
	if got.Name != m.Name {
		t.Fatalf("Name = %q, want %q", got.Name, m.Name)
	}
	if got.Cause != m.Cause {
		t.Fatalf("Cause = %v, want %v", got.Cause, m.Cause)
	}
	if (got.Debug == nil) != (m.Debug == nil) {
		t.Fatalf("Debug presence mismatch: got %v, want %v", got.Debug, m.Debug)
	}
	if got.Debug != nil {
		if !equalDebug(*got.Debug, *m.Debug) {
			t.Fatalf("Debug = %+v, want %+v", *got.Debug, *m.Debug)
		}
	}

	// EncodeTo must produce byte-identical frames to Encode.
	var w bytes.Buffer
	if err := EncodeTo(&w, m); err != nil {
		t.Fatalf("EncodeTo: %v", err)
	}
	if !bytes.Equal(w.Bytes(), buf) {
		t.Fatalf("EncodeTo produced different bytes than Encode")
	}
}

func equalDebug(a, b DebugInfo) bool {
	if a.Type != b.Type || a.APLogSizeMB != b.APLogSizeMB ||
		a.BPLogSizeMB != b.BPLogSizeMB || a.BPLogTimeS != b.BPLogTimeS {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

func TestRoundTripEmptyPayloadKinds(t *testing.T) {
	for _, id := range []ID{
		Acquire, Release, Shutdown, NvmBackup, AckColdReset, AckShutdown,
		MdmDown, MdmUp, MdmOn, MdmOOS, MdmBusy, MdmFlash, MdmDump,
		MdmNeedReset, MdmColdReset, MdmShutdown,
	} {
		id := id
		t.Run(id.String(), func(t *testing.T) {
			roundTrip(t, Message{ID: id})
		})
	}
}

func TestRoundTripRegister(t *testing.T) {
	for _, id := range []ID{Register, RegisterDebug} {
		roundTrip(t, Message{ID: id, EventsBitmap: 0xDEADBEEF, Name: "mdmcli"})
		roundTrip(t, Message{ID: id, EventsBitmap: 0, Name: ""})
	}
}

func TestRoundTripRestart(t *testing.T) {
	roundTrip(t, Message{ID: Restart, Cause: RestartCauseModemError})
	for n := 0; n <= MaxNbData; n++ {
		roundTrip(t, Message{
			ID:    Restart,
			Cause: RestartCauseClientRequest,
			Debug: debugWithStrings(n),
		})
	}
}

func TestRoundTripNotifyDebug(t *testing.T) {
	roundTrip(t, Message{ID: NotifyDebug})
	for n := 0; n <= MaxNbData; n++ {
		roundTrip(t, Message{ID: NotifyDebug, Debug: debugWithStrings(n)})
	}
}

func TestRoundTripMdmDbgInfo(t *testing.T) {
	for n := 0; n <= MaxNbData; n++ {
		roundTrip(t, Message{ID: MdmDbgInfo, Debug: debugWithStrings(n)})
	}
}

func TestMdmDbgInfoRequiresDebug(t *testing.T) {
	_, err := Encode(Message{ID: MdmDbgInfo})
	if err == nil {
		t.Fatal("Encode: want error for MDM_DBG_INFO without debug payload, got nil")
	}
}

func TestEncodeRejectsTooManyStrings(t *testing.T) {
	d := debugWithStrings(MaxNbData + 1)
	_, err := Encode(Message{ID: NotifyDebug, Debug: d})
	if !errors.Is(err, ErrTooManyStrings) {
		t.Fatalf("err = %v, want ErrTooManyStrings", err)
	}
}

func TestEncodeRejectsOversizedString(t *testing.T) {
	d := &DebugInfo{Data: []string{strings.Repeat("a", MaxDataLen+1)}}
	_, err := Encode(Message{ID: NotifyDebug, Debug: d})
	if !errors.Is(err, ErrStringTooLarge) {
		t.Fatalf("err = %v, want ErrStringTooLarge", err)
	}
}

func TestEncodeRejectsOversizedName(t *testing.T) {
	_, err := Encode(Message{ID: Register, Name: strings.Repeat("a", MaxNameLen+1)})
	if !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("err = %v, want ErrNameTooLong", err)
	}
}

func TestDecodeShortRead(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0, 0, 0, 1}))
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
}

func TestDecodeFrameTooShort(t *testing.T) {
	buf := make([]byte, 8)
	buf[3] = byte(Acquire)
	buf[7] = 4 // total_length smaller than header
	_, err := Decode(bytes.NewReader(buf))
	if !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("err = %v, want ErrFrameTooShort", err)
	}
}

func TestDecodeUnknownID(t *testing.T) {
	buf := make([]byte, 8)
	buf[3] = 0xFF
	buf[7] = 8
	_, err := Decode(bytes.NewReader(buf))
	if !errors.Is(err, ErrUnknownID) {
		t.Fatalf("err = %v, want ErrUnknownID", err)
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	buf, err := Encode(Message{ID: Acquire})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf = append(buf, 0xAA)
	buf[7] = byte(len(buf)) // lie about the length so the decoder reads the extra byte

	_, err = Decode(bytes.NewReader(buf))
	if err == nil {
		t.Fatal("Decode: want error for trailing bytes, got nil")
	}
}

func TestDecodeFrameTooLarge(t *testing.T) {
	var hdr [8]byte
	hdr[3] = byte(Acquire)
	big := uint32(MaxFrameLen + 1)
	hdr[4] = byte(big >> 24)
	hdr[5] = byte(big >> 16)
	hdr[6] = byte(big >> 8)
	hdr[7] = byte(big)

	_, err := Decode(bytes.NewReader(hdr[:]))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}
