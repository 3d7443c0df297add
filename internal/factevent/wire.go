package factevent

import (
	"encoding/binary"
	"fmt"
)

// DecodeErrorKind distinguishes why a ring-buffer frame failed to decode.
// Every kind gets the same treatment in the pump (the frame is dropped and
// counted); the kind selects which per-kind counter in pump.DecodeStats is
// bumped and labels the structured log line an operator sees.
type DecodeErrorKind string

// Decode error kinds.
const (
	DecodeErrShortHeader  DecodeErrorKind = "short_header"
	DecodeErrFieldBounds  DecodeErrorKind = "field_bounds"
	DecodeErrInvalidType  DecodeErrorKind = "invalid_type"
	DecodeErrUnterminated DecodeErrorKind = "unterminated_string"
)

// DecodeError reports a malformed frame.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %s: %s", e.Kind, e.Msg)
}

// wire field widths, computed once so the encoder and decoder can never
// disagree about an offset.
const (
	offTimestamp = 0
	szTimestamp  = 8

	offType = offTimestamp + szTimestamp
	szType  = 4

	offComm = offType + szType
	szComm  = CommLen

	offArgsLen = offComm + szComm
	szArgsLen  = 4

	offArgs = offArgsLen + szArgsLen
	szArgs  = MaxArgsLen

	offExePath = offArgs + szArgs
	szExePath  = PathMax

	offCgroup = offExePath + szExePath
	szCgroup  = PathMax

	offUID = offCgroup + szCgroup
	szUID  = 4

	offGID = offUID + szUID
	szGID  = 4

	offLoginUID = offGID + szGID
	szLoginUID  = 4

	offPID = offLoginUID + szLoginUID
	szPID  = 4

	offLineage     = offPID + szPID
	szLineageEntry = 4 + PathMax
	szLineage      = LineageMax * szLineageEntry

	offLineageLen = offLineage + szLineage
	szLineageLen  = 4

	offInRootMountNS = offLineageLen + szLineageLen
	szInRootMountNS  = 1

	offInodeInode = offInRootMountNS + szInRootMountNS
	szInodeInode  = 4

	offInodeDev = offInodeInode + szInodeInode
	szInodeDev  = 4

	offFilename = offInodeDev + szInodeDev
	szFilename  = PathMax

	offPayload = offFilename + szFilename
	szPayload  = 16 // max(chmod: 2*u16, chown: 4*u32)

	// FrameSize is the fixed size of one wire frame.
	FrameSize = offPayload + szPayload
)

// putCString writes s, NUL-terminated, into buf[:size]. Returns an error
// if s does not fit with room for the terminator — per the path-bounding
// invariant, oversized strings are never silently truncated.
func putCString(buf []byte, s string, size int) error {
	if len(s) > size-1 {
		return fmt.Errorf("value of length %d exceeds field capacity %d", len(s), size-1)
	}
	for i := range buf[:size] {
		buf[i] = 0
	}
	copy(buf, s)
	return nil
}

// readCString reads a NUL-terminated string from a fixed-size field. It is
// an error for the field to contain no NUL within size bytes: a truncated
// buffer cannot be distinguished from a legitimately long value, and the
// project's invariant is to fail rather than guess.
func readCString(buf []byte) (string, error) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return "", &DecodeError{Kind: DecodeErrUnterminated, Msg: "field has no NUL terminator"}
}

// Encode serializes ev into a fixed-size wire frame. It is the inverse of
// Decode and is primarily exercised by tests and by any component that
// needs to synthesize frames (e.g. replay tooling).
func Encode(ev *Event) ([]byte, error) {
	buf := make([]byte, FrameSize)

	binary.LittleEndian.PutUint64(buf[offTimestamp:], ev.Timestamp)
	binary.LittleEndian.PutUint32(buf[offType:], uint32(int32(ev.Type)))

	if err := putCString(buf[offComm:offComm+szComm], ev.Process.Comm, szComm); err != nil {
		return nil, fmt.Errorf("comm: %w", err)
	}

	if len(ev.Process.Args) > szArgs {
		return nil, fmt.Errorf("args: length %d exceeds %d", len(ev.Process.Args), szArgs)
	}
	binary.LittleEndian.PutUint32(buf[offArgsLen:], uint32(len(ev.Process.Args)))
	copy(buf[offArgs:offArgs+szArgs], ev.Process.Args)

	if err := putCString(buf[offExePath:offExePath+szExePath], ev.Process.ExePath, szExePath); err != nil {
		return nil, fmt.Errorf("exe_path: %w", err)
	}
	if err := putCString(buf[offCgroup:offCgroup+szCgroup], ev.Process.MemoryCgroup, szCgroup); err != nil {
		return nil, fmt.Errorf("memory_cgroup: %w", err)
	}

	binary.LittleEndian.PutUint32(buf[offUID:], ev.Process.UID)
	binary.LittleEndian.PutUint32(buf[offGID:], ev.Process.GID)
	binary.LittleEndian.PutUint32(buf[offLoginUID:], ev.Process.LoginUID)
	binary.LittleEndian.PutUint32(buf[offPID:], ev.Process.PID)

	if len(ev.Process.Lineage) > LineageMax {
		return nil, fmt.Errorf("lineage: %d entries exceeds LineageMax=%d", len(ev.Process.Lineage), LineageMax)
	}
	for i, anc := range ev.Process.Lineage {
		entryOff := offLineage + i*szLineageEntry
		binary.LittleEndian.PutUint32(buf[entryOff:], anc.UID)
		if err := putCString(buf[entryOff+4:entryOff+szLineageEntry], anc.ExePath, PathMax); err != nil {
			return nil, fmt.Errorf("lineage[%d].exe_path: %w", i, err)
		}
	}
	binary.LittleEndian.PutUint32(buf[offLineageLen:], uint32(len(ev.Process.Lineage)))

	if ev.Process.InRootMountNS {
		buf[offInRootMountNS] = 1
	}

	binary.LittleEndian.PutUint32(buf[offInodeInode:], ev.Inode.Inode)
	binary.LittleEndian.PutUint32(buf[offInodeDev:], ev.Inode.Dev)

	if err := putCString(buf[offFilename:offFilename+szFilename], ev.Filename, szFilename); err != nil {
		return nil, fmt.Errorf("filename: %w", err)
	}

	switch ev.Type {
	case TypeChmod:
		if ev.Chmod == nil {
			return nil, fmt.Errorf("chmod event missing payload")
		}
		binary.LittleEndian.PutUint16(buf[offPayload:], ev.Chmod.NewMode)
		binary.LittleEndian.PutUint16(buf[offPayload+2:], ev.Chmod.OldMode)
	case TypeChown:
		if ev.Chown == nil {
			return nil, fmt.Errorf("chown event missing payload")
		}
		binary.LittleEndian.PutUint32(buf[offPayload:], ev.Chown.NewUID)
		binary.LittleEndian.PutUint32(buf[offPayload+4:], ev.Chown.NewGID)
		binary.LittleEndian.PutUint32(buf[offPayload+8:], ev.Chown.OldUID)
		binary.LittleEndian.PutUint32(buf[offPayload+12:], ev.Chown.OldGID)
	}

	return buf, nil
}

// Decode parses a raw ring-buffer sample into an Event. Decoding is
// strictly bounds-checked against the frame length: a short frame or a
// length-prefixed field whose declared length exceeds its buffer bound
// yields a *DecodeError rather than a panic or a silently truncated
// result.
func Decode(raw []byte) (*Event, error) {
	if len(raw) < FrameSize {
		return nil, &DecodeError{Kind: DecodeErrShortHeader,
			Msg: fmt.Sprintf("frame length %d shorter than fixed size %d", len(raw), FrameSize)}
	}

	ev := &Event{}
	ev.Timestamp = binary.LittleEndian.Uint64(raw[offTimestamp:])
	ev.Type = EventType(int32(binary.LittleEndian.Uint32(raw[offType:])))

	switch ev.Type {
	case TypeInit, TypeOpen, TypeCreate, TypeUnlink, TypeChmod, TypeChown:
	default:
		return nil, &DecodeError{Kind: DecodeErrInvalidType,
			Msg: fmt.Sprintf("type tag %d not in {-1,0,1,2,3,4}", int32(ev.Type))}
	}

	comm, err := readCString(raw[offComm : offComm+szComm])
	if err != nil {
		return nil, fmt.Errorf("comm: %w", err)
	}

	argsLen := binary.LittleEndian.Uint32(raw[offArgsLen:])
	if argsLen > szArgs {
		return nil, &DecodeError{Kind: DecodeErrFieldBounds,
			Msg: fmt.Sprintf("args_len %d exceeds capacity %d", argsLen, szArgs)}
	}
	var args []byte
	if argsLen > 0 {
		args = make([]byte, argsLen)
		copy(args, raw[offArgs:offArgs+int(argsLen)])
	}

	exePath, err := readCString(raw[offExePath : offExePath+szExePath])
	if err != nil {
		return nil, fmt.Errorf("exe_path: %w", err)
	}
	cgroup, err := readCString(raw[offCgroup : offCgroup+szCgroup])
	if err != nil {
		return nil, fmt.Errorf("memory_cgroup: %w", err)
	}

	uid := binary.LittleEndian.Uint32(raw[offUID:])
	gid := binary.LittleEndian.Uint32(raw[offGID:])
	loginUID := binary.LittleEndian.Uint32(raw[offLoginUID:])
	pid := binary.LittleEndian.Uint32(raw[offPID:])

	lineageLen := binary.LittleEndian.Uint32(raw[offLineageLen:])
	if lineageLen > LineageMax {
		return nil, &DecodeError{Kind: DecodeErrFieldBounds,
			Msg: fmt.Sprintf("lineage_len %d exceeds LineageMax=%d", lineageLen, LineageMax)}
	}
	var lineage []LineageEntry
	if lineageLen > 0 {
		lineage = make([]LineageEntry, 0, lineageLen)
	}
	for i := 0; i < int(lineageLen); i++ {
		entryOff := offLineage + i*szLineageEntry
		ancUID := binary.LittleEndian.Uint32(raw[entryOff:])
		ancExe, err := readCString(raw[entryOff+4 : entryOff+szLineageEntry])
		if err != nil {
			return nil, fmt.Errorf("lineage[%d].exe_path: %w", i, err)
		}
		lineage = append(lineage, LineageEntry{UID: ancUID, ExePath: ancExe})
	}

	inRootNS := raw[offInRootMountNS] != 0

	filename, err := readCString(raw[offFilename : offFilename+szFilename])
	if err != nil {
		return nil, fmt.Errorf("filename: %w", err)
	}

	ev.Process = Process{
		Comm:          comm,
		Args:          args,
		ExePath:       exePath,
		MemoryCgroup:  cgroup,
		UID:           uid,
		GID:           gid,
		LoginUID:      loginUID,
		PID:           pid,
		Lineage:       lineage,
		InRootMountNS: inRootNS,
	}
	ev.Inode = InodeKey{
		Inode: binary.LittleEndian.Uint32(raw[offInodeInode:]),
		Dev:   binary.LittleEndian.Uint32(raw[offInodeDev:]),
	}
	ev.Filename = filename

	switch ev.Type {
	case TypeChmod:
		ev.Chmod = &ChmodPayload{
			NewMode: binary.LittleEndian.Uint16(raw[offPayload:]),
			OldMode: binary.LittleEndian.Uint16(raw[offPayload+2:]),
		}
	case TypeChown:
		ev.Chown = &ChownPayload{
			NewUID: binary.LittleEndian.Uint32(raw[offPayload:]),
			NewGID: binary.LittleEndian.Uint32(raw[offPayload+4:]),
			OldUID: binary.LittleEndian.Uint32(raw[offPayload+8:]),
			OldGID: binary.LittleEndian.Uint32(raw[offPayload+12:]),
		}
	}

	return ev, nil
}
