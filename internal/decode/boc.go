package decode

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
)

// TON message payload encodings as reported by the transaction API.
const (
	msgDataText = "msg.dataText"
	msgDataRaw  = "msg.dataRaw"
)

// JettonTransferOpcode is the TEP-74 jetton transfer operation tag.
const JettonTransferOpcode uint32 = 0x0F8A7EA5

const bocMagic = 0xB5EE9C72

// OperationType classifies a TON incoming message by its payload
// encoding tag and, for raw bodies, the leading 32-bit opcode of the root
// cell. It is total: every input maps to a sentinel or a "0x…" hex
// opcode string, and it never panics.
func OperationType(dataType, bodyB64 string) string {
	switch dataType {
	case msgDataText:
		return model.OpTextComment
	case msgDataRaw:
		if bodyB64 == "" {
			return model.OpEmptyBody
		}
		op, err := rootOpcode(bodyB64)
		if err != nil {
			return model.OpInvalidBOC
		}
		if op == 0 {
			return model.OpTransfer
		}
		return fmt.Sprintf("0x%x", op)
	default:
		return model.OpUnknown
	}
}

// IsJettonTransfer reports whether a raw outgoing-message body starts with
// the jetton transfer opcode. Unlike OperationType it does not parse the
// cell envelope: the body here is the bare payload, so the opcode sits in
// the first four bytes. Any decode failure yields false.
func IsJettonTransfer(bodyB64 string) bool {
	data, err := base64.StdEncoding.DecodeString(bodyB64)
	if err != nil || len(data) < 4 {
		return false
	}
	return binary.BigEndian.Uint32(data[:4]) == JettonTransferOpcode
}

// rootOpcode base64-decodes a serialized bag-of-cells and reads the first
// 32 bits of the root cell's data.
func rootOpcode(bodyB64 string) (uint32, error) {
	raw, err := base64.StdEncoding.DecodeString(bodyB64)
	if err != nil {
		return 0, fmt.Errorf("body base64: %w", err)
	}
	data, bitLen, err := rootCellData(raw)
	if err != nil {
		return 0, err
	}
	if bitLen < 32 {
		return 0, fmt.Errorf("root cell has %d bits, need 32", bitLen)
	}
	return binary.BigEndian.Uint32(data[:4]), nil
}

// rootCellData walks a serialized BOC far enough to return the root
// cell's data bytes and exact bit length. Only the generic b5ee9c72
// framing is supported; exotic cells and index sections are tolerated but
// their contents are not interpreted.
func rootCellData(raw []byte) ([]byte, int, error) {
	r := &byteReader{buf: raw}

	magic, err := r.readUint(4)
	if err != nil {
		return nil, 0, err
	}
	if magic != bocMagic {
		return nil, 0, fmt.Errorf("bad boc magic %#x", magic)
	}

	flags, err := r.readByte()
	if err != nil {
		return nil, 0, err
	}
	hasIdx := flags&0x80 != 0
	hasCRC := flags&0x40 != 0
	refByteSize := int(flags & 0x07)
	if refByteSize == 0 || refByteSize > 4 {
		return nil, 0, fmt.Errorf("bad ref size %d", refByteSize)
	}

	offByteSize, err := r.readByte()
	if err != nil {
		return nil, 0, err
	}
	if offByteSize == 0 || offByteSize > 8 {
		return nil, 0, fmt.Errorf("bad offset size %d", offByteSize)
	}

	cellCount, err := r.readUint(refByteSize)
	if err != nil {
		return nil, 0, err
	}
	rootCount, err := r.readUint(refByteSize)
	if err != nil {
		return nil, 0, err
	}
	if rootCount < 1 {
		return nil, 0, fmt.Errorf("boc has no roots")
	}
	if _, err := r.readUint(refByteSize); err != nil { // absent cells
		return nil, 0, err
	}
	totalCellBytes, err := r.readUint(int(offByteSize))
	if err != nil {
		return nil, 0, err
	}

	rootIdx, err := r.readUint(refByteSize)
	if err != nil {
		return nil, 0, err
	}
	// Remaining root indexes, if any.
	for i := uint64(1); i < rootCount; i++ {
		if _, err := r.readUint(refByteSize); err != nil {
			return nil, 0, err
		}
	}
	if hasIdx {
		if err := r.skip(int(cellCount) * int(offByteSize)); err != nil {
			return nil, 0, err
		}
	}
	_ = hasCRC // trailing checksum is not verified
	_ = totalCellBytes

	if rootIdx >= cellCount {
		return nil, 0, fmt.Errorf("root index %d out of range", rootIdx)
	}

	// Cells are serialized sequentially; walk them until the root.
	for i := uint64(0); i < cellCount; i++ {
		d1, err := r.readByte()
		if err != nil {
			return nil, 0, err
		}
		d2, err := r.readByte()
		if err != nil {
			return nil, 0, err
		}
		refCount := int(d1 & 0x07)
		if refCount > 4 {
			return nil, 0, fmt.Errorf("cell %d has %d refs", i, refCount)
		}

		dataLen := int(d2+1) >> 1
		data, err := r.readBytes(dataLen)
		if err != nil {
			return nil, 0, err
		}
		if err := r.skip(refCount * refByteSize); err != nil {
			return nil, 0, err
		}

		if i == rootIdx {
			return data, cellBitLength(data, d2), nil
		}
	}
	return nil, 0, fmt.Errorf("root cell not found")
}

// cellBitLength derives the exact bit count from the d2 descriptor. An
// odd d2 means the last byte carries a completion tag: a 1 bit followed
// by zero padding.
func cellBitLength(data []byte, d2 byte) int {
	if d2&1 == 0 {
		return len(data) * 8
	}
	if len(data) == 0 {
		return 0
	}
	last := data[len(data)-1]
	if last == 0 {
		// Malformed padding; treat the trailing byte as empty.
		return (len(data) - 1) * 8
	}
	return len(data)*8 - bits.TrailingZeros8(last) - 1
}

type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("boc truncated at byte %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("boc truncated: need %d bytes at %d", n, r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) readUint(n int) (uint64, error) {
	b, err := r.readBytes(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

func (r *byteReader) skip(n int) error {
	_, err := r.readBytes(n)
	return err
}
