package decode

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
)

// singleCellBOC serializes a one-cell bag-of-cells (generic b5ee9c72
// framing, 1-byte ref and offset sizes) holding the given cell data.
func singleCellBOC(t *testing.T, d2 byte, data []byte) string {
	t.Helper()

	buf := []byte{0xB5, 0xEE, 0x9C, 0x72}
	buf = append(buf,
		0x01,                // no idx/crc, ref size 1
		0x01,                // offset size 1
		0x01,                // cell count
		0x01,                // root count
		0x00,                // absent
		byte(2+len(data)),   // total cell bytes
		0x00,                // root index
		0x00,                // d1: ordinary cell, no refs
		d2,                  // d2: data descriptor
	)
	buf = append(buf, data...)
	return base64.StdEncoding.EncodeToString(buf)
}

func opcodeBody(t *testing.T, op uint32) string {
	t.Helper()
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, op)
	return singleCellBOC(t, 8, data) // 4 aligned bytes -> d2 = 8
}

func TestOperationType_TextComment(t *testing.T) {
	assert.Equal(t, model.OpTextComment, OperationType("msg.dataText", ""))
	assert.Equal(t, model.OpTextComment, OperationType("msg.dataText", "aGk="))
}

func TestOperationType_Transfer(t *testing.T) {
	assert.Equal(t, model.OpTransfer, OperationType("msg.dataRaw", opcodeBody(t, 0)))
}

func TestOperationType_OpcodeSurfacesAsHex(t *testing.T) {
	assert.Equal(t, "0x178d4519", OperationType("msg.dataRaw", opcodeBody(t, 0x178d4519)))
	assert.Equal(t, "0xf8a7ea5", OperationType("msg.dataRaw", opcodeBody(t, 0x0F8A7EA5)))
}

func TestOperationType_CompletionTaggedCell(t *testing.T) {
	// 4 opcode bytes plus a completion-tag byte: d2 = 9 (odd), still
	// carries 32 readable bits.
	data := []byte{0x17, 0x8d, 0x45, 0x19, 0x80}
	assert.Equal(t, "0x178d4519", OperationType("msg.dataRaw", singleCellBOC(t, 9, data)))
}

func TestOperationType_Sentinels(t *testing.T) {
	assert.Equal(t, model.OpEmptyBody, OperationType("msg.dataRaw", ""))
	assert.Equal(t, model.OpUnknown, OperationType("", ""))
	assert.Equal(t, model.OpUnknown, OperationType("msg.dataDecryptedText", "xx"))

	assert.Equal(t, model.OpInvalidBOC, OperationType("msg.dataRaw", "!!not-base64!!"))
	assert.Equal(t, model.OpInvalidBOC, OperationType("msg.dataRaw", base64.StdEncoding.EncodeToString([]byte("junk"))))

	// Root cell with fewer than 32 bits of data.
	short := singleCellBOC(t, 6, []byte{0x01, 0x02, 0x03})
	assert.Equal(t, model.OpInvalidBOC, OperationType("msg.dataRaw", short))
}

func TestOperationType_Totality(t *testing.T) {
	allowed := map[string]bool{
		model.OpTextComment: true,
		model.OpTransfer:    true,
		model.OpEmptyBody:   true,
		model.OpInvalidBOC:  true,
		model.OpUnknown:     true,
	}

	inputs := []struct{ dataType, body string }{
		{"msg.dataRaw", "AAAA"},
		{"msg.dataRaw", base64.StdEncoding.EncodeToString([]byte{0xB5, 0xEE, 0x9C, 0x72})},
		{"msg.dataRaw", base64.StdEncoding.EncodeToString([]byte{0xB5, 0xEE, 0x9C, 0x72, 0xFF, 0xFF})},
		{"msg.dataRaw", singleCellBOC(t, 200, []byte{})},
		{"weird", "whatever"},
		{"msg.dataText", "whatever"},
	}

	for _, in := range inputs {
		got := OperationType(in.dataType, in.body)
		if !allowed[got] {
			// The only other legal shape is a hex opcode.
			assert.Regexp(t, `^0x[0-9a-f]+$`, got, "input %+v", in)
		}
	}
}

func TestIsJettonTransfer(t *testing.T) {
	body := make([]byte, 8)
	binary.BigEndian.PutUint32(body, JettonTransferOpcode)

	assert.True(t, IsJettonTransfer(base64.StdEncoding.EncodeToString(body)))

	binary.BigEndian.PutUint32(body, 0x12345678)
	assert.False(t, IsJettonTransfer(base64.StdEncoding.EncodeToString(body)))

	assert.False(t, IsJettonTransfer(""))
	assert.False(t, IsJettonTransfer("!!!"))
	assert.False(t, IsJettonTransfer(base64.StdEncoding.EncodeToString([]byte{0x0F, 0x8A})))
}

func TestRootOpcode_RejectsBadMagic(t *testing.T) {
	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x01, 0x01, 0x01, 0x00, 0x06, 0x00, 0x00, 0x08}
	_, err := rootOpcode(base64.StdEncoding.EncodeToString(raw))
	require.Error(t, err)
}
