package transcript

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// RenderMessage renders one message as a transcript block. Rendering is
// per-message so that the rendering of a slice is the concatenation of the
// renderings of its parts.
func RenderMessage(m Message) string {
	var sb strings.Builder
	switch m.Role {
	case RoleUser:
		sb.WriteString("User: ")
	case RoleAssistant:
		sb.WriteString("Assistant: ")
	case RoleSystem:
		sb.WriteString("System: ")
	default:
		sb.WriteString(string(m.Role) + ": ")
	}
	sb.WriteString(m.Text)
	sb.WriteString("\n\n")
	return sb.String()
}

// Render renders messages as a User:/Assistant: transcript string.
func Render(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(RenderMessage(m))
	}
	return sb.String()
}

// Fingerprint hashes the ordered role-tagged message text. Whitespace runs
// collapse to a single space; case is preserved. Every field is length
// prefixed, so no text can mimic a message boundary.
func Fingerprint(msgs []Message) string {
	h := sha256.New()
	var buf []byte
	for _, m := range msgs {
		for _, field := range []string{string(m.Role), collapseSpace(m.Text)} {
			buf = binary.AppendUvarint(buf[:0], uint64(len(field)))
			h.Write(buf)
			h.Write([]byte(field))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
