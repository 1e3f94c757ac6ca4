package fix

import (
	"fmt"
	"strconv"
	"strings"
)

// Execution report tags read back from the venue.
const (
	TagClOrdID   = 11
	TagExecID    = 17
	TagOrderID   = 37
	TagOrdStatus = 39
	TagText      = 58
)

// Parse decodes a tag=value byte stream into a Message. Header and trailer
// fields (BeginString, BodyLength, CheckSum, comp IDs, SendingTime) are
// consumed but not retained; the checksum is not re-verified here.
func Parse(data []byte) (*Message, error) {
	raw := strings.TrimSuffix(string(data), soh)
	if raw == "" {
		return nil, fmt.Errorf("empty FIX message")
	}

	msg := &Message{}
	for _, part := range strings.Split(raw, soh) {
		idx := strings.IndexByte(part, '=')
		if idx <= 0 {
			return nil, fmt.Errorf("malformed FIX field %q", part)
		}
		tag, err := strconv.Atoi(part[:idx])
		if err != nil {
			return nil, fmt.Errorf("malformed FIX tag %q: %w", part[:idx], err)
		}
		value := part[idx+1:]

		switch tag {
		case tagBeginString, tagBodyLength, tagCheckSum,
			tagSenderCompID, tagTargetCompID, tagSendingTime:
			// session plumbing
		case tagMsgType:
			msg.MsgType = value
		default:
			msg.Set(tag, value)
		}
	}

	if msg.MsgType == "" {
		return nil, fmt.Errorf("FIX message missing MsgType(35)")
	}
	return msg, nil
}
