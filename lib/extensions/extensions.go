package extensions

import (
	"bufio"
	"bytes"
	"errors"

	"example.com/peerwire/lib/logger"

	"github.com/jackpal/bencode-go"
)

var l = logger.Named("extensions")

// SendMsgFn sends an already-assembled payload as the given wire command.
type SendMsgFn func(msg []byte, cmd byte)

// ExtHandler speaks the BEP 10 extended-handshake corner of the wire
// protocol. We advertise no extensions of our own; the value of the
// handshake is learning what the remote runs, surfaced via OnHandshake.
type ExtHandler interface {
	Init()
	HandleCommand(msgID byte, msgVal []byte) error
	PeerClient() string
}

type extHandler struct {
	sendMsgFn   SendMsgFn
	onHandshake func(client string)

	peerExtendedInfo map[string]interface{}
	peerClient       string
}

var _ ExtHandler = &extHandler{}

func NewExtHandler(sendMsgFn SendMsgFn, onHandshake func(client string)) ExtHandler {
	return &extHandler{
		sendMsgFn:   sendMsgFn,
		onHandshake: onHandshake,
	}
}

// Init sends our side of the extended handshake.
func (h *extHandler) Init() {
	ourInfo := map[string]interface{}{
		"m": map[string]interface{}{},
		"v": "peerwire/0.1",
	}

	var bbuf bytes.Buffer
	w := bufio.NewWriter(&bbuf)
	if err := bencode.Marshal(w, ourInfo); err != nil {
		l.Sugar().Warnw("marshal extended handshake", "err", err)
		return
	}
	w.Flush()

	b := bbuf.Bytes()
	buf := make([]byte, len(b)+1)
	buf[0] = 0x00 // extended message id 0 = handshake
	copy(buf[1:], b)

	h.sendMsgFn(buf, 20)
}

func (h *extHandler) HandleCommand(msgID byte, msgVal []byte) error {
	switch msgID {
	case 0:
		data, err := bencode.Decode(bufio.NewReader(bytes.NewBuffer(msgVal)))
		if err != nil {
			return errors.New("undecodable extended handshake")
		}
		dataMap, ok := data.(map[string]interface{})
		if !ok {
			return errors.New("extended handshake is not a dict")
		}
		h.peerExtendedInfo = dataMap
		if v, ok := dataMap["v"].(string); ok {
			h.peerClient = v
		}
		if h.onHandshake != nil {
			h.onHandshake(h.peerClient)
		}
	default:
		// We advertised no extensions, so whatever this is, we did not
		// ask for it. BEP 10 says ignore, not disconnect.
		l.Sugar().Debugw("ignoring extension message", "id", msgID)
	}
	return nil
}

func (h *extHandler) PeerClient() string {
	return h.peerClient
}
