package realtime

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// engine.io v4 / socket.io framing, websocket transport only.

type enginePacketType byte

const (
	engineOpen    enginePacketType = '0'
	engineClose   enginePacketType = '1'
	enginePing    enginePacketType = '2'
	enginePong    enginePacketType = '3'
	engineMessage enginePacketType = '4'
)

type socketPacketType byte

const (
	socketConnect      socketPacketType = '0'
	socketDisconnect   socketPacketType = '1'
	socketEvent        socketPacketType = '2'
	socketAck          socketPacketType = '3'
	socketConnectError socketPacketType = '4'
)

type openPacket struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int64  `json:"maxPayload"`
}

func parseOpenPacket(msg string) (openPacket, error) {
	if msg == "" || enginePacketType(msg[0]) != engineOpen {
		return openPacket{}, errors.New("not an open packet")
	}
	var pkt openPacket
	if err := json.Unmarshal([]byte(msg[1:]), &pkt); err != nil {
		return openPacket{}, err
	}
	if pkt.SID == "" {
		return openPacket{}, errors.New("open packet missing sid")
	}
	return pkt, nil
}

func parseOptionalNamespace(s string) (namespace string, rest string) {
	if !strings.HasPrefix(s, "/") {
		return "/", s
	}
	comma := strings.IndexByte(s, ',')
	if comma == -1 {
		return "/", s
	}
	return s[:comma], s[comma+1:]
}

func parseOptionalIDPrefix(s string) (id *int, rest string) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		i++
	}
	if i == 0 {
		return nil, s
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return nil, s
	}
	return &v, s[i:]
}

type eventPacket struct {
	Namespace string
	ID        *int
	Event     string
	Args      []json.RawMessage
}

func parseEventPacket(payload string) (eventPacket, error) {
	if payload == "" {
		return eventPacket{}, errors.New("empty payload")
	}
	if payload[0] != byte(socketEvent) {
		return eventPacket{}, errors.New("not an event packet")
	}

	ns, rest := parseOptionalNamespace(payload[1:])
	id, rest := parseOptionalIDPrefix(rest)
	if !strings.HasPrefix(rest, "[") {
		return eventPacket{}, errors.New("invalid event payload")
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil {
		return eventPacket{}, err
	}
	if len(arr) == 0 {
		return eventPacket{}, errors.New("missing event name")
	}
	var eventName string
	if err := json.Unmarshal(arr[0], &eventName); err != nil {
		return eventPacket{}, errors.New("invalid event name")
	}

	return eventPacket{Namespace: ns, ID: id, Event: eventName, Args: arr[1:]}, nil
}

func buildEventPacket(namespace string, id *int, event string, args ...any) (string, error) {
	arr := make([]any, 0, 1+len(args))
	arr = append(arr, event)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketEvent))
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	if id != nil {
		b.WriteString(strconv.Itoa(*id))
	}
	b.Write(data)
	return b.String(), nil
}

// buildConnectPacket carries the auth object of the socket.io handshake.
func buildConnectPacket(namespace string, auth any) (string, error) {
	data, err := json.Marshal(auth)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketConnect))
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	b.Write(data)
	return b.String(), nil
}

// parseConnectReply classifies the server's answer to a connect packet:
// an ack carrying the session id, or a connect error with a message.
func parseConnectReply(payload string) (sid string, err error) {
	if payload == "" {
		return "", errors.New("empty connect reply")
	}

	switch socketPacketType(payload[0]) {
	case socketConnect:
		_, rest := parseOptionalNamespace(payload[1:])
		var body struct {
			SID string `json:"sid"`
		}
		if rest != "" {
			if err := json.Unmarshal([]byte(rest), &body); err != nil {
				return "", err
			}
		}
		return body.SID, nil
	case socketConnectError:
		_, rest := parseOptionalNamespace(payload[1:])
		var body struct {
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(rest), &body) == nil && body.Message != "" {
			return "", errors.New("connect refused: " + body.Message)
		}
		return "", errors.New("connect refused")
	default:
		return "", errors.New("unexpected connect reply")
	}
}
