package a2s

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// a2sInfoRequest is the fixed A2S_INFO request payload: a single-packet
// header followed by the null-terminated "Source Engine Query" string.
var a2sInfoRequest = append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x54}, append([]byte("Source Engine Query"), 0x00)...)

const a2sInfoResponseHeader = 0x49 // 'I'

// UDPQuerier implements Querier against the real Source engine A2S_INFO
// protocol. It is the one concrete collaborator behind the Querier
// interface; the protocol itself is a single request/response UDP
// round-trip with no session state, so no per-server connection is kept
// between sweeps.
type UDPQuerier struct {
	timeout time.Duration
}

// NewUDPQuerier constructs a UDPQuerier that gives up on a server after
// timeout.
func NewUDPQuerier(timeout time.Duration) *UDPQuerier {
	return &UDPQuerier{timeout: timeout}
}

func (q *UDPQuerier) Query(ctx context.Context, host string, port int) (models.A2SInfo, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	dialer := net.Dialer{Timeout: q.timeout}
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return models.A2SInfo{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(q.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return models.A2SInfo{}, err
	}

	if _, err := conn.Write(a2sInfoRequest); err != nil {
		return models.A2SInfo{}, fmt.Errorf("write A2S_INFO request: %w", err)
	}

	buf := make([]byte, 1400)
	n, err := conn.Read(buf)
	if err != nil {
		return models.A2SInfo{}, fmt.Errorf("read A2S_INFO response: %w", err)
	}

	return parseInfoResponse(buf[:n])
}

// parseInfoResponse decodes the fixed-prefix, variable-length A2S_INFO
// reply: header, protocol version, name/map/folder/game C-strings, app id,
// then player/max-player counts.
func parseInfoResponse(data []byte) (models.A2SInfo, error) {
	r := bytes.NewReader(data)

	var prefix int32
	if err := binary.Read(r, binary.LittleEndian, &prefix); err != nil || prefix != -1 {
		return models.A2SInfo{}, fmt.Errorf("malformed A2S response header")
	}

	header, err := r.ReadByte()
	if err != nil || header != a2sInfoResponseHeader {
		return models.A2SInfo{}, fmt.Errorf("unexpected A2S response type")
	}

	if _, err := r.ReadByte(); err != nil { // protocol version
		return models.A2SInfo{}, err
	}

	name, err := readCString(r)
	if err != nil {
		return models.A2SInfo{}, err
	}
	mapName, err := readCString(r)
	if err != nil {
		return models.A2SInfo{}, err
	}
	if _, err := readCString(r); err != nil { // folder
		return models.A2SInfo{}, err
	}
	if _, err := readCString(r); err != nil { // game
		return models.A2SInfo{}, err
	}

	// app id (int16), skip
	if _, err := r.Seek(2, 1); err != nil {
		return models.A2SInfo{}, err
	}

	players, err := r.ReadByte()
	if err != nil {
		return models.A2SInfo{}, err
	}
	maxPlayers, err := r.ReadByte()
	if err != nil {
		return models.A2SInfo{}, err
	}

	return models.A2SInfo{
		Name:       name,
		Map:        mapName,
		Players:    int(players),
		MaxPlayers: int(maxPlayers),
	}, nil
}

func readCString(r *bytes.Reader) (string, error) {
	var out []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
}
