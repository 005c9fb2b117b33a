package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"railhaul/internal/domain"
)

type request struct {
	action Action
	body   []byte
}

type handler func(req request) (Result, []byte)

// fakeServer answers frames on the server end of a net.Pipe.
type fakeServer struct {
	mu       sync.Mutex
	requests []request
}

func (f *fakeServer) seen() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]request, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeServer) serve(conn net.Conn, h handler) {
	defer conn.Close()
	for {
		code, body, err := readFrame(conn)
		if err != nil {
			return
		}
		req := request{action: Action(code), body: body}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		result, resp := h(req)
		if err := writeFrame(conn, uint32(result), resp); err != nil {
			return
		}
	}
}

func newPipeClient(t *testing.T, h handler) (*Client, *fakeServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	srv := &fakeServer{}
	go srv.serve(serverConn, h)
	c := NewClient(clientConn)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

const staticLayer = `{"idx":1,"name":"map02","points":[{"idx":1,"post_idx":1},{"idx":2,"post_idx":null}],
"lines":[{"idx":10,"points":[1,2],"length":3}]}`

const dynamicLayer = `{"posts":[{"idx":1,"type":1,"name":"home","point_idx":1,"population":3,"armor":40,"level":1,"next_level_price":100}],
"trains":[{"idx":7,"line_idx":10,"position":1,"speed":1,"goods":0,"goods_capacity":40,"player_idx":"p1","level":1,"next_level_price":40}]}`

func gameHandler(req request) (Result, []byte) {
	switch req.action {
	case ActionLogin:
		return ResultOkey, []byte(`{"idx":"p1","name":"alice","rating":0,"home":{"idx":1,"post_idx":1}}`)
	case ActionMap:
		var m mapRequest
		_ = json.Unmarshal(req.body, &m)
		switch m.Layer {
		case LayerStatic:
			return ResultOkey, []byte(staticLayer)
		case LayerDynamic:
			return ResultOkey, []byte(dynamicLayer)
		case LayerCoordinates:
			return ResultOkey, []byte(`{"coordinates":[{"idx":1,"x":5,"y":6}],"size":[100,80]}`)
		}
		return ResultResourceNotFound, []byte(`{"error":"no such layer"}`)
	case ActionMove:
		var mv domain.Move
		_ = json.Unmarshal(req.body, &mv)
		if mv.TrainID == 99 {
			return ResultResourceNotFound, []byte(`{"error":"train not found"}`)
		}
		return ResultOkey, nil
	case ActionTurn, ActionLogout:
		return ResultOkey, nil
	case ActionUpgrade:
		return ResultAccessDenied, []byte(`{"error":"not enough armor"}`)
	}
	return ResultBadCommand, nil
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, uint32(ActionMove), []byte(`{"speed":1}`)))
	assert.Equal(t, []byte{3, 0, 0, 0, 11, 0, 0, 0}, buf.Bytes()[:8])

	code, body, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(ActionMove), code)
	assert.JSONEq(t, `{"speed":1}`, string(body))

	_, _, err = readFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversizedBody(t *testing.T) {
	header := []byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}
	_, _, err := readFrame(bytes.NewReader(header))
	assert.ErrorIs(t, err, errFrameTooLarge)
}

func TestLoginSendsCredentials(t *testing.T) {
	c, srv := newPipeClient(t, gameHandler)

	player, err := c.Login(context.Background(), Credentials{
		Name: "alice", Password: "pw", Game: "g1", NumTurns: 500, NumPlayers: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Player{ID: "p1", Name: "alice", HomePoint: 1, HomePost: 1}, player)
	assert.Equal(t, player, c.Player())

	reqs := srv.seen()
	require.Len(t, reqs, 1)
	assert.Equal(t, ActionLogin, reqs[0].action)
	assert.JSONEq(t, `{"name":"alice","password":"pw","game":"g1","num_turns":500,"num_players":2}`, string(reqs[0].body))
}

func TestMapLayersDecode(t *testing.T) {
	c, _ := newPipeClient(t, gameHandler)
	ctx := context.Background()

	static, err := c.StaticMap(ctx)
	require.NoError(t, err)
	require.Len(t, static.Points, 2)
	require.NotNil(t, static.Points[0].PostID)
	assert.Nil(t, static.Points[1].PostID)
	assert.Equal(t, [2]int{1, 2}, static.Lines[0].Points)

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Trains, 1)
	assert.Equal(t, "p1", snap.Trains[0].Owner)
	assert.Equal(t, domain.PostKindTown, snap.Posts[0].Kind)
	assert.Equal(t, 3.0, snap.Posts[0].Population)

	coords, err := c.Coordinates(ctx)
	require.NoError(t, err)
	assert.Equal(t, [2]float64{100, 80}, coords.Size)
	assert.Equal(t, 5.0, coords.Points[0].X)
}

func TestNonZeroResultIsRemoteRejection(t *testing.T) {
	c, _ := newPipeClient(t, gameHandler)

	err := c.Upgrade(context.Background(), domain.Upgrade{Posts: []int{1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteRejected)

	var rerr *ResultError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ResultAccessDenied, rerr.Code)
	assert.Equal(t, "not enough armor", rerr.Message)
	assert.Equal(t, "UPGRADE: ACCESS_DENIED: not enough armor", rerr.Error())
}

func TestMalformedDynamicLayer(t *testing.T) {
	c, _ := newPipeClient(t, func(req request) (Result, []byte) {
		return ResultOkey, []byte(`{"trains":"nope"}`)
	})

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrMalformedSnapshot)
	assert.False(t, errors.Is(err, domain.ErrRemoteRejected))
}

func TestUpgradeSendsEmptyLists(t *testing.T) {
	c, srv := newPipeClient(t, func(req request) (Result, []byte) { return ResultOkey, nil })

	require.NoError(t, c.Upgrade(context.Background(), domain.Upgrade{Trains: []int{7}}))
	reqs := srv.seen()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"posts":[],"trains":[7]}`, string(reqs[0].body))
}

func TestCallHonoursCanceledContext(t *testing.T) {
	c, srv := newPipeClient(t, gameHandler)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Turn(ctx), context.Canceled)
	assert.Empty(t, srv.seen())
}

func TestCallTimesOutOnSilentServer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	go func() {
		_, _, _ = readFrame(serverConn)
	}()
	c := NewClient(clientConn)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Turn(ctx)
	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Timeout())
}
