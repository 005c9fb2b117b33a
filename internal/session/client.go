package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"railhaul/internal/domain"
)

// Credentials identify a player in a game. Helper connections reuse them.
type Credentials struct {
	Name       string
	Password   string
	Game       string
	NumTurns   int
	NumPlayers int
}

type loginRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password,omitempty"`
	Game       string `json:"game,omitempty"`
	NumTurns   int    `json:"num_turns,omitempty"`
	NumPlayers int    `json:"num_players,omitempty"`
}

type playerResponse struct {
	ID     string `json:"idx"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
	Home   struct {
		ID     int `json:"idx"`
		PostID int `json:"post_idx"`
	} `json:"home"`
}

type mapRequest struct {
	Layer int `json:"layer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client is one logged-in connection. Requests are serialised; the
// protocol allows a single outstanding request per connection.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	mu     sync.Mutex
	player domain.Player
}

// Dial opens a TCP connection to addr. A zero timeout uses 10s.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Player returns the identity captured at login.
func (c *Client) Player() domain.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player
}

func (c *Client) Login(ctx context.Context, cred Credentials) (domain.Player, error) {
	var resp playerResponse
	err := c.call(ctx, ActionLogin, loginRequest{
		Name:       cred.Name,
		Password:   cred.Password,
		Game:       cred.Game,
		NumTurns:   cred.NumTurns,
		NumPlayers: cred.NumPlayers,
	}, &resp)
	if err != nil {
		return domain.Player{}, err
	}
	player := resp.player()
	c.mu.Lock()
	c.player = player
	c.mu.Unlock()
	return player, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, ActionLogout, nil, nil)
}

// PlayerInfo re-reads the player document.
func (c *Client) PlayerInfo(ctx context.Context) (domain.Player, error) {
	var resp playerResponse
	if err := c.call(ctx, ActionPlayer, nil, &resp); err != nil {
		return domain.Player{}, err
	}
	return resp.player(), nil
}

func (c *Client) StaticMap(ctx context.Context) (domain.StaticMap, error) {
	var m domain.StaticMap
	if err := c.layer(ctx, LayerStatic, &m); err != nil {
		return domain.StaticMap{}, err
	}
	return m, nil
}

func (c *Client) Coordinates(ctx context.Context) (domain.Coordinates, error) {
	var coords domain.Coordinates
	if err := c.layer(ctx, LayerCoordinates, &coords); err != nil {
		return domain.Coordinates{}, err
	}
	return coords, nil
}

// Snapshot fetches the dynamic layer.
func (c *Client) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := c.layer(ctx, LayerDynamic, &snap); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) Move(ctx context.Context, mv domain.Move) error {
	return c.call(ctx, ActionMove, mv, nil)
}

func (c *Client) Upgrade(ctx context.Context, u domain.Upgrade) error {
	if u.Posts == nil {
		u.Posts = []int{}
	}
	if u.Trains == nil {
		u.Trains = []int{}
	}
	return c.call(ctx, ActionUpgrade, u, nil)
}

// Turn ends the current turn. The server answers once the next game tick
// starts.
func (c *Client) Turn(ctx context.Context) error {
	return c.call(ctx, ActionTurn, nil, nil)
}

func (c *Client) layer(ctx context.Context, layer int, out any) error {
	err := c.call(ctx, ActionMap, mapRequest{Layer: layer}, out)
	if err != nil {
		if _, ok := err.(*decodeError); ok {
			return fmt.Errorf("%w: layer %d: %v", domain.ErrMalformedSnapshot, layer, err)
		}
		return err
	}
	return nil
}

type decodeError struct {
	action Action
	err    error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.action, e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}

// call sends one request and waits for its response. The context deadline
// is applied to the socket and cancellation interrupts a pending read.
func (c *Client) call(ctx context.Context, action Action, req any, out any) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer func() {
		if !stop() && errors.Is(ctx.Err(), context.Canceled) && err != nil {
			err = fmt.Errorf("%s: %w", action, ctx.Err())
		}
		_ = c.conn.SetDeadline(time.Time{})
	}()

	var body []byte
	if req != nil {
		encoded, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", action, err)
		}
		body = encoded
	}
	if err := writeFrame(c.conn, uint32(action), body); err != nil {
		return fmt.Errorf("send %s: %w", action, err)
	}

	code, resp, err := readFrame(c.reader)
	if err != nil {
		return fmt.Errorf("receive %s: %w", action, err)
	}
	if Result(code) != ResultOkey {
		var msg errorResponse
		_ = json.Unmarshal(resp, &msg)
		return &ResultError{Action: action, Code: Result(code), Message: msg.Error}
	}
	if out == nil || len(resp) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return &decodeError{action: action, err: err}
	}
	return nil
}

func (r playerResponse) player() domain.Player {
	return domain.Player{
		ID:        r.ID,
		Name:      r.Name,
		HomePoint: r.Home.ID,
		HomePost:  r.Home.PostID,
		Rating:    r.Rating,
	}
}
