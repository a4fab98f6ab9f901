// Package wsnet runs ranks as separate processes joined by a full mesh of
// websocket connections. Each rank serves /mesh on its own address and dials
// every lower rank, so each pair shares exactly one connection.
package wsnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/san-kum/gridsim/internal/transport"
)

const meshPath = "/mesh"

// Config describes one rank's place in the mesh.
type Config struct {
	Rank int
	// Peers holds the host:port of every rank, indexed by rank.
	Peers []string
	// DialTimeout bounds how long Join waits for the whole mesh to form.
	DialTimeout time.Duration
	Log         logrus.FieldLogger
}

func (c Config) validate() error {
	if len(c.Peers) == 0 {
		return errors.New("wsnet: no peers configured")
	}
	if c.Rank < 0 || c.Rank >= len(c.Peers) {
		return fmt.Errorf("wsnet: rank %d outside mesh of %d", c.Rank, len(c.Peers))
	}
	return nil
}

type peer struct {
	mu   sync.Mutex // serialises writers
	conn *websocket.Conn
}

// Comm is a transport.Comm backed by websocket links.
type Comm struct {
	cfg    Config
	log    logrus.FieldLogger
	server *http.Server
	boxes  []*transport.Mailbox

	mu    sync.Mutex
	peers []*peer
	ready chan struct{}
	left  int
	once  sync.Once
}

// Dial listens on the rank's own address and joins the mesh.
func Dial(ctx context.Context, cfg Config) (*Comm, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", cfg.Peers[cfg.Rank])
	if err != nil {
		return nil, fmt.Errorf("wsnet: listen: %w", err)
	}
	return Join(ctx, cfg, ln)
}

// Join serves the mesh on ln and blocks until a link to every other rank is
// up or the dial timeout passes.
func Join(ctx context.Context, cfg Config, ln net.Listener) (*Comm, error) {
	if err := cfg.validate(); err != nil {
		ln.Close()
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	size := len(cfg.Peers)
	c := &Comm{
		cfg:   cfg,
		log:   cfg.Log.WithField("rank", cfg.Rank),
		boxes: make([]*transport.Mailbox, size),
		peers: make([]*peer, size),
		ready: make(chan struct{}),
		left:  size - 1,
	}
	for q := range c.boxes {
		if q != cfg.Rank {
			c.boxes[q] = transport.NewMailbox()
		}
	}
	if c.left == 0 {
		close(c.ready)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(meshPath, c.accept)
	c.server = &http.Server{Handler: mux}
	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.WithError(err).Error("mesh server stopped")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	errc := make(chan error, cfg.Rank)
	for q := 0; q < cfg.Rank; q++ {
		go func() { errc <- c.dial(ctx, q) }()
	}
	for q := 0; q < cfg.Rank; q++ {
		if err := <-errc; err != nil {
			c.Close()
			return nil, err
		}
	}

	select {
	case <-c.ready:
	case <-ctx.Done():
		c.Close()
		return nil, fmt.Errorf("wsnet: rank %d waiting for peers: %w", cfg.Rank, ctx.Err())
	}
	c.log.WithField("peers", size-1).Debug("mesh ready")
	return c, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
}

func (c *Comm) accept(w http.ResponseWriter, r *http.Request) {
	q, err := strconv.Atoi(r.URL.Query().Get("rank"))
	if err != nil || q <= c.cfg.Rank || q >= len(c.peers) {
		http.Error(w, "bad rank", http.StatusBadRequest)
		return
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("size")); err != nil || n != len(c.peers) {
		http.Error(w, "mesh size mismatch", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.WithError(err).WithField("peer", q).Warn("upgrade failed")
		return
	}
	c.attach(q, conn)
}

func (c *Comm) dial(ctx context.Context, q int) error {
	u := url.URL{
		Scheme:   "ws",
		Host:     c.cfg.Peers[q],
		Path:     meshPath,
		RawQuery: url.Values{"rank": {strconv.Itoa(c.cfg.Rank)}, "size": {strconv.Itoa(len(c.peers))}}.Encode(),
	}
	var conn *websocket.Conn
	err := backoff.RetryNotify(
		func() error {
			var err error
			conn, _, err = websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
			return err
		},
		backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
		func(err error, d time.Duration) {
			c.log.WithField("peer", q).Debugf("%v: retrying in %v", err, d)
		},
	)
	if err != nil {
		return fmt.Errorf("wsnet: rank %d dialing rank %d: %w", c.cfg.Rank, q, err)
	}
	c.attach(q, conn)
	return nil
}

func (c *Comm) attach(q int, conn *websocket.Conn) {
	c.mu.Lock()
	if c.peers[q] != nil {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.peers[q] = &peer{conn: conn}
	c.left--
	if c.left == 0 {
		close(c.ready)
	}
	c.mu.Unlock()
	go c.read(q, conn)
}

// read moves frames from q into its mailbox until the link fails.
func (c *Comm) read(q int, conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.boxes[q].Fail(fmt.Errorf("%w: link to rank %d: %v", transport.ErrClosed, q, err))
			return
		}
		if len(frame) < 2 {
			c.boxes[q].Fail(fmt.Errorf("wsnet: short frame from rank %d", q))
			return
		}
		c.boxes[q].Push(transport.Tag(binary.LittleEndian.Uint16(frame)), frame[2:])
	}
}

func (c *Comm) Rank() int { return c.cfg.Rank }
func (c *Comm) Size() int { return len(c.peers) }

func (c *Comm) Send(ctx context.Context, to int, tag transport.Tag, payload []byte) error {
	if to < 0 || to >= len(c.peers) || to == c.cfg.Rank {
		return fmt.Errorf("%w: %d", transport.ErrBadRank, to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p := c.peers[to]
	frame := make([]byte, 2, 2+len(payload))
	binary.LittleEndian.PutUint16(frame, uint16(tag))
	frame = append(frame, payload...)

	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := ctx.Deadline(); ok {
		p.conn.SetWriteDeadline(d)
	} else {
		p.conn.SetWriteDeadline(time.Time{})
	}
	if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("%w: send to rank %d: %v", transport.ErrClosed, to, err)
	}
	return nil
}

func (c *Comm) Recv(ctx context.Context, from int, tag transport.Tag) ([]byte, error) {
	if from < 0 || from >= len(c.peers) || from == c.cfg.Rank {
		return nil, fmt.Errorf("%w: %d", transport.ErrBadRank, from)
	}
	return c.boxes[from].Pop(ctx, tag)
}

// Close tears down every link and the listener.
func (c *Comm) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		for _, p := range c.peers {
			if p == nil {
				continue
			}
			p.mu.Lock()
			p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			p.conn.Close()
			p.mu.Unlock()
		}
		c.mu.Unlock()
		for _, box := range c.boxes {
			if box != nil {
				box.Fail(transport.ErrClosed)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = c.server.Shutdown(ctx)
	})
	return err
}

var _ transport.Comm = (*Comm)(nil)
