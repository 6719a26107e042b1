package runtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"news-lab/contract"
)

// Connection is one live transport session. Reads are exclusively owned
// by the connection's receive loop; writes are serialized by a mutex
// because both the dispatcher's direct replies and the fanout engine
// write to the same transport. Close is idempotent regardless of which
// path (read error, write error, shutdown) tears the connection down.
type Connection struct {
	ID string

	conn      contract.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error

	userMu sync.RWMutex
	userID string
}

func NewConnection(conn contract.Conn) *Connection {
	return &Connection{ID: uuid.NewString(), conn: conn}
}

func (c *Connection) ReadFrame(ctx context.Context) ([]byte, error) {
	return c.conn.ReadFrame(ctx)
}

// Send writes one frame under the per-connection write lock.
func (c *Connection) Send(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteFrame(ctx, frame)
}

func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Authenticate binds a user identity to this connection. Called only by
// the owning receive loop after a successful auth command.
func (c *Connection) Authenticate(userID string) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	c.userID = userID
}

func (c *Connection) UserID() string {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	return c.userID
}

func (c *Connection) Authenticated() bool {
	return c.UserID() != ""
}
