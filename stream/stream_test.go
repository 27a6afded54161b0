package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/models"
)

type recorder struct {
	mu         sync.Mutex
	events     []*models.StatusEvent
	inserted   []uint64
	deleted    []uint64
	changes    []*models.RelationChange
	followings []uint64
	storeErr   error
}

func (r *recorder) Publish(_ context.Context, evt *models.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)

	return nil
}

func (r *recorder) Insert(_ *cctx.Context, req *models.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted = append(r.inserted, req.ID)

	return r.storeErr
}

func (r *recorder) Delete(_ *cctx.Context, ID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ID)

	return r.storeErr
}

func (r *recorder) Apply(_ *cctx.Context, change *models.RelationChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)

	return nil
}

func (r *recorder) ReplaceFollowings(_ *cctx.Context, _ uint64, targetIDs []uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followings = targetIDs

	return nil
}

type rejectUser struct {
	userID uint64
}

func (p rejectUser) Reject(_ *cctx.Context, status *models.Status) (bool, string) {
	if status.UserID == p.userID {
		return true, "blocked"
	}

	return false, ""
}

// server sends frames then ends the connection with end
func server(t *testing.T, frames []string, end func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.Write(context.Background(), websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		end(conn)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newStream(t *testing.T, url string, rec *recorder, idle time.Duration) *Stream {
	t.Helper()
	s, err := New(Options{
		URL:         url,
		Identity:    1,
		IdleTimeout: idle,
		Publisher:   rec,
		Store:       rec,
		Relations:   rec,
		Policies:    rejectUser{userID: 66},
	})
	require.NoError(t, err)

	return s
}

func TestRunGracefulClose(t *testing.T) {
	url := server(t, []string{
		`{"friends": [2, 3]}`,
		`{"id": 10, "created_at": 100, "user": {"id": 2}, "text": "a"}`,
		`{"id": 11, "created_at": 101, "user": {"id": 66}, "text": "spam"}`,
		`not json`,
		`{"event": "follow", "source": {"id": 1}, "target": {"id": 4}}`,
		`{"delete": {"status": {"id": 10}}}`,
	}, func(conn *websocket.Conn) {
		conn.Close(websocket.StatusNormalClosure, "bye")
	})
	rec := &recorder{}

	err := newStream(t, url, rec, 5*time.Second).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	assert.Equal(t, models.EventAdded, rec.events[0].Kind)
	assert.Equal(t, uint64(10), rec.events[0].ID())
	assert.Equal(t, models.EventRemoved, rec.events[1].Kind)
	assert.Equal(t, uint64(10), rec.events[1].ID())
	assert.Equal(t, []uint64{10}, rec.inserted)
	assert.Equal(t, []uint64{10}, rec.deleted)
	assert.Equal(t, []uint64{2, 3}, rec.followings)
	assert.Equal(t, []*models.RelationChange{{OwnerID: 1, TargetID: 4, Kind: models.RelationFollowing}}, rec.changes)
}

func TestRunAbruptClose(t *testing.T) {
	url := server(t, []string{`{"id": 1, "created_at": 1, "user": {"id": 2}}`}, func(conn *websocket.Conn) {
		conn.CloseNow()
	})
	rec := &recorder{}

	err := newStream(t, url, rec, 5*time.Second).Run(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrIdleTimeout)
}

func TestRunIdleTimeout(t *testing.T) {
	url := server(t, nil, func(conn *websocket.Conn) {
		_, _, _ = conn.Read(context.Background())
	})
	rec := &recorder{}

	err := newStream(t, url, rec, 50*time.Millisecond).Run(context.Background())
	assert.ErrorIs(t, err, ErrIdleTimeout)
}

func TestRunCancelled(t *testing.T) {
	url := server(t, nil, func(conn *websocket.Conn) {
		_, _, _ = conn.Read(context.Background())
	})
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := newStream(t, url, rec, 5*time.Second).Run(ctx)
	assert.NoError(t, err)
}

func TestRunDialFailure(t *testing.T) {
	s, err := New(Options{URL: "ws://127.0.0.1:1", Publisher: &recorder{}})
	require.NoError(t, err)

	assert.Error(t, s.Run(context.Background()))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{Publisher: &recorder{}})
	assert.Error(t, err)

	_, err = New(Options{URL: "ws://localhost"})
	assert.Error(t, err)
}

func TestStoreFailureStillPublishes(t *testing.T) {
	rec := &recorder{storeErr: errors.New("database is down")}
	s := newStream(t, "ws://127.0.0.1:1", rec, time.Second)

	require.NoError(t, s.handle(context.Background(), []byte(`{"id": 10, "created_at": 100, "user": {"id": 2}, "text": "a"}`)))
	require.NoError(t, s.handle(context.Background(), []byte(`{"delete": {"status": {"id": 10}}}`)))

	require.Len(t, rec.events, 2)
	assert.Equal(t, models.EventAdded, rec.events[0].Kind)
	assert.Equal(t, models.EventRemoved, rec.events[1].Kind)
	assert.Equal(t, []uint64{10}, rec.inserted)
	assert.Equal(t, []uint64{10}, rec.deleted)
}
