package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/utils/logger"
	"github.com/saveblush/reraw-timeline/models"
)

const (
	defaultIdleTimeout      = 90 * time.Second
	defaultMaxMessageLength = 512 * 1024
)

// ErrIdleTimeout no frame arrived within the idle timeout
var ErrIdleTimeout = errors.New("stream: idle timeout")

// Publisher fan-out of status events
type Publisher interface {
	Publish(ctx context.Context, evt *models.StatusEvent) error
}

// Store status history
type Store interface {
	Insert(c *cctx.Context, req *models.Status) error
	Delete(c *cctx.Context, ID uint64) error
}

// Relations relation graph of the local identities
type Relations interface {
	Apply(c *cctx.Context, change *models.RelationChange) error
	ReplaceFollowings(c *cctx.Context, identity uint64, targetIDs []uint64) error
}

// Policies ingress policies
type Policies interface {
	Reject(c *cctx.Context, status *models.Status) (bool, string)
}

// Options stream options
type Options struct {
	URL              string
	Identity         uint64
	IdleTimeout      time.Duration
	MaxMessageLength int64
	Publisher        Publisher
	Store            Store
	Relations        Relations
	Policies         Policies
}

// Stream websocket stream of one identity
type Stream struct {
	opts Options
}

// New new stream
func New(opts Options) (*Stream, error) {
	if opts.URL == "" {
		return nil, errors.New("new stream: empty url")
	}
	if opts.Publisher == nil {
		return nil, errors.New("new stream: nil publisher")
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = defaultMaxMessageLength
	}

	return &Stream{opts: opts}, nil
}

// Run read frames until the stream ends. A normal close or ctx cancellation
// returns nil, any other end (transport failure, idle timeout) returns an error.
// Run never reconnects.
func (s *Stream) Run(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.opts.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Log.Errorf("dial stream %s error: %s", s.opts.URL, err)
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.CloseNow()

	conn.SetReadLimit(s.opts.MaxMessageLength)
	logger.Log.Infof("stream connected: %s", s.opts.URL)

	for {
		readCtx, cancel := context.WithTimeout(ctx, s.opts.IdleTimeout)
		mt, msg, err := conn.Read(readCtx)
		timedOut := errors.Is(readCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err != nil {
			switch {
			case ctx.Err() != nil:
				conn.Close(websocket.StatusNormalClosure, "")
				return nil
			case timedOut:
				logger.Log.Errorf("stream idle for %s", s.opts.IdleTimeout)
				return ErrIdleTimeout
			}

			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Infof("stream closed: %s", status)
				return nil
			}
			logger.Log.Errorf("read stream error: %s", err)
			return fmt.Errorf("read stream: %w", err)
		}

		if mt != websocket.MessageText {
			logger.Log.Warnf("stream message is not text, skipping")
			continue
		}

		if err := s.handle(ctx, msg); err != nil {
			logger.Log.Errorf("handle stream frame error: %s", err)
		}
	}
}

// handle apply one frame, a failing frame never ends the stream
func (s *Stream) handle(ctx context.Context, msg []byte) error {
	frame, err := Parse(msg, s.opts.Identity)
	if err != nil {
		return err
	}
	c := cctx.WithContext(ctx)

	switch frame.Kind {
	case FrameStatus:
		if s.opts.Policies != nil {
			if reject, reason := s.opts.Policies.Reject(c, frame.Status); reject {
				logger.Log.Warnf("reject status [id: %d]: %s", frame.StatusID, reason)
				return nil
			}
		}
		if s.opts.Store != nil {
			// the live view does not depend on the history write
			if err := s.opts.Store.Insert(c, frame.Status); err != nil {
				logger.Log.Warnf("store status [id: %d] error: %s", frame.StatusID, err)
			}
		}
		return s.opts.Publisher.Publish(ctx, models.NewAddedEvent(frame.Status))

	case FrameDelete:
		if s.opts.Store != nil {
			if err := s.opts.Store.Delete(c, frame.StatusID); err != nil {
				logger.Log.Warnf("delete status [id: %d] error: %s", frame.StatusID, err)
			}
		}
		return s.opts.Publisher.Publish(ctx, models.NewRemovedEvent(frame.StatusID))

	case FrameRelation:
		if s.opts.Relations == nil {
			return nil
		}
		var errs []error
		for _, change := range frame.Changes {
			errs = append(errs, s.opts.Relations.Apply(c, change))
		}
		return errors.Join(errs...)

	case FrameFriends:
		if s.opts.Relations == nil || s.opts.Identity == 0 {
			return nil
		}
		return s.opts.Relations.ReplaceFollowings(c, s.opts.Identity, frame.Friends)
	}

	return nil
}
