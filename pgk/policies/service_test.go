package policies

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/config"
	"github.com/saveblush/reraw-timeline/models"
)

func newTestService(blocked ...string) *service {
	cf := &config.Configs{}
	cf.Stream.BlockedWords = blocked

	return &service{config: cf}
}

func TestStatusAccepted(t *testing.T) {
	rawStatuses := []string{
		`{"id": 1050118621198921728, "created_at": 1539202764, "user_id": 6253282, "text": "hello\nworld"}`,
		`{"id": 1050118621198921729, "created_at": 1539202765, "user_id": 783214, "in_reply_to_user_id": 6253282, "text": "🚀", "source": "web"}`,
	}

	s := newTestService("casino")
	for _, req := range rawStatuses {
		var status models.Status
		err := json.Unmarshal([]byte(req), &status)
		require.NoError(t, err)

		reject, msg := s.Reject(cctx.New(), &status)
		assert.False(t, reject, msg)
	}
}

func TestStatusRejected(t *testing.T) {
	s := newTestService("", "Casino")
	cases := []struct {
		status *models.Status
		msg    string
	}{
		{&models.Status{CreatedAt: 1, UserID: 1}, "invalid: status id is empty"},
		{&models.Status{ID: 1, CreatedAt: 1}, "invalid: status author is empty"},
		{&models.Status{ID: models.MaxID + 1, UserID: 1, CreatedAt: 1}, "invalid: status id out of range"},
		{&models.Status{ID: 1, UserID: models.MaxID + 1, CreatedAt: 1}, "invalid: status id out of range"},
		{&models.Status{ID: 1, UserID: 1, InReplyToUserID: models.MaxID + 1, CreatedAt: 1}, "invalid: status id out of range"},
		{&models.Status{ID: 1, UserID: 1}, "invalid: format created_at error"},
		{&models.Status{ID: 1, UserID: 1, CreatedAt: models.MaxUint32 + 1}, "invalid: format created_at error"},
		{&models.Status{ID: 1, UserID: 1, CreatedAt: 1, Text: "best CASINO online"}, "blocked: status with Casino"},
	}

	for _, c := range cases {
		reject, msg := s.Reject(cctx.New(), c.status)
		assert.True(t, reject)
		assert.Equal(t, c.msg, msg)
	}

	reject, _ := s.RejectValidateStatus(cctx.New(), nil)
	assert.True(t, reject)
}
