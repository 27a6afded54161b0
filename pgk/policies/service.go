package policies

import (
	"fmt"
	"strings"

	"github.com/saveblush/reraw-timeline/core/cctx"
	"github.com/saveblush/reraw-timeline/core/config"
	"github.com/saveblush/reraw-timeline/core/generic"
	"github.com/saveblush/reraw-timeline/models"
)

// Service service interface
type Service interface {
	RejectValidateStatus(c *cctx.Context, status *models.Status) (bool, string)
	RejectValidateTimeStamp(c *cctx.Context, status *models.Status) (bool, string)
	RejectStatusWithCharacter(c *cctx.Context, status *models.Status) (bool, string)
	Reject(c *cctx.Context, status *models.Status) (bool, string)
}

type service struct {
	config *config.Configs
}

func NewService() Service {
	return &service{
		config: config.CF,
	}
}

// Reject run every policy, the first rejection wins
func (s *service) Reject(c *cctx.Context, status *models.Status) (bool, string) {
	for _, reject := range []func(*cctx.Context, *models.Status) (bool, string){
		s.RejectValidateStatus,
		s.RejectValidateTimeStamp,
		s.RejectStatusWithCharacter,
	} {
		if ok, msg := reject(c, status); ok {
			return true, msg
		}
	}

	return false, ""
}

// RejectValidateStatus reject status without identity
func (s *service) RejectValidateStatus(c *cctx.Context, status *models.Status) (bool, string) {
	if status == nil || status.ID == 0 {
		return true, fmt.Sprintf("invalid: %s", "status id is empty")
	}

	if status.UserID == 0 {
		return true, fmt.Sprintf("invalid: %s", "status author is empty")
	}
	if status.ID > models.MaxID || status.UserID > models.MaxID || status.InReplyToUserID > models.MaxID {
		return true, fmt.Sprintf("invalid: %s", "status id out of range")
	}

	return false, ""
}

// RejectValidateTimeStamp reject validate time stamp
func (s *service) RejectValidateTimeStamp(c *cctx.Context, status *models.Status) (bool, string) {
	if status.CreatedAt <= 0 || status.CreatedAt > models.MaxUint32 {
		return true, fmt.Sprintf("invalid: %s", "format created_at error")
	}

	return false, ""
}

// RejectStatusWithCharacter reject status with blocked words
func (s *service) RejectStatusWithCharacter(c *cctx.Context, status *models.Status) (bool, string) {
	if s.config == nil || generic.IsEmpty(s.config.Stream.BlockedWords) {
		return false, ""
	}

	text := strings.ToLower(status.Text)
	for _, character := range s.config.Stream.BlockedWords {
		if character == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(character)) {
			return true, fmt.Sprintf("blocked: status with %s", character)
		}
	}

	return false, ""
}
