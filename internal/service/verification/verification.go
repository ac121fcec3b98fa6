package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/databot/youtube-tracker/internal/db/models"
	"github.com/databot/youtube-tracker/internal/db/repository"
	"github.com/databot/youtube-tracker/internal/service/cache"
	"github.com/databot/youtube-tracker/internal/service/youtube"
	"github.com/databot/youtube-tracker/pkg/logger"
)

// ErrVerificationFailed indicates a channel moved to the rejected state after
// exhausting its check attempts.
var ErrVerificationFailed = errors.New("verification failed")

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of issued verification codes.
const CodeLength = 6

// GenerateCode issues a fresh verification code for a channel claim.
func GenerateCode() (string, error) {
	var b strings.Builder
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate verification code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Service drives the channel ownership verification state machine.
type Service struct {
	channels    repository.ChannelRepository
	client      youtube.Client
	cache       *cache.Cache
	maxAttempts int
	log         *zap.Logger
}

// NewService creates a verification Service.
func NewService(channels repository.ChannelRepository, client youtube.Client, c *cache.Cache, maxAttempts int) *Service {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Service{
		channels:    channels,
		client:      client,
		cache:       c,
		maxAttempts: maxAttempts,
		log:         logger.Named("verification"),
	}
}

// Check runs one verification attempt for the channel and persists the
// resulting transition. It returns true when the channel reached the verified
// state and ErrVerificationFailed when it moved to rejected. Provider errors
// leave the channel untouched.
func (s *Service) Check(ctx context.Context, channel *models.Channel) (bool, error) {
	if channel.VerificationState.Terminal() {
		return channel.IsVerified, nil
	}

	var (
		ok  bool
		err error
	)
	switch channel.VerificationMode {
	case models.VerificationManual:
		ok, err = s.checkManual(ctx, channel)
	case models.VerificationAutomatic:
		ok, err = s.checkAutomatic(ctx, channel)
	default:
		return false, fmt.Errorf("unknown verification mode %q", channel.VerificationMode)
	}
	if err != nil {
		return false, err
	}

	channel.VerificationAttempts++

	if ok {
		channel.MarkVerified()
	} else if channel.VerificationAttempts >= s.maxAttempts {
		channel.MarkRejected()
	} else {
		channel.VerificationState = models.StatePendingCheck
	}

	if err := s.channels.UpdateVerification(ctx, channel); err != nil {
		return false, err
	}

	s.log.Info("verification check completed",
		zap.String("channel_id", channel.ChannelID),
		zap.String("state", string(channel.VerificationState)),
		zap.Int("attempts", channel.VerificationAttempts))

	if channel.VerificationState == models.StateRejected {
		return false, fmt.Errorf("channel %s: %w", channel.ChannelID, ErrVerificationFailed)
	}
	return ok, nil
}

// checkManual looks for the issued code in the channel description. The cache
// is bypassed so the check always sees the current description.
func (s *Service) checkManual(ctx context.Context, channel *models.Channel) (bool, error) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, ChannelCacheKey(channel.ChannelID)); err != nil {
			s.log.Warn("could not invalidate channel cache before check",
				zap.String("channel_id", channel.ChannelID), zap.Error(err))
		}
	}

	info, err := s.client.FetchChannel(ctx, channel.ChannelID)
	if err != nil {
		if errors.Is(err, youtube.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	description := strings.ToLower(info.Description)
	code := strings.ToLower(channel.VerificationCode)
	return code != "" && strings.Contains(description, code), nil
}

// checkAutomatic confirms the channel exists; no code exchange happens.
func (s *Service) checkAutomatic(ctx context.Context, channel *models.Channel) (bool, error) {
	_, err := s.client.FetchChannel(ctx, channel.ChannelID)
	if err != nil {
		if errors.Is(err, youtube.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Reset returns a rejected or archived claim to unverified with a fresh code
// and persists it.
func (s *Service) Reset(ctx context.Context, channel *models.Channel) error {
	code, err := GenerateCode()
	if err != nil {
		return err
	}

	channel.ResetVerification(code)
	if err := s.channels.UpdateVerification(ctx, channel); err != nil {
		return err
	}

	s.log.Info("verification reset",
		zap.String("channel_id", channel.ChannelID))
	return nil
}

// ChannelCacheKey is the cache key scheme shared with other channel readers.
func ChannelCacheKey(channelID string) string {
	return "yt:channel:" + channelID
}
