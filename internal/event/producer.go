package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/harborline/storefront/pkg/kafka"

	"github.com/harborline/storefront/internal/domain"
)

// Kafka topic constants for auth domain events.
const (
	TopicUserRegistered = "storefront.auth.user_registered"
	TopicUserLoggedIn   = "storefront.auth.user_logged_in"
	TopicUserVerified   = "storefront.auth.user_verified"
	TopicAdminOnboarded = "storefront.auth.admin_onboarded"
	TopicSessionRevoked = "storefront.auth.session_revoked"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from this service.
const SourceAuthService = "storefront-auth"

// UserEventData is the shared payload for user lifecycle events.
type UserEventData struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// SessionRevokedData is the payload for a session revocation event.
type SessionRevokedData struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason"`
}

// Revocation reasons carried on session_revoked events.
const (
	RevokeReasonLogout     = "logout"
	RevokeReasonLogoutAll  = "logout_all"
	RevokeReasonOnboarding = "credential_rotation"
)

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishUserRegistered publishes a user_registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return p.publishUserEvent(ctx, TopicUserRegistered, user)
}

// PublishUserLoggedIn publishes a user_logged_in event.
func (p *Producer) PublishUserLoggedIn(ctx context.Context, user *domain.User) error {
	return p.publishUserEvent(ctx, TopicUserLoggedIn, user)
}

// PublishUserVerified publishes a user_verified event after a successful
// email verification.
func (p *Producer) PublishUserVerified(ctx context.Context, user *domain.User) error {
	return p.publishUserEvent(ctx, TopicUserVerified, user)
}

// PublishAdminOnboarded publishes an admin_onboarded event after the seeded
// administrator completes the credential-change flow.
func (p *Producer) PublishAdminOnboarded(ctx context.Context, user *domain.User) error {
	return p.publishUserEvent(ctx, TopicAdminOnboarded, user)
}

// PublishSessionRevoked publishes a session_revoked event.
func (p *Producer) PublishSessionRevoked(ctx context.Context, userID, sessionID, reason string) error {
	data := SessionRevokedData{
		UserID:    userID,
		SessionID: sessionID,
		Reason:    reason,
	}

	event, err := pkgkafka.NewEvent(TopicSessionRevoked, userID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create session_revoked event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicSessionRevoked, event); err != nil {
		return fmt.Errorf("publish session_revoked event: %w", err)
	}

	p.logger.DebugContext(ctx, "published session_revoked event",
		slog.String("user_id", userID),
		slog.String("reason", reason),
	)

	return nil
}

func (p *Producer) publishUserEvent(ctx context.Context, topic string, user *domain.User) error {
	data := UserEventData{
		UserID:        user.ID,
		Email:         user.Email,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
	}

	event, err := pkgkafka.NewEvent(topic, user.ID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published auth event",
		slog.String("topic", topic),
		slog.String("user_id", user.ID),
	)

	return nil
}
