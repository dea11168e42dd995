package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kanban-realtime/internal/membership"
	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/realtime"
)

// ChannelAuthorizer translates a subscription handshake into a signed grant
// after checking project membership. It performs no writes, so it is safe to
// call concurrently and repeatedly: re-authorizing the same socket/channel
// pair yields an equivalent grant.
type ChannelAuthorizer struct {
	store  membership.Store
	signer *Signer
	logger log.Logger
}

// NewChannelAuthorizer creates a new ChannelAuthorizer
func NewChannelAuthorizer(store membership.Store, signer *Signer, logger log.Logger) *ChannelAuthorizer {
	return &ChannelAuthorizer{
		store:  store,
		signer: signer,
		logger: logger,
	}
}

// Authorize validates a presence channel subscription attempt for a user and
// returns the signed grant embedding the user's presence payload.
//
// Error taxonomy: realtime.ErrInvalidChannel for malformed channel names
// (checked before the membership oracle is touched), ErrForbidden when the
// project is missing or the user is not a member.
func (a *ChannelAuthorizer) Authorize(ctx context.Context, socketID, channelName, userID string) (Grant, error) {
	projectID, err := realtime.ParsePresenceChannel(channelName)
	if err != nil {
		return Grant{}, err
	}

	member, err := a.store.Member(ctx, userID, projectID)
	if errors.Is(err, membership.ErrNotMember) {
		a.logger.Warnf(ctx, "Denied presence subscription: user %s is not a member of project %s", userID, projectID)
		return Grant{}, ErrForbidden
	}
	if err != nil {
		return Grant{}, fmt.Errorf("membership check: %w", err)
	}

	channelData, err := json.Marshal(realtime.ChannelData{
		UserID: member.ID,
		UserInfo: realtime.MemberInfo{
			Email:     member.Email,
			Name:      member.DisplayName(),
			GithubURL: member.GithubURL,
		},
	})
	if err != nil {
		return Grant{}, fmt.Errorf("marshal channel data: %w", err)
	}

	if !a.signer.Enabled() {
		a.logger.Warn(ctx, "App credentials are not configured; issuing unsigned grant")
		return Grant{ChannelData: string(channelData)}, nil
	}

	return a.signer.Sign(socketID, channelName, string(channelData)), nil
}
