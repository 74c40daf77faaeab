package mint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Minter is the NFT minting collaborator. MintTo returns the opaque token
// handle issued for the account, or an error when the collaborator is
// unreachable or declined the mint. Mint failures never roll back a
// registration; callers park the request for retry instead.
type Minter interface {
	MintTo(ctx context.Context, tournamentID, account uuid.UUID) (string, error)
}

// SubjectMintRequest is the request/reply subject the collaborator
// listens on.
const SubjectMintRequest = "comp.mint.request"

type mintRequestJSON struct {
	TournamentID string `json:"tournament_id"`
	Account      string `json:"account"`
}

type mintReplyJSON struct {
	TokenHandle string `json:"token_handle"`
	Error       string `json:"error,omitempty"`
}

// NATSMinter talks to the collaborator over NATS request/reply.
type NATSMinter struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSMinter(nc *nats.Conn, timeout time.Duration) *NATSMinter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSMinter{nc: nc, timeout: timeout}
}

func (m *NATSMinter) MintTo(ctx context.Context, tournamentID, account uuid.UUID) (string, error) {
	payload, err := json.Marshal(mintRequestJSON{
		TournamentID: tournamentID.String(),
		Account:      account.String(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal mint request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	msg, err := m.nc.RequestWithContext(reqCtx, SubjectMintRequest, payload)
	if err != nil {
		return "", fmt.Errorf("mint request: %w", err)
	}

	var reply mintReplyJSON
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("parse mint reply: %w", err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("mint declined: %s", reply.Error)
	}
	if reply.TokenHandle == "" {
		return "", fmt.Errorf("mint reply missing token_handle")
	}
	return reply.TokenHandle, nil
}
