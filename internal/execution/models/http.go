package models

import "time"

// RegisterStrategyRequest registers a new strategy venue.
type RegisterStrategyRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Asset      string `json:"asset"`
	MinDeposit int64  `json:"minDeposit"`
	MaxDeposit int64  `json:"maxDeposit"`
}

type StrategyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Asset         string     `json:"asset"`
	MinDeposit    int64      `json:"minDeposit"`
	MaxDeposit    int64      `json:"maxDeposit"`
	Active        bool       `json:"active"`
	RegisteredAt  time.Time  `json:"registeredAt"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
}

func ToStrategyResponse(s *Strategy) StrategyResponse {
	return StrategyResponse{
		ID:            s.ID.String(),
		Name:          s.Name,
		Asset:         s.Asset,
		MinDeposit:    s.MinDeposit,
		MaxDeposit:    s.MaxDeposit,
		Active:        s.Active,
		RegisteredAt:  s.RegisteredAt,
		DeactivatedAt: s.DeactivatedAt,
	}
}

type PositionResponse struct {
	Account        string    `json:"account"`
	Strategy       string    `json:"strategy"`
	Shares         int64     `json:"shares"`
	DepositedValue int64     `json:"depositedValue"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func ToPositionResponse(p *Position) PositionResponse {
	return PositionResponse{
		Account:        p.Account.String(),
		Strategy:       p.Strategy.String(),
		Shares:         p.Shares,
		DepositedValue: p.DepositedValue,
		UpdatedAt:      p.UpdatedAt,
	}
}

// MirrorStatusResponse reports how current the authorization replica is.
type MirrorStatusResponse struct {
	SyncedAt   *time.Time `json:"syncedAt,omitempty"`
	AgeSeconds float64    `json:"ageSeconds"`
}
