// Package models holds the application's typed Parse classes.
package models

import (
	"errors"
	"time"

	"github.com/drewjocham/parsemodel/model"
	"github.com/drewjocham/parsemodel/record"
)

const (
	GameScoreClass = "GameScore"
	PlayerClass    = "Player"
)

type GameScore struct {
	model.Model
	Score      int64          `parse:"score" validate:"gte=0"`
	PlayerName string         `parse:"playerName" validate:"required"`
	CheatMode  bool           `parse:"cheatMode"`
	Player     record.Pointer `parse:"player" class:"Player"`
}

func (*GameScore) ParseClassName() string { return GameScoreClass }

type Player struct {
	model.Model
	Name     string    `parse:"name" validate:"required"`
	Email    string    `parse:"email,omitempty" validate:"omitempty,email"`
	JoinedAt time.Time `parse:"joinedAt"`
}

func (*Player) ParseClassName() string { return PlayerClass }

// NewGameScore returns a GameScore bound to a fresh, unsaved record.
func NewGameScore() (*GameScore, error) {
	obj, err := record.New(GameScoreClass)
	if err != nil {
		return nil, err
	}
	gs := &GameScore{}
	if _, err := gs.Init(obj); err != nil {
		return nil, err
	}
	return gs, nil
}

// NewPlayer returns a Player bound to a fresh, unsaved record.
func NewPlayer() (*Player, error) {
	obj, err := record.New(PlayerClass)
	if err != nil {
		return nil, err
	}
	p := &Player{}
	if _, err := p.Init(obj); err != nil {
		return nil, err
	}
	return p, nil
}

// SetPlayer points the score at p. p must have been saved.
func (g *GameScore) SetPlayer(p *Player) error {
	if p == nil || p.ParseObject() == nil {
		return model.ErrNilObject
	}
	if p.ObjectID() == "" {
		return errors.New("models: player has not been saved")
	}
	g.Player = p.ParseObject().Pointer()
	return nil
}

// Register adds every model in this package to reg.
func Register(reg *model.Registry) error {
	return errors.Join(
		model.RegisterType[GameScore](reg, ""),
		model.RegisterType[Player](reg, ""),
	)
}
