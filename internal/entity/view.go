package entity

import (
	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
	"github.com/rocketscienceinc/polyhex-backend/internal/board"
)

// SessionView is the session as one participant sees it.
type SessionView struct {
	*Session

	YourSymbol string             `json:"your_symbol"`
	IsYourTurn bool               `json:"is_your_turn"`
	Cells      []board.Cell       `json:"cells,omitempty"`
	Edges      *board.EdgeRegions `json:"edges,omitempty"`
}

func (that *Session) ViewFor(playerID string) (*SessionView, error) {
	index, ok := that.PlayerIndex(playerID)
	if !ok {
		return nil, apperror.ErrNotAParticipant
	}

	view := &SessionView{
		Session:    that,
		YourSymbol: that.Players[index].Mark,
		IsYourTurn: that.IsOngoing() && that.CurrentPlayerIndex == index,
	}

	if that.layout != nil {
		view.Cells = that.layout.Cells
		view.Edges = &that.layout.Edges
	}

	return view, nil
}
