package entity

type Player struct {
	ID        string `json:"id"`
	Mark      string `json:"mark,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (that *Player) InSession() bool {
	return that.SessionID != ""
}

// Leave detaches the player from its session.
func (that *Player) Leave() {
	that.Mark = ""
	that.SessionID = ""
}
