package models

// MessageEvent is an incoming chat message as seen by the bot.
type MessageEvent struct {
	AuthorID   string  `json:"author_id"`
	AuthorName string  `json:"author_name,omitempty"`
	AvatarURL  *string `json:"avatar_url,omitempty"`
	ChannelID  string  `json:"channel_id"`
	IsBot      bool    `json:"is_bot"`
	Text       string  `json:"text"`
}

// VoiceChannel identifies a voice channel and whether it is the AFK channel.
type VoiceChannel struct {
	ID  string `json:"id"`
	AFK bool   `json:"afk"`
}

// VoiceStateEvent is a voice-state transition for one user. A nil Before
// means the user was not connected; a nil After means they disconnected.
type VoiceStateEvent struct {
	UserID string        `json:"user_id"`
	Before *VoiceChannel `json:"before,omitempty"`
	After  *VoiceChannel `json:"after,omitempty"`
}

// Identity is how a user is displayed.
type Identity struct {
	UserID    string  `json:"user_id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}
