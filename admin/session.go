package admin

// Stage is the credential-challenge progress of one admin identity.
type Stage int

const (
	StageUnauthenticated Stage = iota
	StageAwaitingUsername
	StageAwaitingPassword
	StageAuthenticated
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingUsername:
		return "awaiting_username"
	case StageAwaitingPassword:
		return "awaiting_password"
	case StageAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Prompt is the conversational sub-state of an authenticated admin. The
// next free-text message from that admin is interpreted against it.
type Prompt int

const (
	PromptNone Prompt = iota
	PromptTemperature
	PromptTopP
	PromptModel
	PromptWelcome
	PromptBroadcast
	PromptDirectMessage
	PromptBanID
	PromptUnbanID
	PromptLookupID
)

// Session holds both layers of one admin's state. Credential stage and
// prompt live in the same record so a menu press and a text message from
// two devices cannot observe them out of sync.
type Session struct {
	Stage  Stage
	Prompt Prompt
}
