package login

// State состояние попытки входа.
type State int

const (
	StateStart State = iota
	StateDirectorySearch
	StateDirectoryHit
	StateDirectoryMiss
	StateLocalAuthCheck
	StatePasswordCheck
	StateHitButBadAuth
	StateIdentityResolve
	StateSessionEstablished
	StateLoginFailed
)

var stateNames = map[State]string{
	StateStart:              "start",
	StateDirectorySearch:    "directory_search",
	StateDirectoryHit:       "directory_hit",
	StateDirectoryMiss:      "directory_miss",
	StateLocalAuthCheck:     "local_auth_check",
	StatePasswordCheck:      "password_check",
	StateHitButBadAuth:      "hit_but_bad_auth",
	StateIdentityResolve:    "identity_resolve",
	StateSessionEstablished: "session_established",
	StateLoginFailed:        "login_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal true для конечных состояний.
func (s State) Terminal() bool {
	return s == StateSessionEstablished || s == StateLoginFailed
}

// Reason причина неудачного входа.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonCredentialsRequired
	ReasonAmbiguous
	ReasonBadCredentials
	ReasonUsernameConflict
	ReasonUserConflict
	ReasonInternal
)

var reasonNames = map[Reason]string{
	ReasonNone:                "none",
	ReasonCredentialsRequired: "credentials_required",
	ReasonAmbiguous:           "ambiguous",
	ReasonBadCredentials:      "bad_credentials",
	ReasonUsernameConflict:    "username_conflict",
	ReasonUserConflict:        "user_conflict",
	ReasonInternal:            "internal",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

const (
	MsgCredentialsRequired = "Please enter a username and password"
	MsgBadCredentials      = "Bad username or password."
	MsgUsernameConflict    = "Username conflict. Please contact the site administrator."
)
