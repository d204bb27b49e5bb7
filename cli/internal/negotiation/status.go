package negotiation

// Level grades a Status for display.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

// Status is a user-facing line about the session.
type Status struct {
	Level Level
	Text  string
}

// Status texts shown to the user.
const (
	StatusCaptureFailed     = "Screen capture cancelled or failed."
	StatusSharerLeft        = "Sharer has disconnected. You can now start sharing."
	StatusSharerStopped     = "Sharer stopped sharing."
	StatusSharingStarted    = "You are now sharing your screen."
	StatusSharingStopped    = "You stopped sharing."
	statusConflictFormat    = "%s is already sharing in this room."
	statusConnectedFormat   = "Connected to %s."
	statusViewerLeftFormat  = "Viewer %s disconnected."
	statusLinkFailedFormat  = "Connection with %s failed."
	statusSharerFoundFormat = "%s is sharing, connecting..."
)
