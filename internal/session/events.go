package session

// Server-to-client protocol events. All events are JSON text frames carrying
// a "type" discriminator; audio from the client arrives as binary frames.

// ConnectedEvent confirms a session is established.
type ConnectedEvent struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id"`
	LanguageHint string `json:"language_hint"`
	Message      string `json:"message"`
}

// PartialEvent carries an in-progress transcription of the current utterance.
type PartialEvent struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// FinalEvent carries the committed transcription with derived speech metrics.
type FinalEvent struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	WPM        float64 `json:"wpm"`
	Duration   float64 `json:"duration"`
	WordCount  int     `json:"word_count"`
}

// ErrorEvent reports a per-request failure. The session stays open.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newConnectedEvent(sessionID, languageHint string) ConnectedEvent {
	return ConnectedEvent{
		Type:         "connected",
		SessionID:    sessionID,
		LanguageHint: languageHint,
		Message:      "ASR stream connected successfully",
	}
}

func newPartialEvent(text string, confidence float64, language string) PartialEvent {
	return PartialEvent{
		Type:       "partial",
		Text:       text,
		Confidence: confidence,
		Language:   language,
	}
}

func newFinalEvent(text string, confidence float64, language string, wpm, duration float64, wordCount int) FinalEvent {
	return FinalEvent{
		Type:       "final",
		Text:       text,
		Confidence: confidence,
		Language:   language,
		WPM:        wpm,
		Duration:   duration,
		WordCount:  wordCount,
	}
}

func newErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: message}
}
