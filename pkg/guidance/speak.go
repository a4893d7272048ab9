package guidance

import (
	"errors"

	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

// say speaks text unless something is already being spoken. With force the
// current utterance is stopped first. It reports whether the request was
// accepted.
//
// after, when non-nil, runs on the control goroutine once the utterance ends:
// with nil on completion, or with the error that ended it. It is skipped when
// the utterance outlives its session.
func (e *Engine) say(text string, force bool, after func(err error)) bool {
	if text == "" {
		return false
	}
	if force && e.speaking {
		e.deps.Speech.Stop()
		e.speaking = false
	}
	if e.speaking {
		return false
	}

	e.speechSeq++
	seq := e.speechSeq
	session := e.state.Session
	e.speaking = true

	_, err := e.deps.Speech.Speak(text, speech.Callbacks{
		OnDone: func() {
			e.post(func() { e.speechEnded(seq, session, nil, after) })
		},
		OnError: func(err error) {
			e.post(func() { e.speechEnded(seq, session, err, after) })
		},
	})
	if err != nil {
		e.speaking = false
		e.logger.Warn("speak failed", "text", text, "error", err)
		return false
	}

	e.logger.Debug("speaking", "text", text, "forced", force)
	e.emit(Event{Kind: EventSpeech, Text: text})
	return true
}

// speechEnded clears the busy flag for the current utterance. Completions of
// interrupted utterances do not touch the flag.
func (e *Engine) speechEnded(seq uint64, session string, err error, after func(error)) {
	if seq == e.speechSeq {
		e.speaking = false
	}
	if err != nil && !errors.Is(err, speech.ErrInterrupted) {
		e.logger.Warn("utterance failed", "error", err)
	}
	if after == nil {
		return
	}
	if session != e.state.Session {
		e.logger.Debug("utterance outlived its session", "session", session)
		return
	}
	after(err)
}
