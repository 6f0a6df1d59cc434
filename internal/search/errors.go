package search

import "github.com/rotisserie/eris"

var (
	// ErrInputTargetNotFound means the lookup-code field could not be located
	// by either selector. Fatal for the document.
	ErrInputTargetNotFound = eris.New("search: lookup-code field not found")

	// ErrCaptchaFetchTimeout means the captcha image could not be located by
	// either selector within the timeout. Counts as a failed attempt.
	ErrCaptchaFetchTimeout = eris.New("search: captcha image not found")

	// ErrCaptchaRejected means the portal reported a wrong captcha answer.
	ErrCaptchaRejected = eris.New("search: captcha rejected by portal")

	// ErrEmptyAnswer means the solver produced no text for this attempt.
	ErrEmptyAnswer = eris.New("search: empty captcha answer")

	// ErrSessionCorrupted means an unexpected failure interrupted an attempt;
	// the page was reloaded and the code re-entered.
	ErrSessionCorrupted = eris.New("search: session corrupted mid-attempt")

	// ErrAttemptsExhausted means the captcha attempt budget is spent.
	ErrAttemptsExhausted = eris.New("search: captcha attempts exhausted")
)
