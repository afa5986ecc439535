package gateway

import (
	"context"

	"github.com/rs/zerolog/log"

	mpkg "github.com/local/genstudio/internal/metrics"
)

// credentialHelp is the fixed terminal message when the selection flow itself
// fails. Deliberately distinct from whatever the backend reported.
const credentialHelp = "could not select an API credential; choose a valid credential and try again"

// Prompter is the credential-selection collaborator. PromptSelection suspends
// until a new credential may be active; the gateway consumes no return value
// from it.
type Prompter interface {
	Available() bool
	PromptSelection(ctx context.Context) error
}

// Gateway wraps backend calls with error classification and a one-shot
// credential-refresh retry. It holds no mutable state; concurrent calls are
// independent.
type Gateway struct {
	prompter Prompter
}

func New(p Prompter) *Gateway {
	return &Gateway{prompter: p}
}

// Failure is a terminal gateway outcome. Error() reports the working message
// (the backend's nested message when one was extracted).
type Failure struct {
	Class Class
	msg   string
	cause error
}

func (f *Failure) Error() string { return f.msg }
func (f *Failure) Unwrap() error { return f.cause }

// Run invokes op and returns its result on success. On failure the error is
// classified; if it is retryable, promptOnAuth is set and a credential
// prompter is available, the selection flow runs and op is re-invoked exactly
// once, its outcome returned unmodified. Retries never cascade.
func Run[T any](ctx context.Context, g *Gateway, op func(context.Context) (T, error), promptOnAuth bool) (T, error) {
	out, err := op(ctx)
	if err == nil {
		return out, nil
	}

	var zero T
	d := Classify(err)
	mpkg.IncDecision(string(d.Class), d.Retryable)

	if d.Retryable && promptOnAuth && g.prompter != nil && g.prompter.Available() {
		log.Warn().
			Str("class", string(d.Class)).
			Str("message", d.Message).
			Msg("retryable backend failure - requesting credential selection")

		if perr := g.prompter.PromptSelection(ctx); perr != nil {
			mpkg.IncPrompt("failed")
			log.Error().Err(perr).Msg("credential selection failed")
			return zero, &Failure{Class: d.Class, msg: credentialHelp, cause: perr}
		}
		mpkg.IncPrompt("ok")
		mpkg.IncRetry()
		return op(ctx)
	}

	return zero, &Failure{Class: d.Class, msg: d.Message, cause: err}
}
