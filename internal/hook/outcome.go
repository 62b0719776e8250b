package hook

import (
	"fmt"
	"strconv"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/mjl-/mox/smtp"
)

// Action is the verdict a hook returns to the host.
type Action int

const (
	// Continue passes the decision on to the next hook.
	Continue Action = iota
	// Accept accepts the recipient or message.
	Accept
	// TempFail rejects with a transient error; the sender retries later.
	TempFail
	// Reject rejects permanently.
	Reject
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Accept:
		return "accept"
	case TempFail:
		return "tempfail"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Outcome is an Action together with the SMTP reply to send, if any.
type Outcome struct {
	Action Action
	Reply  *gosmtp.SMTPError
}

func (o Outcome) String() string {
	if o.Reply == nil {
		return o.Action.String()
	}
	return fmt.Sprintf("%s (%s)", o.Action, o.Reply.Error())
}

// Err returns the reply as an error for hosts built on go-smtp sessions,
// nil for Continue and Accept.
func (o Outcome) Err() error {
	if o.Reply == nil {
		return nil
	}
	return o.Reply
}

const (
	msgBackendFailure = "Backend failure. Please retry later."
	msgBadAddress     = "Bad destination mailbox address syntax."
	msgEmptyList      = "Distribution list has no deliverable members."
)

var (
	outcomeContinue = Outcome{Action: Continue}
	outcomeAccept   = Outcome{Action: Accept}
)

func tempFail(secode, msg string) Outcome {
	return Outcome{Action: TempFail, Reply: reply(smtp.C451LocalErr, secode, msg)}
}

func reject(secode, msg string) Outcome {
	return Outcome{Action: Reject, Reply: reply(smtp.C550MailboxUnavail, secode, msg)}
}

// reply builds an SMTP reply. The enhanced status class is taken from the
// first digit of code, secode holds subject and detail as in "1.3".
func reply(code int, secode, msg string) *gosmtp.SMTPError {
	return &gosmtp.SMTPError{
		Code:         code,
		EnhancedCode: enhancedCode(code/100, secode),
		Message:      msg,
	}
}

func enhancedCode(class int, secode string) gosmtp.EnhancedCode {
	subject, detail, _ := strings.Cut(secode, ".")
	s, err := strconv.Atoi(subject)
	if err != nil {
		return gosmtp.NoEnhancedCode
	}
	d, err := strconv.Atoi(detail)
	if err != nil {
		return gosmtp.NoEnhancedCode
	}
	return gosmtp.EnhancedCode{class, s, d}
}
