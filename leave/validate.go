/*
validate.go - Application validation

PURPOSE:
  Checks a proposed application against the current balance and the calendar.
  Failing validation is a routine outcome, so Validate returns a Result; it
  never returns an error for well-formed input.

CHECKS (all evaluated, none short-circuit):
  1. days requested must be positive                 blocking
  2. days requested <= available balance             blocking
  3. start <= end                                    blocking
  4. start >= today                                  blocking
  5. days over the category's recommended maximum    advisory

  OK is true iff no blocking message fired. Advisory messages never change OK.

OVERRIDES:
  A caller may force through a Result whose blocking messages are all
  overridable (insufficient balance, past start). A non-positive length or a
  reversed range can never be forced: the application itself would be
  malformed.

SEE ALSO:
  - policies.go: RecommendedMaxConsecutive
  - service.go: Submit refuses on blocking messages unless forced
*/
package leave

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
)

// Severity distinguishes messages that refuse a submission from advice.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityAdvisory Severity = "advisory"
)

// Code identifies a validation rule.
type Code string

const (
	CodeNonPositiveDays     Code = "non_positive_days"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeReversedRange       Code = "reversed_range"
	CodePastStart           Code = "past_start"
	CodeOverRecommended     Code = "over_recommended_max"
)

// overridable lists the blocking codes a forced submission may bypass.
var overridable = map[Code]bool{
	CodeInsufficientBalance: true,
	CodePastStart:           true,
}

// Message is one validation finding.
type Message struct {
	Code     Code
	Severity Severity
	Text     string
}

func (m Message) Blocking() bool { return m.Severity == SeverityBlocking }

// Proposal is the input to Validate.
type Proposal struct {
	Category  Category
	Days      int
	Remaining int
	Start     generic.Date
	End       generic.Date
	Today     generic.Date
}

// Result is the outcome of Validate.
type Result struct {
	OK       bool
	Messages []Message
}

// Blocking returns the blocking messages in check order.
func (r Result) Blocking() []Message {
	return r.filter(SeverityBlocking)
}

// Advisories returns the advisory messages in check order.
func (r Result) Advisories() []Message {
	return r.filter(SeverityAdvisory)
}

func (r Result) filter(s Severity) []Message {
	var out []Message
	for _, m := range r.Messages {
		if m.Severity == s {
			out = append(out, m)
		}
	}
	return out
}

// Texts returns every message text in check order.
func (r Result) Texts() []string {
	out := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = m.Text
	}
	return out
}

// Has reports whether a message with code fired.
func (r Result) Has(code Code) bool {
	for _, m := range r.Messages {
		if m.Code == code {
			return true
		}
	}
	return false
}

// Overridable reports whether every blocking message may be forced through.
func (r Result) Overridable() bool {
	for _, m := range r.Blocking() {
		if !overridable[m.Code] {
			return false
		}
	}
	return true
}

// Validate runs every check against p.
func Validate(p Proposal) Result {
	var msgs []Message
	block := func(code Code, text string) {
		msgs = append(msgs, Message{Code: code, Severity: SeverityBlocking, Text: text})
	}

	if p.Days <= 0 {
		block(CodeNonPositiveDays, "days requested must be positive")
	}
	if p.Days > p.Remaining {
		block(CodeInsufficientBalance, fmt.Sprintf("insufficient balance, available: %d", p.Remaining))
	}
	if p.Start.After(p.End) {
		block(CodeReversedRange, "start date after end date")
	}
	if p.Start.Before(p.Today) {
		block(CodePastStart, "cannot apply for leave in the past")
	}

	if policy, ok := PolicyFor(p.Category); ok && policy.RecommendedMaxConsecutive > 0 &&
		p.Days > policy.RecommendedMaxConsecutive {
		msgs = append(msgs, Message{
			Code:     CodeOverRecommended,
			Severity: SeverityAdvisory,
			Text: fmt.Sprintf("%s requests over %d consecutive days are not recommended",
				strings.ToLower(string(p.Category)), policy.RecommendedMaxConsecutive),
		})
	}

	ok := true
	for _, m := range msgs {
		if m.Blocking() {
			ok = false
			break
		}
	}
	return Result{OK: ok, Messages: msgs}
}

// =============================================================================
// VALIDATION FAILURE
// =============================================================================

// ErrValidationFailed is the sentinel behind every ValidationFailure.
var ErrValidationFailed = errors.New("validation failed")

// ValidationFailure is returned by Service.Submit when a Result blocks.
type ValidationFailure struct {
	Result Result
}

func (e *ValidationFailure) Error() string {
	texts := make([]string, 0, len(e.Result.Messages))
	for _, m := range e.Result.Blocking() {
		texts = append(texts, m.Text)
	}
	return "validation failed: " + strings.Join(texts, "; ")
}

func (e *ValidationFailure) Unwrap() error {
	return ErrValidationFailed
}
