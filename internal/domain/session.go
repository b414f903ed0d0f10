package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Method represents how a session was consumed
type Method string

const (
	MethodJoint  Method = "Joint"
	MethodBong   Method = "Bong"
	MethodVape   Method = "Vape"
	MethodEdible Method = "Edible"
	MethodOther  Method = "Other"
)

// Methods lists the methods offered by the detailed log, in display order
var Methods = []Method{MethodJoint, MethodBong, MethodVape, MethodEdible}

// Emoji returns the icon shown next to a method
func (m Method) Emoji() string {
	switch m {
	case MethodJoint:
		return "🚬"
	case MethodBong:
		return "⚗️"
	case MethodVape:
		return "💨"
	case MethodEdible:
		return "🍪"
	default:
		return "🔥"
	}
}

// Normalize maps blank or unknown methods to Other
func (m Method) Normalize() Method {
	switch m {
	case MethodJoint, MethodBong, MethodVape, MethodEdible:
		return m
	default:
		return MethodOther
	}
}

const (
	// StrainUnknown is the label used when a session has no strain
	StrainUnknown = "Unknown"
	// StrainQuickLog marks sessions created by the quick-log shortcut
	StrainQuickLog = "Quick Log"

	// DefaultGrams is used whenever an amount cannot be parsed
	DefaultGrams = 0.5
	// QuickLogAmount is the fixed quantity recorded by a quick log
	QuickLogAmount = "0.5g"
	// DetailedLogAmount is the amount preselected in the detailed log
	DetailedLogAmount = "1.0g"
)

// Amounts lists the quantities offered by the detailed log
var Amounts = []string{"0.5g", "1.0g", "1.5g", "2.0g"}

// Session represents one logged consumption event
type Session struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Method    Method    `json:"method"`
	Amount    string    `json:"amount"`
	Strain    string    `json:"strain,omitempty"`
	Cost      *float64  `json:"cost,omitempty"`
}

// NewSession creates a session with a fresh id
func NewSession(at time.Time, method Method, amount, strain string, cost *float64) Session {
	return Session{
		ID:        uuid.NewString(),
		Timestamp: at,
		Method:    method,
		Amount:    amount,
		Strain:    strain,
		Cost:      cost,
	}
}

// Grams returns the parsed magnitude of the amount, falling back to DefaultGrams
func (s Session) Grams() float64 {
	g, ok := ParseGrams(s.Amount)
	if !ok {
		return DefaultGrams
	}
	return g
}

// HasCost reports whether the session carries an explicit cost.
// A stored zero is treated as absent.
func (s Session) HasCost() bool {
	return s.Cost != nil && *s.Cost != 0
}

// CostAt returns the explicit cost if present, otherwise grams times rate
func (s Session) CostAt(rate float64) float64 {
	if s.HasCost() {
		return *s.Cost
	}
	return s.Grams() * rate
}

// ParseGrams parses the leading numeric part of an amount such as "1.5g"
func ParseGrams(amount string) (float64, bool) {
	amount = strings.TrimSpace(amount)
	end := 0
	seenDigit, seenDot := false, false
scan:
	for i, r := range amount {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			end = i + 1
		case r == '.' && !seenDot:
			seenDot = true
		case (r == '-' || r == '+') && i == 0:
		default:
			break scan
		}
	}
	if !seenDigit {
		return 0, false
	}
	g, err := strconv.ParseFloat(amount[:end], 64)
	if err != nil {
		return 0, false
	}
	return g, true
}

// SessionRepository defines the storage of the sessions document.
// Sessions are kept newest first.
type SessionRepository interface {
	Load(scope string) ([]Session, error)
	Prepend(scope string, session Session) ([]Session, error)
	Overwrite(scope string, sessions []Session) ([]Session, error)
	Clear(scope string) error
}
