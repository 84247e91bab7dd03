package diag

import (
	"fmt"
	"strings"
)

// Code identifies a rule. Its ID is the check id matched by suppression annotations.
type Code uint16

const (
	UnknownCode Code = 0
	// RuleEventExposure flags field-backed events exposed by bridge types.
	RuleEventExposure Code = 1
	// RuleStrongMember flags fields and auto-properties holding strong references.
	RuleStrongMember Code = 2
	// RuleSubscription flags instance handlers subscribed to foreign events.
	RuleSubscription Code = 3
)

// Category is the suppression category the rules belong to.
const Category = "Memory"

// AllRules lists the rule codes in registration order.
var AllRules = []Code{RuleEventExposure, RuleStrongMember, RuleSubscription}

var (
	codeID = map[Code]string{
		UnknownCode:       "MA0000",
		RuleEventExposure: "MA0001",
		RuleStrongMember:  "MA0002",
		RuleSubscription:  "MA0003",
	}
	codeAlias = map[Code]string{
		RuleEventExposure: "EVENT",
		RuleStrongMember:  "STRONG_MEMBER",
		RuleSubscription:  "SUBSCRIPTION",
	}
	codeDescription = map[Code]string{
		UnknownCode:       "Unknown diagnostic",
		RuleEventExposure: "Event on a bridge type can leak its subscribers",
		RuleStrongMember:  "Strong reference held by a bridge type can form a retain cycle",
		RuleSubscription:  "Instance handler subscribed to a foreign event can leak this object",
	}
	codeMessage = map[Code]string{
		RuleEventExposure: "event '%s' keeps every subscriber alive as long as the native object lives; make it private, add explicit add/remove accessors or suppress with a justification",
		RuleStrongMember:  "member '%s' holds a strong reference that can form a retain cycle with its bridge container; consider a WeakReference",
		RuleSubscription:  "subscribing '%s' to an event owned by another object makes the publisher retain this instance; use a static handler or unsubscribe",
	}
)

// ID returns the stable check id (MA0001...).
func (c Code) ID() string {
	if id, ok := codeID[c]; ok {
		return id
	}
	return fmt.Sprintf("MA%04d", uint16(c))
}

// Alias returns the symbolic rule name (EVENT, STRONG_MEMBER, SUBSCRIPTION).
func (c Code) Alias() string {
	return codeAlias[c]
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

// Message formats the rule message for subject.
func (c Code) Message(subject string) string {
	format, ok := codeMessage[c]
	if !ok {
		return c.Title()
	}
	return fmt.Sprintf(format, subject)
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

// ParseCode accepts a check id (MA0002) or an alias (STRONG_MEMBER), case-insensitively.
func ParseCode(s string) (Code, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for _, c := range AllRules {
		if want == c.ID() || want == c.Alias() {
			return c, nil
		}
	}
	return UnknownCode, fmt.Errorf("unknown rule %q", s)
}
