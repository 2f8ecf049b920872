package entitlement

import (
	"fmt"

	"github.com/rankwell/rankwell/internal/metrics"
)

// Denial codes. Frontends switch on these.
const (
	CodeTrialExpired                = "TRIAL_EXPIRED"
	CodeNoAgency                    = "NO_AGENCY"
	CodeDashboardLimit              = "DASHBOARD_LIMIT"
	CodeKeywordLimit                = "KEYWORD_LIMIT"
	CodeDashboardKeywordLimit       = "DASHBOARD_KEYWORD_LIMIT"
	CodeTargetKeywordLimit          = "TARGET_KEYWORD_LIMIT"
	CodeDashboardTargetKeywordLimit = "DASHBOARD_TARGET_KEYWORD_LIMIT"
	CodeTeamLimit                   = "TEAM_LIMIT"
	CodeCreditLimit                 = "CREDIT_LIMIT"
)

// TrialExpiredMessage is shown wherever an expired trial blocks an action.
const TrialExpiredMessage = "Your free trial has ended. Choose a plan to continue using Rankwell."

// Verdict is the outcome of a check. A denial always carries a message
// stating the limit and current usage.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

var allow = Verdict{Allowed: true}

func deny(code, format string, args ...interface{}) Verdict {
	return Verdict{Code: code, Message: fmt.Sprintf(format, args...)}
}

// gate handles the cases shared by every check. A nil snapshot and the admin
// snapshot allow; no agency membership and an expired trial deny.
func (s *Snapshot) gate() (Verdict, bool) {
	if s == nil {
		return allow, true
	}
	switch s.Kind {
	case KindAdminUnrestricted:
		return allow, true
	case KindNoAgencyMembership:
		return deny(CodeNoAgency, "Your account is not part of an agency, so there are no plan limits to use."), true
	}
	if s.TrialExpired {
		return Verdict{Code: CodeTrialExpired, Message: TrialExpiredMessage}, true
	}
	return Verdict{}, false
}

func observe(check string, v Verdict) Verdict {
	metrics.ObserveCheck(check, v.Allowed)
	return v
}

// CanAddDashboard reports whether one more counted dashboard fits.
func (s *Snapshot) CanAddDashboard() Verdict {
	return observe("can_add_dashboard", s.canAddDashboard())
}

func (s *Snapshot) canAddDashboard() Verdict {
	if v, done := s.gate(); done {
		return v
	}
	limit := s.EffectiveMaxDashboards
	if !limit.IsUnlimited() && s.DashboardCount >= int(limit) {
		return deny(CodeDashboardLimit,
			"Your %s plan allows up to %d dashboards and you are using %d. Upgrade your plan or buy extra dashboard slots to add more.",
			s.Tier.Name, int(limit), s.DashboardCount)
	}
	return allow
}

// CanAddKeywords reports whether n more tracked keywords fit on the dashboard.
// The account-wide cap is checked first; agency-class tiers also enforce the
// per-dashboard limit.
func (s *Snapshot) CanAddKeywords(clientID string, n int) Verdict {
	return observe("can_add_keywords", s.canAddPhrases(clientID, n, false))
}

// CanAddTargetKeywords applies the keyword rules to target keywords, which
// are counted independently.
func (s *Snapshot) CanAddTargetKeywords(clientID string, n int) Verdict {
	return observe("can_add_target_keywords", s.canAddPhrases(clientID, n, true))
}

func (s *Snapshot) canAddPhrases(clientID string, n int, target bool) Verdict {
	if v, done := s.gate(); done {
		return v
	}
	total, perDashboard := s.KeywordsTotal, s.KeywordsPerDashboard
	accountCode, dashboardCode, noun := CodeKeywordLimit, CodeDashboardKeywordLimit, "tracked keywords"
	if target {
		total, perDashboard = s.TargetKeywordsTotal, s.TargetKeywordsPerDashboard
		accountCode, dashboardCode, noun = CodeTargetKeywordLimit, CodeDashboardTargetKeywordLimit, "target keywords"
	}
	if n < 0 {
		n = 0
	}
	if limit := s.EffectiveKeywordCap; !limit.IsUnlimited() && total+n > int(limit) {
		return deny(accountCode,
			"Your %s plan allows up to %d %s across your account and you are using %d, so %d more would exceed it.",
			s.Tier.Name, int(limit), noun, total, n)
	}
	if s.Tier.IsBusiness() {
		return allow
	}
	if limit := s.Tier.KeywordsPerDashboard; !limit.IsUnlimited() && perDashboard[clientID]+n > int(limit) {
		return deny(dashboardCode,
			"Your %s plan allows up to %d %s per dashboard and this dashboard has %d, so %d more would exceed it.",
			s.Tier.Name, int(limit), noun, perDashboard[clientID], n)
	}
	return allow
}

// CanAddTeamMember reports whether one more member seat fits.
func (s *Snapshot) CanAddTeamMember() Verdict {
	return observe("can_add_team_member", s.canAddTeamMember())
}

func (s *Snapshot) canAddTeamMember() Verdict {
	if v, done := s.gate(); done {
		return v
	}
	if limit := s.Tier.MaxTeamUsers; !limit.IsUnlimited() && s.TeamMembers >= int(limit) {
		return deny(CodeTeamLimit,
			"Your %s plan allows up to %d team members and you have %d. Upgrade your plan to invite more.",
			s.Tier.Name, int(limit), s.TeamMembers)
	}
	return allow
}

// HasResearchCredits reports whether need credits remain this period.
func (s *Snapshot) HasResearchCredits(need int) Verdict {
	return observe("has_research_credits", s.hasResearchCredits(need))
}

func (s *Snapshot) hasResearchCredits(need int) Verdict {
	if v, done := s.gate(); done {
		return v
	}
	if s.CreditsUsed+need > s.CreditsLimit {
		resets := "at the start of next month"
		if s.CreditsResetAt != nil {
			resets = "after " + s.CreditsResetAt.Format("Jan 2, 2006")
		}
		return deny(CodeCreditLimit,
			"You have used %d of %d research credits this month and this lookup needs %d. Credits reset %s, or buy a keyword lookup add-on.",
			s.CreditsUsed, s.CreditsLimit, need, resets)
	}
	return allow
}
