package moderation

import (
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
)

var urlPattern = regexp.MustCompile(`http[s]?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\(\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)

// Match names the first rule a message content violated.
type Match struct {
	Rule   db.SpamRule
	Reason string
}

// EvaluateRules checks content against rules in order and returns the first
// match, or nil when the content is clean. A broken rule never blocks a
// message: malformed regex rules are skipped.
func EvaluateRules(content string, rules db.SpamRules) *Match {
	if content == "" || len(rules) == 0 {
		return nil
	}
	lowered := strings.ToLower(content)

	for _, rule := range rules {
		switch rule.Type {
		case db.RuleTypeKeyword:
			if rule.Content == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(rule.Content)) {
				return &Match{Rule: rule, Reason: "keyword " + rule.Content}
			}

		case db.RuleTypeURL:
			urls := urlPattern.FindAllString(content, -1)
			if len(urls) == 0 {
				continue
			}
			if rule.Content == "" || rule.Content == "*" {
				return &Match{Rule: rule, Reason: "url " + urls[0]}
			}
			needle := strings.ToLower(rule.Content)
			for _, u := range urls {
				if strings.Contains(strings.ToLower(u), needle) {
					return &Match{Rule: rule, Reason: "url " + u}
				}
			}

		case db.RuleTypeRegex:
			re, err := regexp.Compile("(?i)" + rule.Content)
			if err != nil {
				log.WithError(err).WithField("rule", rule.Content).Warn("skipping malformed regex rule")
				continue
			}
			if re.MatchString(content) {
				return &Match{Rule: rule, Reason: "regex " + rule.Content}
			}

		default:
			log.WithField("type", rule.Type).Warn("skipping rule of unknown type")
		}
	}
	return nil
}
