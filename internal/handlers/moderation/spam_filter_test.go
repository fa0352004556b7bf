package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
)

func TestEvaluateRulesKeyword(t *testing.T) {
	t.Parallel()

	rules := db.SpamRules{
		{Type: db.RuleTypeKeyword, Content: "spam", Action: db.ActionDelete},
	}

	assert.Nil(t, EvaluateRules("a perfectly normal message", rules))

	match := EvaluateRules("this is SPAM content", rules)
	if assert.NotNil(t, match) {
		assert.Equal(t, db.ActionDelete, match.Rule.Action)
	}

	assert.NotNil(t, EvaluateRules("spam", rules))
	assert.Nil(t, EvaluateRules("", rules))
}

func TestEvaluateRulesURL(t *testing.T) {
	t.Parallel()

	wildcard := db.SpamRules{{Type: db.RuleTypeURL, Content: "*", Action: db.ActionWarn}}
	assert.NotNil(t, EvaluateRules("check https://example.com/offer out", wildcard))
	assert.Nil(t, EvaluateRules("no links here", wildcard))

	empty := db.SpamRules{{Type: db.RuleTypeURL, Content: "", Action: db.ActionWarn}}
	assert.NotNil(t, EvaluateRules("see http://evil.tld", empty))

	domain := db.SpamRules{{Type: db.RuleTypeURL, Content: "evil.tld", Action: db.ActionMute}}
	assert.NotNil(t, EvaluateRules("see http://evil.tld/page", domain))
	assert.Nil(t, EvaluateRules("see https://example.com", domain))
}

func TestEvaluateRulesRegex(t *testing.T) {
	t.Parallel()

	rules := db.SpamRules{
		{Type: db.RuleTypeRegex, Content: `(?i)free\s+money`, Action: db.ActionMute},
	}
	assert.NotNil(t, EvaluateRules("get Free  Money now", rules))
	assert.Nil(t, EvaluateRules("money is not free", rules))
}

func TestEvaluateRulesSkipsMalformedRegex(t *testing.T) {
	t.Parallel()

	rules := db.SpamRules{
		{Type: db.RuleTypeRegex, Content: `([unclosed`, Action: db.ActionDelete},
		{Type: db.RuleTypeKeyword, Content: "casino", Action: db.ActionWarn},
	}

	// The broken rule is skipped, the following one still applies.
	match := EvaluateRules("best casino in town", rules)
	if assert.NotNil(t, match) {
		assert.Equal(t, db.ActionWarn, match.Rule.Action)
	}
}

func TestEvaluateRulesFirstMatchWins(t *testing.T) {
	t.Parallel()

	rules := db.SpamRules{
		{Type: db.RuleTypeKeyword, Content: "offer", Action: db.ActionDelete},
		{Type: db.RuleTypeURL, Content: "*", Action: db.ActionMute},
	}
	match := EvaluateRules("limited offer at https://example.com", rules)
	if assert.NotNil(t, match) {
		assert.Equal(t, db.ActionDelete, match.Rule.Action)
	}
}
