package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var alex = NewVariantSet("Alex", "Alexandra", "AJ")

func TestNewVariantSet(t *testing.T) {
	set := NewVariantSet(" Alex ", "", "alex", "AJ")
	assert.Equal(t, VariantSet{"Alex", "AJ"}, set)
	assert.Equal(t, "Alex", set.Canonical())
	assert.Equal(t, []string{"AJ"}, set.Aliases())

	assert.Empty(t, NewVariantSet().Canonical())
	assert.Nil(t, NewVariantSet("Solo").Aliases())
}

func TestMatchesUser(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Alex to send the report", true},
		{"ask ALEXANDRA about it", true},
		{"aj: book the room", true},
		{"Review Alex's draft", true},
		{"Alexander will call back", false},
		{"Bob sends the invoice", false},
		{"the major ajax refactor", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesUser(tt.text, alex))
		})
	}
}

func TestMatchesUser_MultiWordVariant(t *testing.T) {
	set := NewVariantSet("Jordan Lee", "JL")
	assert.True(t, MatchesUser("ping jordan lee tomorrow", set))
	assert.False(t, MatchesUser("Jordan and Lee", set))
	assert.False(t, MatchesUser("Jordan", set))
}

func TestMatchesUser_EmptySet(t *testing.T) {
	assert.False(t, MatchesUser("Alex", nil))
	assert.False(t, MatchesUser("Alex", NewVariantSet("  ")))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		f    Fields
		want Match
	}{
		{"assignee is user", Fields{Title: "Send slides", Assignee: "AJ"}, MatchUser},
		{"assignee is other", Fields{Title: "Send slides to Alex", Assignee: "Bob"}, MatchOther},
		{"generic assignee ignored", Fields{Title: "Send slides", Assignee: "me"}, MatchNone},
		{"subject other", Fields{Title: "Update deck", Context: "Bob needs to update the deck before Friday."}, MatchOther},
		{"subject user", Fields{Title: "Update deck", Context: "Alexandra needs to update the deck."}, MatchUser},
		{"user subject beats other object", Fields{Context: "Alex needs to remind Bob about the deck."}, MatchUser},
		{"other subject with user object", Fields{Context: "Bob has to send Alex the figures."}, MatchOther},
		{"at mention", Fields{Title: "Review PR", Context: "@sam please review the PR"}, MatchOther},
		{"at mention user", Fields{Title: "Review PR", Context: "@aj please review the PR"}, MatchUser},
		{"assigned to", Fields{Description: "Ticket assigned to Priya Patel yesterday"}, MatchOther},
		{"line prefix", Fields{Context: "Recap\nMorgan: I'll draft the agenda"}, MatchOther},
		{"label prefix ignored", Fields{Context: "TODO: draft the agenda"}, MatchNone},
		{"pronoun subject ignored", Fields{Context: "Someone needs to book a room"}, MatchNone},
		{"passive clause ignored", Fields{Title: "Pay invoice", Context: "Invoice needs to be paid by Monday"}, MatchNone},
		{"plain mention", Fields{Title: "Call the dentist", Description: "Reminder for Alex"}, MatchUser},
		{"weekday prefix", Fields{Title: "Do it", Context: "Monday: call the plumber"}, MatchNone},
		{"component prefix", Fields{Title: "Do it", Context: "Backend: fix the login bug"}, MatchNone},
		{"plural noun subject", Fields{Title: "Do it", Context: "Tests must pass before we merge the release branch."}, MatchNone},
		{"department subject", Fields{Title: "Do it", Context: "Marketing should receive the final deck"}, MatchNone},
		{"acronym subject", Fields{Title: "Do it", Context: "QA needs to sign off on the build"}, MatchNone},
		{"two word label", Fields{Context: "Release Notes: list the fixes"}, MatchNone},
		{"weekday prefix with user", Fields{Context: "Friday: Alex should send the recap"}, MatchUser},
		{"person after label line", Fields{Context: "Backend: fix the login bug\nSam needs to review the PR"}, MatchOther},
		{"explicit acronym mention", Fields{Context: "ticket assigned to QA"}, MatchOther},
		{"nobody named", Fields{Title: "Buy milk"}, MatchNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.f, alex))
		})
	}
}

func TestMatchString(t *testing.T) {
	assert.Equal(t, "user", MatchUser.String())
	assert.Equal(t, "other", MatchOther.String())
	assert.Equal(t, "none", MatchNone.String())
}

func TestMatchText(t *testing.T) {
	for _, m := range []Match{MatchNone, MatchUser, MatchOther} {
		text, err := m.MarshalText()
		assert.NoError(t, err)
		var back Match
		assert.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, m, back)
	}
	var m Match
	assert.Error(t, m.UnmarshalText([]byte("boss")))
}
