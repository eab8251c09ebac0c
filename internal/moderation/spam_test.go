package moderation

import "testing"

// spamOnly returns a filter with no keyword blocklist so the spam
// heuristics are exercised in isolation.
func spamOnly() *Filter {
	return NewFilterWithTerms(nil)
}

func checkBlockedAs(t *testing.T, f *Filter, input, term string) {
	t.Helper()
	res := f.Check(input)
	if !res.Blocked {
		t.Fatalf("Check(%q) not blocked, want term %q", input, term)
	}
	if res.Reason != "spam_pattern" {
		t.Errorf("Check(%q).Reason = %q, want spam_pattern", input, res.Reason)
	}
	if res.Term != term {
		t.Errorf("Check(%q).Term = %q, want %q", input, res.Term, term)
	}
}

func checkClean(t *testing.T, f *Filter, input string) {
	t.Helper()
	if res := f.Check(input); res.Blocked {
		t.Errorf("Check(%q) blocked as %s/%s, want clean", input, res.Reason, res.Term)
	}
}

func TestCheck_LinksBlocked(t *testing.T) {
	f := spamOnly()

	blocked := []string{
		"my pics are at http://pics.example-cdn.ru/u/991",
		"find me on https://chatmate.xyz/add?u=44",
		"add me www.chatmate.app everyone",
		"best deals at megadeals.xyz/win today",
		"see gallery.io/u/me for more",
	}
	for _, msg := range blocked {
		checkBlockedAs(t, f, msg, "url")
	}

	// Decimals and version strings carry dots but no path.
	checkClean(t, f, "i run client v2.4 build 7")
	checkClean(t, f, "pi is roughly 3.14 right")
}

func TestCheck_PhoneNumbersBlocked(t *testing.T) {
	f := spamOnly()

	blocked := []string{
		"text me at 555-201-7788",
		"(020) 7946 0958",
		"call 555.014.2299 after six",
		"+44 7700 900123",
		"reach me on 555 014 2299 tonight",
	}
	for _, msg := range blocked {
		checkBlockedAs(t, f, msg, "phone")
	}

	checkClean(t, f, "i scored 98 points in 12 rounds")
}

func TestCheck_CharacterFloodBlocked(t *testing.T) {
	f := spamOnly()

	checkBlockedAs(t, f, "nooooo way", "char_flood")
	checkBlockedAs(t, f, "really?!!!!!", "char_flood")
	checkBlockedAs(t, f, "=====", "char_flood")

	// Four repeats is still within the limit.
	checkClean(t, f, "soooo fun")
}

func TestCheck_WordFloodBlocked(t *testing.T) {
	f := spamOnly()

	checkBlockedAs(t, f, "pay pay pay me", "word_flood")
	checkBlockedAs(t, f, "JOIN join Join now", "word_flood")

	checkClean(t, f, "very very nice")
}

// A blocklisted keyword wins over a spam pattern in the same message, so the
// log names the more serious violation.
func TestCheck_KeywordPrecedesSpamPattern(t *testing.T) {
	f := NewFilterWithTerms([]string{"giveaway"})

	res := f.Check("giveaway live at www.freestuff.ru/now")
	if !res.Blocked {
		t.Fatal("expected message to be blocked")
	}
	if res.Reason != "blocked_keyword" {
		t.Errorf("Reason = %q, want blocked_keyword", res.Reason)
	}
	if res.Term != "giveaway" {
		t.Errorf("Term = %q, want giveaway", res.Term)
	}
}
