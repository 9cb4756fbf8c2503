// Moderation gate.
//
// Offensive messages trigger a progressive timeout ladder (5, 15, 30, 60
// minutes). While a user's window is open the engine stays silent: no reply,
// no state change, no transcript row beyond the inbound message itself.
package agent

import (
	"regexp"
	"strings"
)

// offensiveRE matches direct insults aimed at the assistant. Deliberately
// narrow: false positives silence real users, false negatives just cost one
// extra rude message.
var offensiveRE = regexp.MustCompile(`\b(idiota|imbecil|burro|burra|lixo|inútil|inutil|merda|bosta|vai se f|vsf|fdp|arrombado|desgraçado|desgracado|otário|otario)\b`)

// isOffensive reports whether the text reads as abuse directed at the bot.
func isOffensive(text string) bool {
	return offensiveRE.MatchString(strings.ToLower(text))
}
