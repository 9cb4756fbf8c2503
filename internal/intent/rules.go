// Deterministic rule tier.
//
// The last line of defense in the cascade: pattern matching over Portuguese
// (and some English) phrasings. ClassifyRules is a total function — it never
// panics for any input, including empty and non-ASCII strings, and always
// returns a confidence in [0,1].
package intent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
)

var (
	urlRE = regexp.MustCompile(`https?://[^\s<>"]+`)

	confirmRE  = regexp.MustCompile(`^(sim|s|yes|pode|claro|ok|okay|beleza|isso|confirmo|confirma|confirmar|perfeito|exato|certo|uhum|aham|👍|✅)[.!\s]*$`)
	denyRE     = regexp.MustCompile(`^(não|nao|n|no|nope|cancela|cancelar|deixa|esquece|para|pare|errado|outro|outra)[.!\s]*$`)
	denyLongRE = regexp.MustCompile(`\b(não é ess|nao é ess|nao e ess|deixa pra lá|deixa pra la|esquece isso|cancela isso)\b`)

	deleteAllRE  = regexp.MustCompile(`\b(apaga|apague|deleta|delete|remove|remova|limpa|limpar)\b.{0,20}\b(tudo|todas|todos)\b`)
	deleteVerbRE = regexp.MustCompile(`^\s*(apaga|apague|deleta|delete|remove|remova|exclui|exclua)\b\s*(.*)$`)

	listRE   = regexp.MustCompile(`\b(o que (você|vc|tu) (tem|guardou|salvou)|minhas (notas|memórias|memorias)|(me )?(lista|listar|mostra|mostrar)\b|tudo que (eu )?salvei)`)
	searchRE = regexp.MustCompile(`^\s*(busca|buscar|procura|procurar|acha|achar|encontra|encontrar|pesquisa|pesquisar)\b\s*(.*)$`)

	nameRE = regexp.MustCompile(`\b(qual (é |e )?(o )?seu nome|como (você|vc|tu) se chama|quem (é|e) (você|vc|tu))\b`)

	renameRE = regexp.MustCompile(`\b(?:te chamar de|(?:mude|muda|troca|trocar|altere|altera) (?:o )?(?:seu )?nome (?:para|pra))\s+(\S+)`)

	saveVerbRE = regexp.MustCompile(`^\s*(salva|salvar|guarda|guardar|anota|anotar|adiciona|adicionar|registra|registrar)\b\s*(.*)$`)

	casualRE = regexp.MustCompile(`^(oi|olá|ola|eai|e aí|e ai|opa|hey|bom dia|boa tarde|boa noite|tudo bem\??|obrigado|obrigada|valeu|tchau|até mais|ate mais)[.!\s]*$`)

	questionStartRE = regexp.MustCompile(`^\s*(qual|quais|quando|onde|quem|como|por que|porque|o que|oq|será|sera)\b`)

	numberTokenRE = regexp.MustCompile(`\b\d{1,2}\b`)
)

// savePreviousPhrases are the fixed back-references meaning "save the thing I
// just sent". Matched whole after trimming punctuation.
var savePreviousPhrases = map[string]struct{}{
	"salva isso":     {},
	"salva isso aí":  {},
	"salva isso ai":  {},
	"salva essa":     {},
	"guarda isso":    {},
	"guarda aí":      {},
	"guarda ai":      {},
	"anota isso":     {},
	"pode salvar":    {},
	"pode salvar?":   {},
	"pode guardar":   {},
	"salva aí":       {},
	"salva ai":       {},
}

// itemTypeWords maps Portuguese type words to the item type enum.
var itemTypeWords = map[string]domain.ItemType{
	"nota":    domain.ItemNote,
	"notas":   domain.ItemNote,
	"anotação": domain.ItemNote,
	"filme":   domain.ItemMovie,
	"filmes":  domain.ItemMovie,
	"série":   domain.ItemTVShow,
	"serie":   domain.ItemTVShow,
	"séries":  domain.ItemTVShow,
	"series":  domain.ItemTVShow,
	"vídeo":   domain.ItemVideo,
	"video":   domain.ItemVideo,
	"vídeos":  domain.ItemVideo,
	"videos":  domain.ItemVideo,
	"link":    domain.ItemLink,
	"links":   domain.ItemLink,
}

// ordinalWords maps ordinal words to 1-based positions.
var ordinalWords = map[string]int{
	"primeiro": 1, "primeira": 1,
	"segundo": 2, "segunda": 2,
	"terceiro": 3, "terceira": 3,
	"quarto": 4, "quarta": 4,
	"quinto": 5, "quinta": 5,
	"sexto": 6, "sexta": 6,
	"sétimo": 7, "setimo": 7, "sétima": 7, "setima": 7,
}

// ClassifyRules is the deterministic fallback classifier. Worst case it
// returns intent unknown with confidence 0.5.
func ClassifyRules(text string) Result {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return Unknown()
	}

	// Confirmation / denial first: they are short and collide with nothing.
	if confirmRE.MatchString(norm) {
		return Result{Intent: IntentConfirm, Action: ActionConfirm, Confidence: 0.95, Source: "rules"}
	}
	if denyRE.MatchString(norm) || denyLongRE.MatchString(norm) {
		return Result{Intent: IntentDeny, Action: ActionDeny, Confidence: 0.95, Source: "rules"}
	}

	// Numeric / ordinal selection ("3", "1 e 3", "o primeiro").
	if sel := ParseSelections(norm); len(sel) > 0 && isSelectionOnly(norm) {
		return Result{
			Intent:     IntentConfirm,
			Action:     ActionConfirm,
			Confidence: 0.9,
			Entities:   Entities{Selections: sel},
			Source:     "rules",
		}
	}

	// "Save the previous thing" back-references.
	trimmed := strings.Trim(norm, " .!?,")
	if _, ok := savePreviousPhrases[trimmed]; ok {
		return Result{Intent: IntentSave, Action: ActionSavePrevious, Confidence: 0.9, Source: "rules"}
	}

	if deleteAllRE.MatchString(norm) {
		return Result{Intent: IntentDelete, Action: ActionDeleteAll, Confidence: 0.95, Source: "rules"}
	}
	if m := deleteVerbRE.FindStringSubmatch(norm); m != nil {
		target := strings.TrimSpace(m[2])
		return Result{
			Intent:     IntentDelete,
			Action:     ActionDeleteItem,
			Confidence: 0.85,
			Entities:   Entities{Target: target, ItemType: findItemType(norm)},
			Source:     "rules",
		}
	}

	if nameRE.MatchString(norm) {
		return Result{Intent: IntentInfo, Action: ActionGetName, Confidence: 0.95, Source: "rules"}
	}
	if m := renameRE.FindStringSubmatch(norm); m != nil {
		return Result{
			Intent:     IntentSettings,
			Action:     ActionUpdateSettings,
			Confidence: 0.9,
			Entities:   Entities{Target: strings.Trim(m[1], `"'.!`)},
			Source:     "rules",
		}
	}

	if m := searchRE.FindStringSubmatch(norm); m != nil {
		return Result{
			Intent:     IntentSearch,
			Action:     ActionSearchItems,
			Confidence: 0.9,
			Entities:   Entities{Query: strings.TrimSpace(m[2]), ItemType: findItemType(norm)},
			Source:     "rules",
		}
	}
	if listRE.MatchString(norm) {
		return Result{
			Intent:     IntentSearch,
			Action:     ActionListItems,
			Confidence: 0.85,
			Entities:   Entities{ItemType: findItemType(norm)},
			Source:     "rules",
		}
	}

	if m := saveVerbRE.FindStringSubmatch(norm); m != nil {
		ents := Entities{
			Query:    strings.TrimSpace(m[2]),
			ItemType: findItemType(norm),
			URL:      firstURL(text),
		}
		if ents.URL != "" && ents.ItemType == "" {
			ents.ItemType = domain.ItemLink
		}
		return Result{Intent: IntentSave, Action: ActionSaveContent, Confidence: 0.9, Entities: ents, Source: "rules"}
	}

	// A bare URL is an implicit save request.
	if u := firstURL(text); u != "" && len(strings.Fields(norm)) <= 3 {
		return Result{
			Intent:     IntentSave,
			Action:     ActionSaveContent,
			Confidence: 0.85,
			Entities:   Entities{Query: strings.TrimSpace(text), URL: u, ItemType: domain.ItemLink},
			Source:     "rules",
		}
	}

	if casualRE.MatchString(norm) {
		return Result{Intent: IntentCasual, Action: ActionCasualChat, Confidence: 0.85, Source: "rules"}
	}

	if questionStartRE.MatchString(norm) || strings.HasSuffix(norm, "?") {
		return Result{Intent: IntentInfo, Action: ActionGetInfo, Confidence: 0.6, Entities: Entities{Query: strings.TrimSpace(text)}, Source: "rules"}
	}

	return Unknown()
}

// ParseSelections extracts option picks from the text: digits and ordinal
// words, duplicates collapsed, ascending order. Zero is a valid pick (the
// candidate list offers "0. Nenhum desses"). Returns nil when the text
// carries none.
func ParseSelections(text string) []int {
	norm := strings.ToLower(text)
	seen := map[int]struct{}{}
	for _, tok := range numberTokenRE.FindAllString(norm, -1) {
		if n, err := strconv.Atoi(tok); err == nil && n >= 0 {
			seen[n] = struct{}{}
		}
	}
	for word, n := range ordinalWords {
		if strings.Contains(norm, word) {
			seen[n] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// isSelectionOnly reports whether the text is nothing but a selection (bare
// numbers, ordinals, and connective filler). "3" qualifies; "salva os 3
// primeiros filmes" does not.
func isSelectionOnly(norm string) bool {
	fields := strings.FieldsFunc(norm, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!'
	})
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if _, err := strconv.Atoi(f); err == nil {
			continue
		}
		if _, ok := ordinalWords[f]; ok {
			continue
		}
		switch f {
		case "e", "o", "a", "ou", "opção", "opcao", "número", "numero":
			continue
		}
		return false
	}
	return true
}

// LooksLikeNewRequest reports whether a reply inside a clarification flow
// reads as a fresh question or command rather than an answer to the menu.
func LooksLikeNewRequest(text string) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return false
	}
	if questionStartRE.MatchString(norm) || strings.HasSuffix(norm, "?") {
		return true
	}
	return saveVerbRE.MatchString(norm) ||
		searchRE.MatchString(norm) ||
		deleteVerbRE.MatchString(norm) ||
		deleteAllRE.MatchString(norm) ||
		listRE.MatchString(norm)
}

// findItemType returns the first recognized item-type word in the text.
func findItemType(norm string) domain.ItemType {
	for _, f := range strings.Fields(norm) {
		if t, ok := itemTypeWords[strings.Trim(f, ".,!?")]; ok {
			return t
		}
	}
	return ""
}

// MatchItemType exposes the type-word lookup for natural-language
// clarification replies ("é um filme").
func MatchItemType(text string) domain.ItemType {
	return findItemType(strings.ToLower(text))
}

// firstURL returns the first URL in the raw (case-preserved) text.
func firstURL(text string) string {
	return urlRE.FindString(text)
}

// URLPattern exposes the URL matcher for reuse outside the classifier.
func URLPattern() *regexp.Regexp {
	return urlRE
}
