// Canned replies and list renderers. Every user-visible string the engine
// emits without the LLM lives here, so the dialogue reads consistently and
// tests can assert on exact text.
package agent

import (
	"fmt"
	"strings"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
	"github.com/psousaj/nexo-ai-sub000/internal/provider"
	"github.com/psousaj/nexo-ai-sub000/internal/tools"
)

const (
	replyFallback       = "Desculpa, tive um problema aqui. Pode tentar de novo?"
	replyCancelled      = "Ok, deixa pra lá! 👍"
	replyNothingToDo    = "Certo! Se precisar salvar ou buscar algo, é só falar."
	replyNoPrevious     = "Não achei uma mensagem anterior para salvar."
	replySavedPlain     = "Não achei no catálogo, mas salvei do seu jeito ✅"
	replyPickAgain      = "Sem problema! Qual das opções então?"
	replyOutOfRange     = "Escolhe um número da lista, por favor."
	replyGaveUp         = "Não consegui entender o tipo, então salvei como nota 📝 Vamos falar de outra coisa?"
	replyClarifyDeflect = "Tudo bem, vamos deixar isso de lado por enquanto 🙂"
	replyOffense        = "Vamos manter o respeito, por favor. Vou ficar um tempo em silêncio: %s."
	replyCasualIdle     = "Oi! 👋 Sou seu assistente de memória: posso salvar filmes, séries, notas, vídeos e links. O que você quer guardar?"
	replyWhatCanIDo     = "Eu salvo e busco suas memórias: filmes, séries, notas, vídeos e links. Manda algo tipo \"salva o filme Interestelar\"."
	replyBatchDone      = "Prontinho! Salvei %d e pulei %d."
	replyConfirmFinal   = "Confirma esse?"
)

// clarifyMenu renders the dynamic clarification menu from the enabled save
// tools. The last index always cancels, so the menu never dead-ends.
func clarifyMenu(pending string, saveTools []tools.Tool) (string, []provider.Button) {
	var b strings.Builder
	fmt.Fprintf(&b, "Quer que eu salve %q como o quê?\n", clampText(pending, 80))
	buttons := make([]provider.Button, 0, len(saveTools)+1)
	for i, t := range saveTools {
		label := capitalize(itemTypeLabelPT(domain.ItemType(t.SaveType)))
		fmt.Fprintf(&b, "%d. %s\n", i+1, label)
		buttons = append(buttons, provider.Button{
			Text: fmt.Sprintf("%d. %s", i+1, label),
			Data: fmt.Sprintf("%s%d", provider.CallbackSelectPrefix, i+1),
		})
	}
	cancelIdx := len(saveTools) + 1
	fmt.Fprintf(&b, "%d. Nada, deixa pra lá", cancelIdx)
	buttons = append(buttons, provider.Button{
		Text: fmt.Sprintf("%d. Cancelar", cancelIdx),
		Data: provider.CallbackChooseAgain,
	})
	return b.String(), buttons
}

// candidateList renders a capped candidate list with selection buttons.
// Option 0 saves without catalog details.
func candidateList(query string, cands []domain.Candidate) (string, []provider.Button) {
	var b strings.Builder
	fmt.Fprintf(&b, "Achei essas opções para %q:\n", clampText(query, 60))
	buttons := make([]provider.Button, 0, len(cands)+1)
	for i, c := range cands {
		line := fmt.Sprintf("%d. %s", i+1, c.Title)
		if c.Year != "" {
			line += fmt.Sprintf(" (%s)", c.Year)
		}
		b.WriteString(line)
		b.WriteString("\n")
		buttons = append(buttons, provider.Button{
			Text: line,
			Data: fmt.Sprintf("%s%d", provider.CallbackSelectPrefix, i+1),
		})
	}
	b.WriteString("0. Nenhum desses, salva assim mesmo")
	buttons = append(buttons, provider.Button{
		Text: "0. Nenhum desses",
		Data: provider.CallbackSelectPrefix + "0",
	})
	return b.String(), buttons
}

// candidateDetails renders the final confirmation card for one candidate.
func candidateDetails(c domain.Candidate) (string, []provider.Button) {
	var b strings.Builder
	b.WriteString(c.Title)
	if c.Year != "" {
		fmt.Fprintf(&b, " (%s)", c.Year)
	}
	if len(c.Genres) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(c.Genres, ", "))
	}
	if c.Overview != "" {
		b.WriteString("\n\n")
		b.WriteString(c.Overview)
	}
	b.WriteString("\n\n")
	b.WriteString(replyConfirmFinal)
	buttons := []provider.Button{
		{Text: "✅ Sim, é esse", Data: provider.CallbackConfirmFinal},
		{Text: "🔄 Escolher outro", Data: provider.CallbackChooseAgain},
	}
	return b.String(), buttons
}

func itemTypeLabelPT(t domain.ItemType) string {
	switch t {
	case domain.ItemNote:
		return "nota"
	case domain.ItemMovie:
		return "filme"
	case domain.ItemTVShow:
		return "série"
	case domain.ItemVideo:
		return "vídeo"
	case domain.ItemLink:
		return "link"
	}
	return string(t)
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func clampText(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string(r[:maxRunes-1])) + "…"
}
