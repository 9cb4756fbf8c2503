package agent

import (
	"strings"
	"testing"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
	"github.com/psousaj/nexo-ai-sub000/internal/provider"
)

func matrixSearcher() mappedSearcher {
	return mappedSearcher{byQuery: map[string][]domain.Candidate{
		"o filme matrix": {
			{ExternalID: "tmdb:603", Title: "Matrix", Year: "1999", Overview: "Um hacker descobre a verdade.", PosterURL: "https://img.example/matrix.jpg"},
			{ExternalID: "tmdb:604", Title: "Matrix Reloaded", Year: "2003"},
			{ExternalID: "tmdb:605", Title: "Matrix Revolutions", Year: "2003"},
		},
		"o filme duna": {
			{ExternalID: "tmdb:438631", Title: "Duna", Year: "2021", PosterURL: "https://img.example/duna.jpg"},
		},
	}}
}

func TestCandidateFlow_PickAndConfirm(t *testing.T) {
	f := newFixture(t, matrixSearcher())

	f.send(t, "salva o filme matrix")
	list := f.channel.last(t)
	if !strings.Contains(list.text, "Achei essas opções") || !strings.Contains(list.text, "2. Matrix Reloaded (2003)") {
		t.Fatalf("expected candidate list, got %q", list.text)
	}
	if len(list.buttons) != 4 || list.buttons[0].Data != "select_1" || list.buttons[3].Data != "select_0" {
		t.Fatalf("unexpected buttons: %+v", list.buttons)
	}
	if f.conv(t).State != domain.StateAwaitingConfirm {
		t.Fatalf("expected awaiting confirmation, got %s", f.conv(t).State)
	}

	f.send(t, "2")
	card := f.channel.last(t)
	if !strings.Contains(card.text, "Matrix Reloaded (2003)") || !strings.Contains(card.text, replyConfirmFinal) {
		t.Fatalf("expected detail card, got %q", card.text)
	}
	if f.conv(t).State != domain.StateAwaitingFinal {
		t.Fatalf("expected final confirmation, got %s", f.conv(t).State)
	}

	f.send(t, "sim")
	if got := f.channel.last(t).text; got != "Salvei Matrix Reloaded (2003) ✅" {
		t.Fatalf("unexpected commit reply: %q", got)
	}
	items := f.items(t, domain.ItemMovie)
	if len(items) != 1 || items[0].Title != "Matrix Reloaded" {
		t.Fatalf("unexpected saved items: %+v", items)
	}
	if !strings.Contains(items[0].Metadata, "tmdb:604") {
		t.Fatalf("catalog metadata missing: %q", items[0].Metadata)
	}
	if f.conv(t).State != domain.StateIdle {
		t.Fatal("commit must settle back to idle")
	}
}

func TestCandidateFlow_ZeroSavesPlain(t *testing.T) {
	f := newFixture(t, matrixSearcher())
	f.send(t, "salva o filme matrix")

	f.send(t, "0")
	if got := f.channel.last(t).text; got != replySavedPlain {
		t.Fatalf("option 0 saves without details: %q", got)
	}
	items := f.items(t, domain.ItemMovie)
	if len(items) != 1 || items[0].Title != "o filme matrix" {
		t.Fatalf("plain save must use the original query: %+v", items)
	}
}

func TestCandidateFlow_OutOfRangeReentersIdle(t *testing.T) {
	f := newFixture(t, matrixSearcher())
	f.send(t, "salva o filme matrix")

	// "9" doesn't map onto the 3-option list: the flow resets and the message
	// runs through the idle pipeline, where a bare number is a stray confirm.
	f.send(t, "9")
	if got := f.channel.last(t).text; got != replyNothingToDo {
		t.Fatalf("out-of-range pick must be reprocessed as new input: %q", got)
	}
	if f.conv(t).State != domain.StateIdle {
		t.Fatalf("out-of-range pick must reset to idle, got %s", f.conv(t).State)
	}
	if items := f.items(t, domain.ItemMovie); len(items) != 0 {
		t.Fatalf("nothing may be saved: %+v", items)
	}
}

func TestCandidateFlow_DenyCancels(t *testing.T) {
	f := newFixture(t, matrixSearcher())
	f.send(t, "salva o filme matrix")

	f.send(t, "não")
	if got := f.channel.last(t).text; got != replyCancelled {
		t.Fatalf("deny must cancel: %q", got)
	}
	if f.conv(t).State != domain.StateIdle {
		t.Fatal("deny must return to idle")
	}
	if items := f.items(t, domain.ItemMovie); len(items) != 0 {
		t.Fatalf("cancelled flow must save nothing: %+v", items)
	}
}

func TestCandidateFlow_NewRequestBreaksOut(t *testing.T) {
	f := newFixture(t, matrixSearcher())
	f.send(t, "salva o filme matrix")

	f.send(t, "qual é o seu nome?")
	if got := f.channel.last(t).text; !strings.Contains(got, "Nexo") {
		t.Fatalf("a fresh question must break out of the flow: %q", got)
	}
}

func TestCandidateFlow_SingleMatchGoesStraightToFinal(t *testing.T) {
	f := newFixture(t, matrixSearcher())

	f.send(t, "salva o filme duna")
	if f.conv(t).State != domain.StateAwaitingFinal {
		t.Fatalf("single candidate skips the list, got %s", f.conv(t).State)
	}
	if len(f.channel.photos) != 1 || f.channel.photos[0] != "https://img.example/duna.jpg" {
		t.Fatalf("poster must be sent first: %+v", f.channel.photos)
	}

	f.tap(t, provider.CallbackConfirmFinal)
	if got := f.channel.last(t).text; got != "Salvei Duna (2021) ✅" {
		t.Fatalf("unexpected commit reply: %q", got)
	}
}

func TestCandidateFlow_ChooseAgainCallback(t *testing.T) {
	f := newFixture(t, matrixSearcher())
	f.send(t, "salva o filme matrix")
	f.send(t, "1")

	f.tap(t, provider.CallbackChooseAgain)
	back := f.channel.last(t)
	if !strings.HasPrefix(back.text, replyPickAgain) || !strings.Contains(back.text, "3. Matrix Revolutions") {
		t.Fatalf("choose_again must re-offer the list: %q", back.text)
	}
	if f.conv(t).State != domain.StateAwaitingConfirm {
		t.Fatalf("expected awaiting confirmation, got %s", f.conv(t).State)
	}
}

func TestCandidateFlow_StaleCallbackIgnored(t *testing.T) {
	f := newFixture(t, matrixSearcher())
	f.send(t, "salva o filme matrix")
	f.send(t, "não")
	before := len(f.channel.sent)

	// The conversation already left the flow; the old button does nothing.
	f.tap(t, provider.CallbackConfirmFinal)
	if len(f.channel.sent) != before {
		t.Fatalf("stale callback must be ignored: %+v", f.channel.sent[before:])
	}
}

func TestClarifyFlow_MenuPick(t *testing.T) {
	f := newFixture(t, nil)

	f.send(t, "salva minha ideia de jantar")
	menu := f.channel.last(t)
	if !strings.Contains(menu.text, "1. Nota") || !strings.Contains(menu.text, "6. Nada, deixa pra lá") {
		t.Fatalf("unexpected menu: %q", menu.text)
	}
	if menu.buttons[len(menu.buttons)-1].Data != provider.CallbackChooseAgain {
		t.Fatalf("last button must cancel: %+v", menu.buttons)
	}
	if f.conv(t).State != domain.StateAwaitingContext {
		t.Fatalf("expected awaiting context, got %s", f.conv(t).State)
	}

	f.send(t, "1")
	if got := f.channel.last(t).text; !strings.Contains(got, "Salvei") {
		t.Fatalf("menu pick must save: %q", got)
	}
	items := f.items(t, domain.ItemNote)
	if len(items) != 1 || items[0].Title != "minha ideia de jantar" {
		t.Fatalf("unexpected note: %+v", items)
	}
}

func TestClarifyFlow_TypeWordAnswer(t *testing.T) {
	f := newFixture(t, nil)
	f.send(t, "salva minha ideia de jantar")

	f.send(t, "é um filme")
	// No catalog configured, so the movie saves plain.
	if got := f.channel.last(t).text; got != replySavedPlain {
		t.Fatalf("type-word answer: %q", got)
	}
	if items := f.items(t, domain.ItemMovie); len(items) != 1 {
		t.Fatalf("expected 1 movie, got %d", len(items))
	}
}

func TestClarifyFlow_CancelIndex(t *testing.T) {
	f := newFixture(t, nil)
	f.send(t, "salva minha ideia de jantar")

	f.send(t, "6")
	if got := f.channel.last(t).text; got != replyCancelled {
		t.Fatalf("cancel index: %q", got)
	}
	if f.conv(t).State != domain.StateIdle {
		t.Fatal("cancel must return to idle")
	}
}

func TestClarifyFlow_AttemptCapDeflectsOffTopic(t *testing.T) {
	f := newFixture(t, nil)
	f.o.cfg.MaxClarifyAttempts = 2
	f.send(t, "salva minha ideia de jantar")

	f.send(t, "hmm sei lá")
	if !strings.Contains(f.channel.last(t).text, "Quer que eu salve") {
		t.Fatalf("first miss re-sends the menu: %q", f.channel.last(t).text)
	}

	f.send(t, "vixe")
	if got := f.channel.last(t).text; got != replyGaveUp {
		t.Fatalf("attempt cap deflects with the note-saved reply: %q", got)
	}
	items := f.items(t, domain.ItemNote)
	if len(items) != 1 || items[0].Title != "minha ideia de jantar" {
		t.Fatalf("unexpected fallback note: %+v", items)
	}
	if f.conv(t).State != domain.StateOffTopicChat {
		t.Fatalf("cap must land in off-topic chat, got %s", f.conv(t).State)
	}

	// The dialogue keeps flowing as small talk afterwards.
	f.send(t, "pois é")
	if f.conv(t).State != domain.StateOffTopicChat {
		t.Fatal("chatter after the cap stays off-topic")
	}
}

func TestIdleFlow_LongFreeTextAsksForType(t *testing.T) {
	f := newFixture(t, nil)

	// No imperative verb anywhere, just a long braindump.
	text := strings.TrimSpace(strings.Repeat("uma ideia solta sobre o jantar de sábado com os amigos da faculdade, ", 3))
	if len([]rune(text)) <= 150 {
		t.Fatalf("fixture text too short: %d runes", len([]rune(text)))
	}

	f.send(t, text)
	menu := f.channel.last(t)
	if !strings.Contains(menu.text, "Quer que eu salve") || !strings.Contains(menu.text, "1. Nota") {
		t.Fatalf("long free text must get the type menu: %q", menu.text)
	}
	if f.conv(t).State != domain.StateAwaitingContext {
		t.Fatalf("expected awaiting context, got %s", f.conv(t).State)
	}

	f.send(t, "1")
	if got := f.channel.last(t).text; !strings.Contains(got, "Salvei") {
		t.Fatalf("menu pick must save the dump: %q", got)
	}
	if items := f.items(t, domain.ItemNote); len(items) != 1 {
		t.Fatalf("expected 1 note, got %d", len(items))
	}
}

func TestClarifyFlow_SelectCallback(t *testing.T) {
	f := newFixture(t, nil)
	f.send(t, "salva minha ideia de jantar")

	f.tap(t, "select_1")
	if got := f.channel.last(t).text; !strings.Contains(got, "Salvei") {
		t.Fatalf("menu button must save: %q", got)
	}
}

func TestBatchFlow_MixedResolution(t *testing.T) {
	searcher := mappedSearcher{byQuery: map[string][]domain.Candidate{
		"os filmes matrix": {
			{ExternalID: "tmdb:603", Title: "Matrix", Year: "1999"},
		},
		"duna": {
			{ExternalID: "tmdb:438631", Title: "Duna", Year: "2021"},
			{ExternalID: "tmdb:693134", Title: "Duna: Parte Dois", Year: "2024"},
		},
		"vingadores": nil,
	}}
	f := newFixture(t, searcher)

	f.send(t, "salva os filmes matrix, duna e vingadores")

	// Single-match items resolve without asking; "duna" pauses on its two
	// candidates.
	var joined []string
	for _, s := range f.channel.sent {
		joined = append(joined, s.text)
	}
	all := strings.Join(joined, "\n---\n")
	if !strings.Contains(all, "vamos salvar 3 itens") || !strings.Contains(all, "✅ Matrix (1999)") {
		t.Fatalf("unexpected batch transcript:\n%s", all)
	}
	if f.conv(t).State != domain.StateAwaitingBatchItem {
		t.Fatalf("expected batch pause, got %s", f.conv(t).State)
	}
	if !strings.Contains(f.channel.last(t).text, "Duna: Parte Dois") {
		t.Fatalf("expected duna candidates: %q", f.channel.last(t).text)
	}

	f.send(t, "2")
	if got := f.channel.last(t).text; got != "Prontinho! Salvei 3 e pulei 0." {
		t.Fatalf("unexpected batch summary: %q", got)
	}
	items := f.items(t, domain.ItemMovie)
	if len(items) != 3 {
		t.Fatalf("expected 3 saved movies, got %+v", items)
	}
	if f.conv(t).State != domain.StateIdle {
		t.Fatal("finished batch must settle back to idle")
	}
}

func TestBatchFlow_DenySkipsItem(t *testing.T) {
	searcher := mappedSearcher{byQuery: map[string][]domain.Candidate{
		"os filmes duna": {
			{Title: "Duna", Year: "2021"},
			{Title: "Duna: Parte Dois", Year: "2024"},
		},
	}}
	f := newFixture(t, searcher)

	f.send(t, "salva os filmes duna e aquele outro")
	if f.conv(t).State != domain.StateAwaitingBatchItem {
		t.Fatalf("expected batch pause, got %s", f.conv(t).State)
	}

	f.send(t, "não")
	if got := f.channel.last(t).text; got != "Prontinho! Salvei 1 e pulei 1." {
		t.Fatalf("unexpected batch summary: %q", got)
	}
}

func TestBatchFlow_OutOfRangeReentersIdle(t *testing.T) {
	searcher := mappedSearcher{byQuery: map[string][]domain.Candidate{
		"os filmes duna": {
			{Title: "Duna", Year: "2021"},
			{Title: "Duna: Parte Dois", Year: "2024"},
		},
	}}
	f := newFixture(t, searcher)
	f.send(t, "salva os filmes duna e aquele outro")
	if f.conv(t).State != domain.StateAwaitingBatchItem {
		t.Fatalf("expected batch pause, got %s", f.conv(t).State)
	}

	f.send(t, "7")
	if got := f.channel.last(t).text; got != replyNothingToDo {
		t.Fatalf("out-of-range batch pick must be reprocessed as new input: %q", got)
	}
	if f.conv(t).State != domain.StateIdle {
		t.Fatalf("out-of-range batch pick must reset to idle, got %s", f.conv(t).State)
	}
}

func TestOffTopic_ChatThenTask(t *testing.T) {
	f := newFixture(t, nil)

	f.send(t, "oi")
	if got := f.channel.last(t).text; got != replyCasualIdle {
		t.Fatalf("small talk without LLM uses the canned reply: %q", got)
	}
	if f.conv(t).State != domain.StateOffTopicChat {
		t.Fatalf("expected off-topic state, got %s", f.conv(t).State)
	}

	f.send(t, "bom dia")
	if f.conv(t).State != domain.StateOffTopicChat {
		t.Fatal("more small talk stays off-topic")
	}

	f.send(t, "anota a nota comprar pão")
	if got := f.channel.last(t).text; !strings.Contains(got, "Salvei") {
		t.Fatalf("a confident task must break out of chat: %q", got)
	}
	if f.conv(t).State != domain.StateIdle {
		t.Fatalf("task handling returns to idle, got %s", f.conv(t).State)
	}
}

func TestDeleteByTitle(t *testing.T) {
	f := newFixture(t, nil)
	f.send(t, "anota a nota comprar café")

	f.send(t, "apaga a nota comprar café")
	if got := f.channel.last(t).text; !strings.Contains(got, "Apaguei") {
		t.Fatalf("delete by title: %q", got)
	}
	if items := f.items(t, domain.ItemNote); len(items) != 0 {
		t.Fatalf("item must be gone: %+v", items)
	}
}

func TestSavePrevious(t *testing.T) {
	f := newFixture(t, nil)

	f.send(t, "https://example.com/artigo muito bom esse aqui de go")
	// Long prose around a URL lands in the planner fallback; the transcript
	// still has it as the previous user turn.
	f.send(t, "salva isso")
	if got := f.channel.last(t).text; !strings.Contains(got, "Salvei") {
		t.Fatalf("save previous: %q", got)
	}
	items := f.items(t, domain.ItemLink)
	if len(items) != 1 || items[0].URL != "https://example.com/artigo" {
		t.Fatalf("previous message must save as link: %+v", items)
	}
}
