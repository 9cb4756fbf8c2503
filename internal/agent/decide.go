// Pure decision step.
//
// decideAction maps a classified message onto one engine action without
// touching I/O, clocks, or randomness: same inputs, same decision, every
// time. The orchestrator owns all side effects.
package agent

import (
	"strings"

	"github.com/psousaj/nexo-ai-sub000/internal/domain"
	"github.com/psousaj/nexo-ai-sub000/internal/intent"
)

// freeTextClarifyLen is the length past which unclassified free text is read
// as content the user wants saved rather than a question for the planner.
const freeTextClarifyLen = 150

type decisionKind int

const (
	decideSave decisionKind = iota + 1
	decideClarify
	decideSavePrevious
	decideBatchSave
	decideSearch
	decideList
	decideDeleteAll
	decideDeleteItem
	decideCasual
	decideGetName
	decideSettings
	decidePlanner
	decideAcknowledge
)

// decision is the resolved action for an idle-state message.
type decision struct {
	Kind     decisionKind
	Query    string
	ItemType domain.ItemType
	URL      string
	Target   string
	// BatchQueries holds the split titles of a multi-save request.
	BatchQueries []string
}

// decideAction resolves what to do with a classified message arriving in the
// idle state.
func decideAction(res intent.Result) decision {
	e := res.Entities
	switch res.Action {
	case intent.ActionSaveContent:
		if e.Query == "" && e.URL == "" {
			return decision{Kind: decideClarify}
		}
		if batch := splitBatch(e.Query); len(batch) > 1 && catalogType(e.ItemType) {
			return decision{Kind: decideBatchSave, ItemType: e.ItemType, BatchQueries: batch}
		}
		if e.ItemType == "" {
			return decision{Kind: decideClarify, Query: e.Query, URL: e.URL}
		}
		return decision{Kind: decideSave, Query: e.Query, ItemType: e.ItemType, URL: e.URL}
	case intent.ActionSavePrevious:
		return decision{Kind: decideSavePrevious, ItemType: e.ItemType}
	case intent.ActionSearchItems:
		return decision{Kind: decideSearch, Query: e.Query, ItemType: e.ItemType}
	case intent.ActionListItems:
		return decision{Kind: decideList, ItemType: e.ItemType}
	case intent.ActionDeleteAll:
		return decision{Kind: decideDeleteAll}
	case intent.ActionDeleteItem:
		return decision{Kind: decideDeleteItem, Target: e.Target, ItemType: e.ItemType}
	case intent.ActionCasualChat:
		return decision{Kind: decideCasual}
	case intent.ActionGetName:
		return decision{Kind: decideGetName}
	case intent.ActionUpdateSettings:
		return decision{Kind: decideSettings, Target: e.Target}
	case intent.ActionConfirm, intent.ActionDeny:
		// Nothing pending in idle; a stray yes/no needs no machinery.
		return decision{Kind: decideAcknowledge}
	}
	// get_info, unknown: let the planner have it.
	return decision{Kind: decidePlanner, Query: res.Entities.Query}
}

// catalogType reports whether the item type goes through catalog enrichment.
func catalogType(t domain.ItemType) bool {
	return t == domain.ItemMovie || t == domain.ItemTVShow
}

// splitBatch breaks a multi-title save query ("Matrix, Interestelar e Dune")
// into individual titles. A single title comes back as a one-element slice.
func splitBatch(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	parts := strings.Split(query, ",")
	var expanded []string
	for _, p := range parts {
		for _, q := range strings.Split(p, " e ") {
			q = strings.TrimSpace(q)
			if q != "" {
				expanded = append(expanded, q)
			}
		}
	}
	return expanded
}
