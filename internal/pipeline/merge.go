package pipeline

import (
	"strings"
	"time"

	"github.com/karelmartinek-a11y/kajovospend/internal/extract"
)

// PageDraft is one page's extraction, ready for grouping.
type PageDraft struct {
	PageNo     int
	Extracted  extract.Extracted
	Confidence float64 // fused page confidence
}

// Group is a run of pages forming one logical document.
type Group struct {
	PageFrom   int
	PageTo     int
	Extracted  extract.Extracted
	Confidence float64
	RawItems   []extract.Item
}

type identity struct {
	ico  string
	num  string
	date time.Time
}

func identityOf(e extract.Extracted) (identity, bool) {
	if e.SupplierICO == "" || e.DocNumber == "" || e.IssueDate == nil {
		return identity{}, false
	}
	return identity{ico: e.SupplierICO, num: e.DocNumber, date: *e.IssueDate}, true
}

// MergePages groups consecutive pages into documents. A page joins the open
// group only when both carry a complete identity (ICO, document number and
// issue date), the identities are equal, and the pages are contiguous.
// Anything less opens a new group; incomplete identities never merge.
func MergePages(drafts []PageDraft) []Group {
	var groups []Group
	for _, d := range drafts {
		if len(groups) > 0 {
			g := &groups[len(groups)-1]
			gid, gok := identityOf(g.Extracted)
			pid, pok := identityOf(d.Extracted)
			if gok && pok && gid == pid && d.PageNo == g.PageTo+1 {
				mergeInto(g, d)
				continue
			}
		}
		groups = append(groups, Group{
			PageFrom:   d.PageNo,
			PageTo:     d.PageNo,
			Extracted:  d.Extracted,
			Confidence: d.Confidence,
			RawItems:   d.Extracted.Items,
		})
	}
	return groups
}

func mergeInto(g *Group, d PageDraft) {
	g.PageTo = d.PageNo
	e := &g.Extracted
	p := d.Extracted

	e.Items = append(e.Items, p.Items...)
	g.RawItems = append(g.RawItems, p.Items...)
	e.FullText = strings.TrimRight(e.FullText, "\n") + "\n\n" + p.FullText

	if e.TotalWithVAT == nil {
		e.TotalWithVAT = p.TotalWithVAT
	}
	if e.BankAccount == "" {
		e.BankAccount = p.BankAccount
	}
	if e.Currency == "" {
		e.Currency = p.Currency
	}
	if p.Confidence > e.Confidence {
		e.Confidence = p.Confidence
	}
	if d.Confidence > g.Confidence {
		g.Confidence = d.Confidence
	}
	e.RequiresReview = e.RequiresReview || p.RequiresReview
	e.ReviewReasons = dedupeReasons(append(e.ReviewReasons, p.ReviewReasons...))
}

// dedupeReasons removes duplicates while keeping first-seen order.
func dedupeReasons(reasons []string) []string {
	seen := make(map[string]bool, len(reasons))
	out := reasons[:0]
	for _, r := range reasons {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
