package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/reviewgen/internal/product"
)

const (
	minParagraph   = 40
	maxDescription = 300
	maxFeatures    = 25
	maxCrumbs      = 12
	maxCrumbRunes  = 60
)

const boilerplate = "nav,header,footer,aside,[role=navigation],[role=banner],[role=contentinfo]"

func inBoilerplate(s *goquery.Selection) bool {
	return s.Closest(boilerplate).Length() > 0
}

// attrTokens returns the lowercased class and id of s.
func attrTokens(s *goquery.Selection) string {
	return strings.ToLower(s.AttrOr("class", "") + " " + s.AttrOr("id", ""))
}

// mainScope is where page content most likely lives.
func mainScope(doc *goquery.Document) *goquery.Selection {
	if m := doc.Find("main,[role=main],article").First(); m.Length() > 0 {
		return m
	}
	return doc.Find("body")
}

func headingTitle(doc *goquery.Document) string {
	var title string
	doc.Find("h1").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if inBoilerplate(s) {
			return true
		}
		title = clean(s.Text())
		return title == ""
	})
	return title
}

var boilerplateText = []string{"cookie", "©", "all rights reserved", "javascript", "sign in", "newsletter"}

func contentParagraph(doc *goquery.Document) string {
	var desc string
	mainScope(doc).Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if inBoilerplate(s) {
			return true
		}
		text := clean(s.Text())
		if runeLen(text) < minParagraph || containsAny(strings.ToLower(text), boilerplateText...) {
			return true
		}
		desc = clip(text, maxDescription)
		return false
	})
	return desc
}

func readabilityExcerpt(doc *goquery.Document, sourceURL string) string {
	markup, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return ""
	}
	parsedURL, _ := url.Parse(sourceURL)
	article, err := readability.FromReader(strings.NewReader(markup), parsedURL)
	if err != nil {
		return ""
	}
	text := clean(article.TextContent)
	if runeLen(text) < minParagraph {
		return ""
	}
	return clip(text, maxDescription)
}

var priceRe = regexp.MustCompile(`(?i)(?:R\$|US\$|C\$|A\$|\$|€|£|¥|₹|CHF|USD|EUR|BRL|GBP)\s?\d(?:[\d.,]*\d)?|\d(?:[\d.,]*\d)?\s?(?:€|zł|kr|₽|CHF|USD|EUR|BRL|GBP)`)

// Markers of prices that are not the current offer: struck-through list
// prices and prices of other products shown alongside.
var (
	decoyWords   = []string{"strike", "crossed", "compare", "listprice", "list-price", "was-price", "original", "related", "recommend", "similar", "carousel"}
	decoyTokens  = []string{"old", "was", "before", "list", "antes", "regular"}
	tokenSplitRe = regexp.MustCompile(`[\s_-]+`)
)

func isDecoyAttr(attrs string) bool {
	if containsAny(attrs, decoyWords...) {
		return true
	}
	return hasToken(attrs, decoyTokens...)
}

func isDecoy(s *goquery.Selection) bool {
	if s.Closest("s,del,strike").Length() > 0 {
		return true
	}
	// Only the immediate surroundings count; page-level classes such as
	// "product-list" on body must not disqualify every price.
	for n, depth := s, 0; n.Length() > 0 && depth < 3; n, depth = n.Parent(), depth+1 {
		if isDecoyAttr(attrTokens(n)) {
			return true
		}
	}
	return false
}

func regionPrice(doc *goquery.Document) string {
	var price string
	doc.Find("body *").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(attrTokens(s), "price") && !isDecoy(s)
	}).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Closest("footer").Length() > 0 {
			return true
		}
		region := s.Clone()
		region.Find("s,del,strike").Remove()
		region.Find("*").FilterFunction(func(_ int, n *goquery.Selection) bool {
			return isDecoyAttr(attrTokens(n))
		}).Remove()

		candidate := s.AttrOr("content", "")
		if !priceRe.MatchString(candidate) {
			candidate = region.Text()
		}
		if m := currentPrice(candidate); m != "" {
			price = clean(m)
			return false
		}
		return true
	})
	return price
}

// Words that, right before an amount, mark it as a former or reference
// price ("Was $199", "De R$ 299 por R$ 249") or as the current one.
var (
	stalePriceWords   = []string{"was", "de", "antes", "list price", "rrp", "from", "old", "before", "regular", "msrp"}
	currentPriceWords = []string{"now", "por", "agora", "sale", "today", "only"}
	wordRe            = regexp.MustCompile(`\pL+`)
)

// currentPrice picks the live offer among the amounts in text. An amount
// introduced by a current-price word wins; otherwise the first amount not
// introduced by a stale-price word. Only stale amounts yields "".
func currentPrice(text string) string {
	locs := priceRe.FindAllStringIndex(text, -1)
	first := ""
	prevEnd := 0
	for _, loc := range locs {
		lead := leadWords(text[prevEnd:loc[0]])
		prevEnd = loc[1]
		amount := text[loc[0]:loc[1]]
		switch {
		case hasWord(lead, currentPriceWords...):
			return amount
		case first == "" && !hasWord(lead, stalePriceWords...):
			first = amount
		}
	}
	return first
}

// leadWords returns the last few words before an amount, lowercased and
// space-padded for whole-word matching.
func leadWords(s string) string {
	words := wordRe.FindAllString(strings.ToLower(s), -1)
	if len(words) > 3 {
		words = words[len(words)-3:]
	}
	return " " + strings.Join(words, " ") + " "
}

func hasWord(lead string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(lead, " "+w+" ") {
			return true
		}
	}
	return false
}

func findBreadcrumbs(doc *goquery.Document) []string {
	var crumbs []string
	doc.Find("nav,ol,ul,div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		label := strings.ToLower(s.AttrOr("aria-label", ""))
		return strings.Contains(label, "breadcrumb") || strings.Contains(attrTokens(s), "breadcrumb")
	}).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Closest("footer").Length() > 0 {
			return true
		}
		var names []string
		items := s.Find("li")
		if items.Length() == 0 {
			items = s.Find("a,span")
		}
		items.Each(func(_ int, item *goquery.Selection) {
			// Nested lists repeat their children's text; take leaves only.
			if item.Is("li") && item.Find("li").Length() > 0 {
				return
			}
			names = append(names, item.Text())
		})
		if len(names) == 0 {
			names = crumbSepRe.Split(s.Text(), -1)
		}
		crumbs = normaliseCrumbs(names)
		return len(crumbs) == 0
	})
	return crumbs
}

var crumbSepRe = regexp.MustCompile(`\s*[›>/|»]\s*`)

// normaliseCrumbs cleans crumb labels and rejects lists that do not look
// like a category path: too short, too long, or with overlong labels.
func normaliseCrumbs(names []string) []string {
	var out []string
	for _, n := range names {
		n = strings.Trim(clean(n), " ›>/|»·")
		if n == "" {
			continue
		}
		if len(out) > 0 && strings.EqualFold(out[len(out)-1], n) {
			continue
		}
		if runeLen(n) > maxCrumbRunes {
			return nil
		}
		out = append(out, n)
	}
	if len(out) < 2 || len(out) > maxCrumbs {
		return nil
	}
	return out
}

var (
	featureWords  = []string{"feature", "highlight", "bullet", "benefit"}
	featureTokens = []string{"about", "key"}
)

func isFeatureContainer(s *goquery.Selection) bool {
	attrs := attrTokens(s)
	return containsAny(attrs, featureWords...) || hasToken(attrs, featureTokens...)
}

// hasToken reports whether one of the class/id tokens, split on spaces,
// dashes and underscores, equals one of want.
func hasToken(attrs string, want ...string) bool {
	for _, tok := range tokenSplitRe.Split(attrs, -1) {
		for _, w := range want {
			if tok == w {
				return true
			}
		}
	}
	return false
}

func findFeatures(doc *goquery.Document) []string {
	var features []string
	doc.Find("ul,ol,div,section").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return isFeatureContainer(s) && !inBoilerplate(s)
	}).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		features = listItems(s)
		return len(features) == 0
	})
	if len(features) > 0 {
		return features
	}

	// Fall back to the first list inside a product container.
	doc.Find("ul,ol").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if inBoilerplate(s) || !inProductScope(s) {
			return true
		}
		features = listItems(s)
		return len(features) < 2
	})
	if len(features) < 2 {
		return nil
	}
	return features
}

func inProductScope(s *goquery.Selection) bool {
	found := false
	s.Parents().EachWithBreak(func(_ int, p *goquery.Selection) bool {
		found = strings.Contains(attrTokens(p), "product") ||
			strings.Contains(p.AttrOr("itemtype", ""), "schema.org/Product")
		return !found
	})
	return found
}

func listItems(s *goquery.Selection) []string {
	var items []string
	seen := map[string]bool{}
	s.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		if li.Find("li").Length() > 0 {
			return true
		}
		text := clean(li.Text())
		if n := runeLen(text); n < 3 || n > 400 || len(strings.Fields(text)) < 2 {
			return true
		}
		// Link-only items are navigation rather than product facts.
		if links := li.Find("a"); links.Length() > 0 && clean(links.Text()) == text {
			return true
		}
		key := strings.ToLower(text)
		if seen[key] {
			return true
		}
		seen[key] = true
		items = append(items, text)
		return len(items) < maxFeatures
	})
	return items
}

// Spec tables are recognised by class/id, caption or the heading right
// before them. Tables about reviews, shipping or sizing never are.
var (
	specTableWords   = []string{"spec", "technical", "techspec", "detail", "attribute", "propert", "characteristic", "ficha", "product-info", "product_info"}
	nonSpecWords     = []string{"review", "rating", "comment", "shipping", "delivery", "frete", "size-chart", "sizechart", "size_chart", "sizing", "comparison", "compare", "cart", "price-history"}
	specHeadingWords = []string{"specification", "technical", "details", "especifica", "ficha", "características", "caracteristicas"}
)

func isSpecTable(table *goquery.Selection) bool {
	var context []string
	for n, depth := table, 0; n.Length() > 0 && depth < 3; n, depth = n.Parent(), depth+1 {
		context = append(context, attrTokens(n))
	}
	context = append(context, strings.ToLower(clean(table.Find("caption").First().Text())))
	joined := strings.Join(context, " ")
	if containsAny(joined, nonSpecWords...) {
		return false
	}
	if containsAny(joined, specTableWords...) {
		return true
	}
	heading := table.PrevAllFiltered("h2,h3,h4,h5").First()
	return heading.Length() > 0 && containsAny(strings.ToLower(clean(heading.Text())), specHeadingWords...)
}

func inNonSpecContainer(s *goquery.Selection) bool {
	for n, depth := s, 0; n.Length() > 0 && depth < 4; n, depth = n.Parent(), depth+1 {
		if containsAny(attrTokens(n), nonSpecWords...) {
			return true
		}
	}
	return false
}

func findSpecs(doc *goquery.Document) []product.Spec {
	var specs []product.Spec
	add := func(label, value string) {
		label = strings.TrimSpace(strings.TrimSuffix(clean(label), ":"))
		value = clean(value)
		if label == "" || value == "" || runeLen(label) > 80 || runeLen(value) > 300 {
			return
		}
		specs = append(specs, product.Spec{Label: label, Value: value})
	}

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if inBoilerplate(table) || !isSpecTable(table) {
			return
		}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			// Rows of nested tables are judged with their own table.
			if tr.Closest("table").Get(0) != table.Get(0) || tr.Closest("thead").Length() > 0 {
				return
			}
			cells := tr.ChildrenFiltered("th,td")
			if cells.Length() != 2 || cells.Filter("td").Length() == 0 {
				return
			}
			add(cells.Eq(0).Text(), cells.Eq(1).Text())
		})
	})

	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		if inBoilerplate(dt) || inNonSpecContainer(dt) {
			return
		}
		if dd := dt.NextFiltered("dd"); dd.Length() > 0 {
			add(dt.Text(), dd.Text())
		}
	})
	return specs
}
