package extract

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/reviewgen/internal/product"
)

// structured holds fields read from site-provided metadata. These are the
// highest-confidence sources and win over markup heuristics.
type structured struct {
	title       string
	description string
	price       string
	breadcrumbs []string
	specs       []product.Spec
}

var productTypes = []string{"Product", "ProductGroup", "ProductModel", "IndividualProduct"}

func readStructured(doc *goquery.Document) structured {
	var sd structured
	var products, crumbLists []map[string]any

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		dec := json.NewDecoder(strings.NewReader(s.Text()))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return
		}
		walkJSONLD(v, func(m map[string]any) {
			switch {
			case typeIs(m, productTypes...):
				products = append(products, m)
			case typeIs(m, "BreadcrumbList"):
				crumbLists = append(crumbLists, m)
			}
		})
	})

	if len(products) > 0 {
		p := products[0]
		sd.title = clean(html.UnescapeString(str(p["name"])))
		sd.description = clean(html.UnescapeString(str(p["description"])))
		sd.price = offerPrice(p["offers"])
		sd.specs = jsonLDSpecs(p)
	}
	for _, list := range crumbLists {
		if crumbs := jsonLDCrumbs(list); len(crumbs) > 0 {
			sd.breadcrumbs = crumbs
			break
		}
	}

	readMicrodata(doc, &sd)
	return sd
}

// walkJSONLD visits every object in a JSON-LD document, including those
// nested under @graph, arrays and arbitrary properties. Object keys are
// visited in sorted order so repeated runs pick the same first product.
func walkJSONLD(v any, visit func(map[string]any)) {
	switch t := v.(type) {
	case map[string]any:
		visit(t)
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkJSONLD(t[k], visit)
		}
	case []any:
		for _, child := range t {
			walkJSONLD(child, visit)
		}
	}
}

func typeIs(m map[string]any, names ...string) bool {
	var types []string
	switch t := m["@type"].(type) {
	case string:
		types = []string{t}
	case []any:
		for _, v := range t {
			types = append(types, str(v))
		}
	}
	for _, typ := range types {
		typ = strings.TrimPrefix(strings.TrimPrefix(typ, "http://schema.org/"), "https://schema.org/")
		for _, n := range names {
			if typ == n {
				return true
			}
		}
	}
	return false
}

// str renders scalar JSON values as text; objects and arrays become "".
func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return fmt.Sprint(t)
	}
	return ""
}

func offerPrice(offers any) string {
	switch t := offers.(type) {
	case []any:
		for _, o := range t {
			if p := offerPrice(o); p != "" {
				return p
			}
		}
	case map[string]any:
		amount := firstNonEmpty(str(t["price"]), str(t["lowPrice"]))
		if amount == "" {
			if spec, ok := t["priceSpecification"].(map[string]any); ok {
				amount = str(spec["price"])
				if str(t["priceCurrency"]) == "" {
					return formatPrice(amount, str(spec["priceCurrency"]))
				}
			}
		}
		return formatPrice(amount, str(t["priceCurrency"]))
	}
	return ""
}

func formatPrice(amount, currency string) string {
	amount = clean(amount)
	if amount == "" {
		return ""
	}
	currency = clean(currency)
	if currency == "" || strings.Contains(amount, currency) {
		return amount
	}
	return currency + " " + amount
}

var jsonLDSpecFields = []struct{ key, label string }{
	{"brand", "Brand"},
	{"model", "Model"},
	{"sku", "SKU"},
	{"mpn", "MPN"},
	{"gtin13", "GTIN"},
	{"gtin12", "GTIN"},
	{"gtin", "GTIN"},
	{"color", "Color"},
	{"material", "Material"},
}

func jsonLDSpecs(p map[string]any) []product.Spec {
	var specs []product.Spec
	for _, f := range jsonLDSpecFields {
		v := str(p[f.key])
		if m, ok := p[f.key].(map[string]any); ok {
			v = str(m["name"])
		}
		if v = clean(html.UnescapeString(v)); v != "" {
			specs = append(specs, product.Spec{Label: f.label, Value: v})
		}
	}

	props, _ := p["additionalProperty"].([]any)
	for _, raw := range props {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		label := clean(html.UnescapeString(str(m["name"])))
		value := clean(html.UnescapeString(str(m["value"])))
		if unit := str(m["unitText"]); unit != "" && value != "" {
			value += " " + unit
		}
		if label != "" && value != "" {
			specs = append(specs, product.Spec{Label: label, Value: value})
		}
	}
	return specs
}

func jsonLDCrumbs(list map[string]any) []string {
	items, _ := list["itemListElement"].([]any)
	type crumb struct {
		pos  float64
		name string
	}
	var crumbs []crumb
	for i, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := str(m["name"])
		if item, ok := m["item"].(map[string]any); ok && name == "" {
			name = str(item["name"])
		}
		pos := float64(i + 1)
		if n, ok := m["position"].(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				pos = f
			}
		}
		crumbs = append(crumbs, crumb{pos: pos, name: html.UnescapeString(name)})
	}
	sort.SliceStable(crumbs, func(i, j int) bool { return crumbs[i].pos < crumbs[j].pos })

	names := make([]string, len(crumbs))
	for i, c := range crumbs {
		names[i] = c.name
	}
	return normaliseCrumbs(names)
}

func readMicrodata(doc *goquery.Document, sd *structured) {
	scope := doc.Find(`[itemscope][itemtype*="schema.org/Product"]`).First()
	if scope.Length() > 0 {
		if sd.title == "" {
			sd.title = ownProp(scope, "name")
		}
		if sd.description == "" {
			sd.description = ownProp(scope, "description")
		}
		if sd.price == "" {
			amount := propValue(scope.Find(`[itemprop="price"]`).First())
			currency := propValue(scope.Find(`[itemprop="priceCurrency"]`).First())
			sd.price = formatPrice(amount, currency)
		}
	}

	if len(sd.breadcrumbs) == 0 {
		list := doc.Find(`[itemscope][itemtype*="schema.org/BreadcrumbList"]`).First()
		var names []string
		list.Find(`[itemprop="itemListElement"]`).Each(func(_ int, s *goquery.Selection) {
			name := s.Find(`[itemprop="name"]`).First()
			if name.Length() == 0 {
				name = s
			}
			names = append(names, propValue(name))
		})
		sd.breadcrumbs = normaliseCrumbs(names)
	}
}

// ownProp returns the first itemprop value that belongs directly to scope,
// skipping properties of nested items such as brand or offers.
func ownProp(scope *goquery.Selection, prop string) string {
	var value string
	scope.Find(`[itemprop="` + prop + `"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if owner := s.Parent().Closest("[itemscope]"); owner.Length() > 0 && owner.Get(0) != scope.Get(0) {
			return true
		}
		value = propValue(s)
		return value == ""
	})
	return value
}

func propValue(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	if v, ok := s.Attr("content"); ok {
		return clean(v)
	}
	return clean(s.Text())
}

// metaContent returns the first non-empty <meta> value among keys, matched
// against both property and name attributes.
func metaContent(doc *goquery.Document, keys ...string) string {
	for _, key := range keys {
		sel := doc.Find(`meta[property="` + key + `"], meta[name="` + key + `"]`)
		var value string
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value = clean(s.AttrOr("content", ""))
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

func metaPrice(doc *goquery.Document) string {
	amount := metaContent(doc, "product:price:amount", "og:price:amount")
	if amount == "" {
		return ""
	}
	return formatPrice(amount, metaContent(doc, "product:price:currency", "og:price:currency"))
}
