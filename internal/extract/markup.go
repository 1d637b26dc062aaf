package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/placepin/importer/internal/model"
)

// markupStrategy pulls schema.org PostalAddress objects out of embedded
// JSON-LD blocks and microdata. These are author-provided structured
// addresses, so a non-empty result short-circuits the rest of the chain.
type markupStrategy struct{}

func (s *markupStrategy) Name() string { return "markup" }

func (s *markupStrategy) Extract(_ context.Context, input string) []model.CandidateAddress {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input))
	if err != nil {
		zap.L().Debug("markup: unparseable document", zap.Error(err))
		return nil
	}

	var out []model.CandidateAddress

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return
		}
		walkJSONLD(payload, "", &out)
	})

	doc.Find(`[itemtype*="PostalAddress"]`).Each(func(_ int, sel *goquery.Selection) {
		addr := schemaAddress{
			Street:   microProp(sel, "streetAddress"),
			City:     microProp(sel, "addressLocality"),
			State:    microProp(sel, "addressRegion"),
			Postal:   microProp(sel, "postalCode"),
			Country:  microProp(sel, "addressCountry"),
			ItemName: nearestItemName(sel),
		}
		if c, ok := addr.candidate(); ok {
			out = append(out, c)
		}
	})

	return out
}

// schemaAddress is a PostalAddress gathered from markup.
type schemaAddress struct {
	Street   string
	City     string
	State    string
	Postal   string
	Country  string
	ItemName string
}

func (a schemaAddress) candidate() (model.CandidateAddress, bool) {
	if a.Street == "" && a.City == "" {
		return model.CandidateAddress{}, false
	}

	normalized := buildNormalized([]string{a.Street}, a.City, a.State, a.Postal, a.Country)
	if normalized == "" {
		return model.CandidateAddress{}, false
	}

	c := model.NewCandidate(cleanLine(a.ItemName), normalized, normalized)
	c.Parts = model.AddressParts{
		City:       cleanLine(a.City),
		State:      cleanLine(a.State),
		PostalCode: cleanLine(a.Postal),
	}
	return c, true
}

// walkJSONLD recursively scans decoded JSON-LD for PostalAddress objects.
// parentName carries the closest enclosing "name" so the address can keep
// its organization as a display name.
func walkJSONLD(node any, parentName string, out *[]model.CandidateAddress) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			walkJSONLD(item, parentName, out)
		}
	case map[string]any:
		name := jsonString(v["name"])
		if name == "" {
			name = parentName
		}

		if isPostalAddressType(v["@type"]) {
			addr := schemaAddress{
				Street:   jsonString(v["streetAddress"]),
				City:     jsonString(v["addressLocality"]),
				State:    jsonString(v["addressRegion"]),
				Postal:   jsonString(v["postalCode"]),
				Country:  jsonString(v["addressCountry"]),
				ItemName: parentName,
			}
			if c, ok := addr.candidate(); ok {
				*out = append(*out, c)
			}
			return
		}

		for _, child := range v {
			walkJSONLD(child, name, out)
		}
	}
}

func isPostalAddressType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "PostalAddress")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "PostalAddress") {
				return true
			}
		}
	}
	return false
}

func jsonString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		// addressCountry may itself be a {"@type": "Country", "name": ...}.
		return jsonString(s["name"])
	}
	return ""
}

func microProp(sel *goquery.Selection, prop string) string {
	node := sel.Find(`[itemprop="` + prop + `"]`).First()
	if node.Length() == 0 {
		return ""
	}
	if content, ok := node.Attr("content"); ok && content != "" {
		return content
	}
	return strings.TrimSpace(node.Text())
}

// nearestItemName looks for an itemprop="name" on the closest enclosing
// item scope, falling back to empty.
func nearestItemName(sel *goquery.Selection) string {
	scope := sel.Closest(`[itemscope]`).Parent().Closest(`[itemscope]`)
	if scope.Length() == 0 {
		return ""
	}
	name := scope.Find(`[itemprop="name"]`).First()
	return strings.TrimSpace(name.Text())
}
