package normalizer

import (
	"net/url"
	"strings"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// Referrer is the classification of a referring URL.
type Referrer struct {
	Name *string
	Type string
	Host *string
}

type source struct {
	name  string
	match string
}

// searchEngines match on hostname substring.
var searchEngines = []source{
	{"Google", "google."},
	{"Bing", "bing.com"},
	{"Yahoo!", "yahoo."},
	{"DuckDuckGo", "duckduckgo.com"},
	{"Baidu", "baidu.com"},
	{"Yandex", "yandex."},
	{"Ecosia", "ecosia.org"},
	{"Brave", "search.brave.com"},
	{"Naver", "naver.com"},
	{"Seznam", "seznam.cz"},
	{"Qwant", "qwant.com"},
	{"Startpage", "startpage.com"},
	{"Ask", "ask.com"},
}

// socialNetworks match on the registrable domain so that short hosts such as
// t.co do not match unrelated sites.
var socialNetworks = []source{
	{"Facebook", "facebook.com"},
	{"Facebook", "fb.com"},
	{"Instagram", "instagram.com"},
	{"Twitter", "twitter.com"},
	{"Twitter", "t.co"},
	{"Twitter", "x.com"},
	{"LinkedIn", "linkedin.com"},
	{"LinkedIn", "lnkd.in"},
	{"Reddit", "reddit.com"},
	{"Pinterest", "pinterest.com"},
	{"TikTok", "tiktok.com"},
	{"YouTube", "youtube.com"},
	{"YouTube", "youtu.be"},
	{"Snapchat", "snapchat.com"},
	{"Threads", "threads.net"},
	{"Bluesky", "bsky.app"},
	{"Mastodon", "mastodon.social"},
	{"Discord", "discord.com"},
	{"Telegram", "t.me"},
	{"WhatsApp", "whatsapp.com"},
	{"Quora", "quora.com"},
	{"Tumblr", "tumblr.com"},
}

// adParams are click identifiers appended by ad networks.
var adParams = []string{
	"gclid", "gbraid", "wbraid", "dclid", "fbclid", "msclkid",
	"ttclid", "twclid", "li_fat_id", "yclid", "epik", "rdt_cid",
}

// ClassifyReferrer classifies a referrer URL as direct, search, social, ad or
// other. pageQuery is the query of the landing page and is consulted for ad
// click identifiers along with the referrer's own query.
func ClassifyReferrer(raw string, pageQuery url.Values) Referrer {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Referrer{Type: domain.ReferrerDirect}
	}

	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "/") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return Referrer{Type: domain.ReferrerOther}
	}

	host := strings.ToLower(u.Hostname())
	ref := Referrer{Host: &host}

	for _, s := range searchEngines {
		if strings.Contains(host, s.match) {
			name := s.name
			ref.Name, ref.Type = &name, domain.ReferrerSearch
			return ref
		}
	}

	for _, s := range socialNetworks {
		if host == s.match || strings.HasSuffix(host, "."+s.match) {
			name := s.name
			ref.Name, ref.Type = &name, domain.ReferrerSocial
			return ref
		}
	}

	if hasAdParam(u.Query()) || hasAdParam(pageQuery) {
		ref.Type = domain.ReferrerAd
		return ref
	}

	ref.Type = domain.ReferrerOther
	return ref
}

func hasAdParam(q url.Values) bool {
	for _, p := range adParams {
		if q.Has(p) {
			return true
		}
	}
	return false
}
