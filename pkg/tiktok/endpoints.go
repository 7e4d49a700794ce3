package tiktok

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// BaseURL is the platform's web origin
	BaseURL = "https://www.tiktok.com"

	DetailEndpoint  = "/api/item/detail/"
	RelatedEndpoint = "/api/related/item_list/"

	// DefaultUserAgent is the browser identity presented to the platform
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:91.0) Gecko/20100101 Firefox/91.1"

	// RelatedCount is the page size requested from the related-items endpoint
	RelatedCount = 16

	verifyFp = "verify_lws1fk3n_P0R9e85b_CSlT_4mNA_BBoR_9av0jRDDSXI0"
)

// Mode selects the endpoint a lookup is issued against
type Mode int

const (
	ModeDetail Mode = iota
	ModeRelated
)

func (m Mode) String() string {
	switch m {
	case ModeDetail:
		return "detail"
	case ModeRelated:
		return "related"
	default:
		return "unknown"
	}
}

// Endpoint returns the API path for the mode
func (m Mode) Endpoint() string {
	if m == ModeRelated {
		return RelatedEndpoint
	}
	return DetailEndpoint
}

// Param is one key/value pair of a query string
type Param struct {
	Key   string
	Value string
}

// Query is an ordered parameter list. Order matters: the signature is
// computed over the exact encoded byte sequence.
type Query []Param

// Encode renders the query in order, escaping values the way a browser's
// encodeURIComponent would
func (q Query) Encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(escape(p.Value))
	}
	return b.String()
}

// Get returns the first value for key
func (q Query) Get(key string) string {
	for _, p := range q {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

func escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// BuildQuery assembles the canonical query for mode. The browser fingerprint
// (locale, platform, screen metrics, region) is held constant.
func BuildQuery(mode Mode, boot *Bootstrap, contentID, userAgent string) Query {
	related := mode == ModeRelated

	q := Query{
		{"WebIdLastTime", boot.WebIDCreatedTime},
		{"aid", "1988"},
		{"app_language", "en"},
		{"app_name", "tiktok_web"},
		{"browser_language", "en-US"},
		{"browser_name", "Mozilla"},
		{"browser_online", "true"},
		{"browser_platform", "MacIntel"},
		{"browser_version", userAgent},
		{"channel", "tiktok_web"},
		{"clientABVersions", strings.Join(boot.ABTestVersions, ",")},
		{"cookie_enabled", "true"},
	}
	if related {
		q = append(q, Param{"count", strconv.Itoa(RelatedCount)})
	}
	q = append(q, Param{"coverFormat", "2"})
	if related {
		q = append(q, Param{"cursor", "0"})
	}
	q = append(q,
		Param{"data_collection_enabled", "true"},
		Param{"device_id", boot.DeviceID},
		Param{"device_platform", "web_pc"},
		Param{"focus_state", "true"},
	)
	if related {
		q = append(q,
			Param{"from_page", "video"},
			Param{"history_len", "2"},
			Param{"isNonPersonalized", "false"},
		)
	} else {
		q = append(q,
			Param{"from_page", "user"},
			Param{"history_len", "1"},
		)
	}
	q = append(q,
		Param{"is_fullscreen", "false"},
		Param{"is_page_visible", "true"},
	)
	if related {
		q = append(q, Param{"itemID", contentID})
	} else {
		q = append(q, Param{"itemId", contentID})
	}
	q = append(q,
		Param{"language", "en"},
		Param{"odinId", boot.OdinID},
		Param{"os", "mac"},
		Param{"priority_region", "ES"},
		Param{"referer", ""},
		Param{"region", "ES"},
		Param{"screen_height", "1117"},
		Param{"screen_width", "1728"},
		Param{"tz_name", "Europe/Madrid"},
		Param{"user_is_login", "true"},
		Param{"verifyFp", verifyFp},
		Param{"webcast_language", "en"},
	)
	if !related && boot.MsToken != "" {
		q = append(q, Param{"msToken", boot.MsToken})
	}
	return q
}
